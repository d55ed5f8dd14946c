package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumehealth/lume/backend/internal/config"
	"github.com/lumehealth/lume/backend/internal/handler"
	"github.com/lumehealth/lume/backend/internal/model/conversation"
	speechModel "github.com/lumehealth/lume/backend/internal/model/speech"
	"github.com/lumehealth/lume/backend/internal/service/ai"
	"github.com/lumehealth/lume/backend/internal/service/auth"
	"github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/internal/service/pipeline"
	"github.com/lumehealth/lume/backend/internal/service/speech"
	"github.com/lumehealth/lume/backend/internal/service/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize focus store and dialogue service
	focusStore := conversation.NewMemoryStore(conversation.Seed())
	dialogueService := dialogue.NewService()

	// Token manager for the identity-gated backends
	var tokens *auth.Manager
	if cfg.IdentityEnabled() {
		tokens = auth.NewManager(cfg.Identity, auth.NewRESTExchanger())
		log.Println("Identity token manager initialized")
	} else {
		log.Println("Identity credentials not configured, identity-gated backends disabled")
	}

	// Initialize response service
	var aiService *ai.Service
	if cfg.AI.Enabled() && (cfg.AI.Provider == "ark" || tokens != nil) {
		aiService, err = ai.NewService(ctx, focusStore, cfg.AI, tokens)
		if err != nil {
			log.Printf("warning: failed to initialize response service: %v", err)
			log.Println("continuing without response generation")
		} else {
			log.Printf("Response service initialized (provider=%s)", cfg.AI.Provider)
		}
	} else {
		log.Println("Response backend not configured, skipping response generation")
	}

	// Initialize speech service
	var speechService *speech.Service
	if cfg.Speech.Enabled && tokens != nil {
		speechConfig := &speechModel.Config{
			BaseURL:          cfg.Speech.BaseURL,
			Language:         cfg.Speech.Language,
			SampleRate:       cfg.Speech.SampleRate,
			TTSVoice:         cfg.Speech.TTSVoice,
			TTSSpeed:         cfg.Speech.TTSSpeed,
			TTSVolume:        cfg.Speech.TTSVolume,
			Timeout:          cfg.Speech.Timeout,
			TransientRetries: cfg.Speech.TransientRetries,
		}
		speechService = speech.NewService(speechConfig, tokens)
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("Speech backend not configured, skipping speech features")
	}

	// Initialize object storage for session artifacts
	var sessions *storage.Sessions
	if cfg.Storage.Enabled() {
		storageCfg := cfg.Storage
		sessions = storage.NewSessions(func(ctx context.Context) (storage.ObjectStore, error) {
			client, err := storage.Open(ctx, storageCfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		})
		log.Println("Session artifact storage initialized")
	} else {
		log.Println("Storage credentials not configured, skipping session artifacts")
	}

	// Assemble the turn pipeline over whatever stages are available
	var transcriber pipeline.Transcriber
	var synthesizer pipeline.Synthesizer
	if speechService != nil {
		transcriber = &speechTranscriber{svc: speechService, language: cfg.Speech.Language}
		synthesizer = &speechSynthesizer{svc: speechService}
	}
	var responder pipeline.Responder
	if aiService != nil {
		responder = aiService
	}
	turnPipeline := pipeline.New(transcriber, responder, synthesizer)

	router := handler.NewRouter(handler.Deps{
		Focuses:     focusStore,
		DialogueSvc: dialogueService,
		AISvc:       aiService,
		SpeechSvc:   speechService,
		Sessions:    sessions,
		Pipeline:    turnPipeline,
		Language:    cfg.Speech.Language,
	})

	startServer(ctx, cfg.Server, router)
}

// speechTranscriber adapts the speech service to the pipeline contract.
type speechTranscriber struct {
	svc      *speech.Service
	language string
}

func (a *speechTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, int, error) {
	resp, err := a.svc.TranscribeBuffer(ctx, "", audio, format, a.language)
	if err != nil {
		return "", 0, err
	}
	return resp.Transcript, resp.WordCount, nil
}

// speechSynthesizer adapts the speech service to the pipeline contract.
type speechSynthesizer struct {
	svc *speech.Service
}

func (a *speechSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	resp, err := a.svc.SynthesizeToBuffer(ctx, &speechModel.TTSRequest{Text: text})
	if err != nil {
		return nil, "", err
	}
	return resp.AudioData, resp.Format, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Lume backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
