package turn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	model "github.com/lumehealth/lume/backend/internal/model/dialogue"
	dialogueService "github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/internal/service/pipeline"
	"github.com/lumehealth/lume/backend/pkg/utils"
)

// maxAudioBytes bounds one turn's uploaded audio.
const maxAudioBytes = 16 << 20

// TurnRunner abstracts the pipeline for testing.
type TurnRunner interface {
	RunTurn(ctx context.Context, input pipeline.TurnInput) (pipeline.TurnResult, error)
}

// Handler drives one conversation turn end to end: transcription, response
// generation, synthesis, and transcript persistence.
type Handler struct {
	runner      TurnRunner
	dialogueSvc *dialogueService.Service
}

// New creates the turn handler.
func New(runner TurnRunner, dialogueSvc *dialogueService.Service) *Handler {
	return &Handler{
		runner:      runner,
		dialogueSvc: dialogueSvc,
	}
}

// RegisterRoutes registers the turn route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/turn", h.handleTurn)
}

// turnResponse is the wire shape of one completed turn.
type turnResponse struct {
	SessionID   string     `json:"sessionId"`
	Transcript  string     `json:"transcript"`
	Reply       string     `json:"reply"`
	Audio       string     `json:"audio,omitempty"` // base64
	AudioFormat string     `json:"audioFormat,omitempty"`
	WordCount   int        `json:"wordCount"`
	Degraded    bool       `json:"degraded"`
	Stages      turnStages `json:"stages"`
}

type turnStages struct {
	Transcription pipeline.StageOutcome `json:"transcription"`
	Generation    pipeline.StageOutcome `json:"generation"`
	Synthesis     pipeline.StageOutcome `json:"synthesis"`
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	input, err := h.parseTurn(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.dialogueSvc.GetSession(r.Context(), input.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	input.FocusID = session.FocusID

	history, err := h.dialogueSvc.History(r.Context(), input.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	input.History = history

	result, err := h.runner.RunTurn(r.Context(), input)
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			log.Printf("[turn] session=%s failed at %s: %v", input.SessionID, stageErr.Stage, stageErr.Err)
			utils.RespondJSON(w, http.StatusBadGateway, map[string]string{
				"error": "turn failed",
				"stage": string(stageErr.Stage),
			})
			return
		}
		log.Printf("[turn] session=%s failed: %v", input.SessionID, err)
		utils.RespondAppError(w, err)
		return
	}

	h.persistTurn(r, input.SessionID, result)

	resp := turnResponse{
		SessionID:   input.SessionID,
		Transcript:  result.Transcript,
		Reply:       result.Reply,
		AudioFormat: result.AudioFormat,
		WordCount:   result.WordCount,
		Degraded:    result.Degraded(),
		Stages: turnStages{
			Transcription: result.Transcription,
			Generation:    result.Generation,
			Synthesis:     result.Synthesis,
		},
	}
	if len(result.Audio) > 0 {
		resp.Audio = base64.StdEncoding.EncodeToString(result.Audio)
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// parseTurn accepts either a multipart form with an audio file or a JSON
// body with typed text.
func (h *Handler) parseTurn(r *http.Request) (pipeline.TurnInput, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
			return pipeline.TurnInput{}, errors.New("failed to parse multipart form")
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		sessionID := strings.TrimSpace(r.FormValue("sessionId"))
		if sessionID == "" {
			return pipeline.TurnInput{}, errors.New("sessionId is required")
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			return pipeline.TurnInput{}, errors.New("audio file is required")
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			return pipeline.TurnInput{}, errors.New("failed to read audio upload")
		}

		return pipeline.TurnInput{
			SessionID: sessionID,
			Audio:     audio,
			Format:    audioFormat(header.Filename),
		}, nil
	}

	var payload struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return pipeline.TurnInput{}, errors.New("invalid request body")
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		return pipeline.TurnInput{}, errors.New("sessionId is required")
	}
	if strings.TrimSpace(payload.Text) == "" {
		return pipeline.TurnInput{}, errors.New("text is required for non-multipart requests")
	}

	return pipeline.TurnInput{
		SessionID: payload.SessionID,
		Text:      payload.Text,
	}, nil
}

// persistTurn appends both sides of the turn to the session transcript.
// Persistence failures are logged, not surfaced; the reply already exists.
func (h *Handler) persistTurn(r *http.Request, sessionID string, result pipeline.TurnResult) {
	if result.Transcript != "" {
		userMsg := model.Message{
			SessionID: sessionID,
			Sender:    "user",
			Content:   result.Transcript,
			Degraded:  result.Transcription.Grade == pipeline.GradeDegraded,
		}
		if err := h.dialogueSvc.SaveMessage(r.Context(), userMsg); err != nil {
			log.Printf("[turn] failed to save user message: %v", err)
		}
	}

	agentMsg := model.Message{
		SessionID: sessionID,
		Sender:    "assistant",
		Content:   result.Reply,
		Degraded:  result.Generation.Grade == pipeline.GradeDegraded,
	}
	if err := h.dialogueSvc.SaveMessage(r.Context(), agentMsg); err != nil {
		log.Printf("[turn] failed to save assistant message: %v", err)
	}
}

func audioFormat(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".webm":
		return "webm"
	case ".ogg":
		return "ogg"
	case ".m4a":
		return "m4a"
	default:
		return "wav"
	}
}
