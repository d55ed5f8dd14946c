package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumehealth/lume/backend/internal/handler/artifact"
	"github.com/lumehealth/lume/backend/internal/handler/dialogue"
	"github.com/lumehealth/lume/backend/internal/handler/live"
	"github.com/lumehealth/lume/backend/internal/handler/speech"
	"github.com/lumehealth/lume/backend/internal/handler/stream"
	"github.com/lumehealth/lume/backend/internal/handler/turn"
	middlewarePkg "github.com/lumehealth/lume/backend/internal/middleware"
	"github.com/lumehealth/lume/backend/internal/model/conversation"
	aiService "github.com/lumehealth/lume/backend/internal/service/ai"
	dialogueService "github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/internal/service/pipeline"
	speechService "github.com/lumehealth/lume/backend/internal/service/speech"
	"github.com/lumehealth/lume/backend/internal/service/storage"
	"github.com/lumehealth/lume/backend/pkg/utils"
)

// Deps carries the wired services. Nil members disable their routes.
type Deps struct {
	Focuses     conversation.Store
	DialogueSvc *dialogueService.Service
	AISvc       *aiService.Service
	SpeechSvc   *speechService.Service
	Sessions    *storage.Sessions
	Pipeline    *pipeline.Pipeline
	Language    string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	dialogueHandler := dialogue.New(deps.DialogueSvc, deps.Focuses)

	var streamHandler *stream.Handler
	if deps.AISvc != nil {
		streamHandler = stream.New(deps.AISvc, deps.DialogueSvc, deps.Focuses)
	}

	r.Route("/api", func(api chi.Router) {
		dialogueHandler.RegisterRoutes(api)

		if deps.Pipeline != nil {
			turn.New(deps.Pipeline, deps.DialogueSvc).RegisterRoutes(api)
			live.New(deps.Pipeline, deps.DialogueSvc).RegisterRoutes(api)
		}

		if deps.Sessions != nil {
			artifact.New(deps.Sessions).RegisterRoutes(api)
		}

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "response streaming unavailable")
				return
			}
			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})

		if deps.SpeechSvc != nil {
			speech.New(deps.SpeechSvc, deps.Language).RegisterRoutes(api)
		}
	})

	return r
}
