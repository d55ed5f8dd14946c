package dialogue

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
	model "github.com/lumehealth/lume/backend/internal/model/dialogue"
	dialogueService "github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/pkg/utils"
)

// Handler exposes session and focus management over HTTP.
type Handler struct {
	dialogueSvc *dialogueService.Service
	focuses     conversation.Store
}

// New creates the dialogue handler.
func New(dialogueSvc *dialogueService.Service, focuses conversation.Store) *Handler {
	return &Handler{
		dialogueSvc: dialogueSvc,
		focuses:     focuses,
	}
}

// RegisterRoutes registers dialogue-related routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/focuses", h.handleListFocuses)
	r.Post("/dialogue/session", h.handleCreateSession)
	r.Post("/dialogue/messages", h.handleSaveMessage)
	r.Get("/dialogue/{sessionID}/transcript", h.handleTranscript)
}

func (h *Handler) handleListFocuses(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.focuses.List())
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID  string `json:"userId"`
		FocusID string `json:"focusId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.FocusID == "" {
		utils.RespondError(w, http.StatusBadRequest, "focusId is required")
		return
	}

	if _, ok := h.focuses.FindByID(payload.FocusID); !ok {
		utils.RespondError(w, http.StatusBadRequest, "focus not found")
		return
	}

	session, err := h.dialogueSvc.CreateSession(r.Context(), payload.UserID, payload.FocusID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Sender    string `json:"sender"`
		Content   string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := model.Message{
		SessionID: payload.SessionID,
		Sender:    payload.Sender,
		Content:   payload.Content,
	}

	if err := h.dialogueSvc.SaveMessage(r.Context(), message); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dialogueService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.dialogueSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
