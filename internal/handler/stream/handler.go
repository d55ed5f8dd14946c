package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/cloudwego/eino/schema"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
	model "github.com/lumehealth/lume/backend/internal/model/dialogue"
	aiService "github.com/lumehealth/lume/backend/internal/service/ai"
	dialogueService "github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/pkg/utils"
)

// Handler manages streaming agent responses via Server-Sent Events.
type Handler struct {
	aiService   *aiService.Service
	dialogueSvc *dialogueService.Service
	focuses     conversation.Store
}

// New creates a new stream handler.
func New(aiSvc *aiService.Service, dialogueSvc *dialogueService.Service, focuses conversation.Store) *Handler {
	return &Handler{
		aiService:   aiSvc,
		dialogueSvc: dialogueSvc,
		focuses:     focuses,
	}
}

// StreamResponse represents a streaming response chunk.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest streams the agent reply for one typed user message.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	session, focus, err := h.getSessionFocus(ctx, sessionID)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to resolve session: %v", err))
		return err
	}

	messages, err := h.dialogueSvc.LoadTranscript(ctx, session.ID)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to load conversation: %v", err))
		return err
	}

	// Save user message. When the client already persisted it via REST,
	// avoid duplicating it.
	if !hasMatchingUserMessage(messages, sessionID, userMessage) {
		userMsg := model.Message{
			SessionID: sessionID,
			Sender:    "user",
			Content:   userMessage,
		}
		if err := h.dialogueSvc.SaveMessage(ctx, userMsg); err != nil {
			log.Printf("failed to save user message: %v", err)
		} else {
			messages = append(messages, userMsg)
		}
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	response, err := h.dispatchAIResponse(ctx, w, flusher, sessionID, focus, messages, userMessage)
	if err != nil {
		h.sendSSEError(w, flusher, "response generation failed")
		return err
	}

	assistantMsg := model.Message{
		SessionID: sessionID,
		Sender:    "assistant",
		Content:   response.Content,
	}
	if err := h.dialogueSvc.SaveMessage(ctx, assistantMsg); err != nil {
		log.Printf("failed to save assistant message: %v", err)
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed response for session=%s, focus=%s", sessionID, focus.ID)
	return nil
}

func (h *Handler) dispatchAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, focus conversation.Focus, messages []model.Message, userMessage string) (*schema.Message, error) {
	if h.aiService.StreamingEnabled() {
		return h.streamAIResponse(ctx, w, flusher, sessionID, focus, messages, userMessage)
	}

	response, err := h.aiService.GenerateResponse(ctx, sessionID, focus, messages, userMessage)
	if err != nil {
		return nil, err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
	})

	return response, nil
}

func (h *Handler) getSessionFocus(ctx context.Context, sessionID string) (*model.Session, conversation.Focus, error) {
	session, err := h.dialogueSvc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, conversation.Focus{}, fmt.Errorf("session not found: %w", err)
	}

	focus, ok := h.focuses.FindByID(session.FocusID)
	if !ok {
		return nil, conversation.Focus{}, fmt.Errorf("focus %s not found", session.FocusID)
	}

	return &session, focus, nil
}

func hasMatchingUserMessage(messages []model.Message, sessionID, content string) bool {
	if len(messages) == 0 {
		return false
	}

	last := messages[len(messages)-1]
	if last.SessionID != sessionID {
		return false
	}

	if last.Sender != "user" {
		return false
	}

	return last.Content == content
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}

func (h *Handler) streamAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, focus conversation.Focus, messages []model.Message, userMessage string) (*schema.Message, error) {
	stream, err := h.aiService.StreamResponse(ctx, focus, messages, userMessage)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
	})

	return response, nil
}
