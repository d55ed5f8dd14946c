package live

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	model "github.com/lumehealth/lume/backend/internal/model/dialogue"
	dialogueService "github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/internal/service/pipeline"
)

// TurnRunner abstracts the pipeline for testing.
type TurnRunner interface {
	RunTurn(ctx context.Context, input pipeline.TurnInput) (pipeline.TurnResult, error)
}

// Handler runs live voice turns over a websocket: buffered audio chunks in,
// stage transitions and the finished turn out.
type Handler struct {
	runner      TurnRunner
	dialogueSvc *dialogueService.Service
	upgrader    websocket.Upgrader
}

// New creates the live turn handler.
func New(runner TurnRunner, dialogueSvc *dialogueService.Service) *Handler {
	return &Handler{
		runner:      runner,
		dialogueSvc: dialogueSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/live/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage carries one buffered audio chunk.
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage carries a typed user turn.
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	focusID     string
	audioFormat string
	buffer      bytes.Buffer
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.dialogueSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	state := &connectionState{
		sessionID: sessionID,
		focusID:   session.FocusID,
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[live] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{
		"type":  "connected",
		"focus": session.FocusID,
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[live] read error: %v", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if msg.SessionID != "" && msg.SessionID != sessionID {
				h.sendError(conn, "session mismatch")
				continue
			}

			h.handleMessage(ctx, conn, state, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if len(audio.AudioData) > 0 {
		written, _ := state.buffer.Write(audio.AudioData)
		log.Printf("[live] buffered audio chunk session=%s size=%d total=%d", state.sessionID, written, state.buffer.Len())
	}
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}

	if audio.IsFinal {
		audioBytes := make([]byte, state.buffer.Len())
		copy(audioBytes, state.buffer.Bytes())
		state.buffer.Reset()

		if len(audioBytes) == 0 {
			return
		}

		h.runTurn(ctx, conn, state, pipeline.TurnInput{
			SessionID: state.sessionID,
			FocusID:   state.focusID,
			Audio:     audioBytes,
			Format:    state.audioFormat,
		})
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if text.Text == "" {
		return
	}

	h.runTurn(ctx, conn, state, pipeline.TurnInput{
		SessionID: state.sessionID,
		FocusID:   state.focusID,
		Text:      text.Text,
	})
}

// runTurn drives one turn through the pipeline, pushing each stage
// transition to the client as it happens.
func (h *Handler) runTurn(ctx context.Context, conn *websocket.Conn, state *connectionState, input pipeline.TurnInput) {
	history, err := h.dialogueSvc.History(ctx, state.sessionID)
	if err != nil {
		h.sendError(conn, "failed to load history")
		return
	}
	input.History = history

	input.Notify = func(stage pipeline.Stage) {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "stage",
			"stage": string(stage),
		})
	}

	result, err := h.runner.RunTurn(ctx, input)
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			log.Printf("[live] turn failed session=%s stage=%s: %v", state.sessionID, stageErr.Stage, stageErr.Err)
			h.sendInfo(conn, state.sessionID, map[string]any{
				"type":  "errored",
				"stage": string(stageErr.Stage),
			})
			return
		}
		h.sendError(conn, "turn failed")
		return
	}

	h.persistTurn(ctx, state.sessionID, result)

	if result.Transcript != "" {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":    "transcript",
			"text":    result.Transcript,
			"isFinal": true,
		})
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "reply",
		"text":     result.Reply,
		"degraded": result.Degraded(),
		"isFinal":  true,
	})

	if len(result.Audio) > 0 {
		log.Printf("[live] sending reply audio session=%s bytes=%d format=%s", state.sessionID, len(result.Audio), result.AudioFormat)
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":      "audio",
			"audioData": base64.StdEncoding.EncodeToString(result.Audio),
			"format":    result.AudioFormat,
			"isFinal":   true,
		})
	}
}

func (h *Handler) persistTurn(ctx context.Context, sessionID string, result pipeline.TurnResult) {
	if result.Transcript != "" {
		userMsg := model.Message{
			SessionID: sessionID,
			Sender:    "user",
			Content:   result.Transcript,
			Degraded:  result.Transcription.Grade == pipeline.GradeDegraded,
		}
		if err := h.dialogueSvc.SaveMessage(ctx, userMsg); err != nil {
			log.Printf("[live] save user message failed: %v", err)
		}
	}

	agentMsg := model.Message{
		SessionID: sessionID,
		Sender:    "assistant",
		Content:   result.Reply,
		Degraded:  result.Generation.Grade == pipeline.GradeDegraded,
	}
	if err := h.dialogueSvc.SaveMessage(ctx, agentMsg); err != nil {
		log.Printf("[live] save assistant message failed: %v", err)
	}
}

func (h *Handler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[live] write info failed: %v", err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[live] write error failed: %v", err)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
