package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	dialogueservice "github.com/lumehealth/lume/backend/internal/service/dialogue"
	"github.com/lumehealth/lume/backend/internal/service/pipeline"
)

type fakeRunner struct {
	result pipeline.TurnResult
	err    error
	input  pipeline.TurnInput
}

func (f *fakeRunner) RunTurn(_ context.Context, input pipeline.TurnInput) (pipeline.TurnResult, error) {
	f.input = input
	return f.result, f.err
}

func dialSession(t *testing.T, runner *fakeRunner) (*websocket.Conn, func()) {
	t.Helper()

	dialogueSvc := dialogueservice.NewService()
	session, err := dialogueSvc.CreateSession(context.Background(), "user1", "memory")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	r := chi.NewRouter()
	New(runner, dialogueSvc).RegisterRoutes(r)
	server := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/live/" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		server.Close()
		t.Fatalf("Dial err: %v", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readData(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON err: %v", err)
	}
	return msg.Data
}

func TestLiveTextTurnDeliversReplyAndAudio(t *testing.T) {
	runner := &fakeRunner{result: pipeline.TurnResult{
		Transcript: "hello there",
		Reply:      "Hello! Lovely to hear from you.",
		Audio:      []byte("mp3-bytes"),
		AudioFormat: "mp3",
	}}
	conn, cleanup := dialSession(t, runner)
	defer cleanup()

	connected := readData(t, conn)
	if connected["type"] != "connected" {
		t.Fatalf("expected connected message first, got %v", connected)
	}
	if connected["focus"] != "memory" {
		t.Fatalf("expected session focus, got %v", connected["focus"])
	}

	err := conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]any{"text": "hello there"},
	})
	if err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	transcript := readData(t, conn)
	if transcript["type"] != "transcript" || transcript["text"] != "hello there" {
		t.Fatalf("unexpected transcript message: %v", transcript)
	}

	reply := readData(t, conn)
	if reply["type"] != "reply" || reply["text"] != "Hello! Lovely to hear from you." {
		t.Fatalf("unexpected reply message: %v", reply)
	}

	audio := readData(t, conn)
	if audio["type"] != "audio" || audio["format"] != "mp3" {
		t.Fatalf("unexpected audio message: %v", audio)
	}
	if audio["audioData"] == "" {
		t.Fatal("expected base64 audio data")
	}
}

func TestLiveTurnFailureReportsStage(t *testing.T) {
	runner := &fakeRunner{err: &pipeline.StageError{
		Stage: pipeline.StageGeneratingResponse,
		Err:   context.DeadlineExceeded,
	}}
	conn, cleanup := dialSession(t, runner)
	defer cleanup()

	readData(t, conn) // connected

	err := conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	errored := readData(t, conn)
	if errored["type"] != "errored" {
		t.Fatalf("expected errored message, got %v", errored)
	}
	if errored["stage"] != string(pipeline.StageGeneratingResponse) {
		t.Fatalf("expected failing stage, got %v", errored["stage"])
	}
}
