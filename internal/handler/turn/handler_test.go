package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

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

func setup(t *testing.T, runner *fakeRunner) (*chi.Mux, *dialogueservice.Service, string) {
	t.Helper()

	dialogueSvc := dialogueservice.NewService()
	session, err := dialogueSvc.CreateSession(context.Background(), "user1", "memory")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	r := chi.NewRouter()
	New(runner, dialogueSvc).RegisterRoutes(r)
	return r, dialogueSvc, session.ID
}

func TestTurnTypedTextHappyPath(t *testing.T) {
	runner := &fakeRunner{result: pipeline.TurnResult{
		Transcript:    "good morning",
		Reply:         "Good morning! How are you?",
		WordCount:     2,
		Transcription: pipeline.StageOutcome{Grade: pipeline.GradeSkipped},
		Generation:    pipeline.StageOutcome{Grade: pipeline.GradeOK},
		Synthesis:     pipeline.StageOutcome{Grade: pipeline.GradeOK},
	}}
	r, dialogueSvc, sessionID := setup(t, runner)

	payload, _ := json.Marshal(map[string]string{"sessionId": sessionID, "text": "good morning"})
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Reply    string `json:"reply"`
		Degraded bool   `json:"degraded"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Reply != "Good morning! How are you?" || body.Degraded {
		t.Fatalf("unexpected body: %+v", body)
	}

	if runner.input.FocusID != "memory" {
		t.Fatalf("focus should come from the session, got %q", runner.input.FocusID)
	}

	messages, err := dialogueSvc.LoadTranscript(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(messages) != 2 || messages[0].Sender != "user" || messages[1].Sender != "assistant" {
		t.Fatalf("turn not persisted: %+v", messages)
	}
}

func TestTurnMultipartAudio(t *testing.T) {
	runner := &fakeRunner{result: pipeline.TurnResult{
		Transcript: "hello",
		Reply:      "hi",
		Audio:      []byte("mp3"),
	}}
	r, _, sessionID := setup(t, runner)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "clip.webm")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("opus-bytes")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.WriteField("sessionId", sessionID); err != nil {
		t.Fatalf("WriteField err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/turn", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if runner.input.Format != "webm" {
		t.Fatalf("format not inferred from filename: %q", runner.input.Format)
	}
	if len(runner.input.Audio) == 0 {
		t.Fatal("audio not forwarded to the pipeline")
	}

	var out struct {
		Audio string `json:"audio"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if out.Audio == "" {
		t.Fatal("expected base64 audio in the response")
	}
}

func TestTurnStageFailureReportsStage(t *testing.T) {
	runner := &fakeRunner{err: &pipeline.StageError{
		Stage: pipeline.StageGeneratingResponse,
		Err:   context.DeadlineExceeded,
	}}
	r, _, sessionID := setup(t, runner)

	payload, _ := json.Marshal(map[string]string{"sessionId": sessionID, "text": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["stage"] != string(pipeline.StageGeneratingResponse) {
		t.Fatalf("expected failing stage in body, got %+v", body)
	}
}

func TestTurnUnknownSession(t *testing.T) {
	r, _, _ := setup(t, &fakeRunner{})

	payload, _ := json.Marshal(map[string]string{"sessionId": "missing", "text": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestTurnRejectsEmptyText(t *testing.T) {
	r, _, sessionID := setup(t, &fakeRunner{})

	payload, _ := json.Marshal(map[string]string{"sessionId": sessionID})
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
