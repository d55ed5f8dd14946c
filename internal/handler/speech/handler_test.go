package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumehealth/lume/backend/internal/apperr"
	speechmodel "github.com/lumehealth/lume/backend/internal/model/speech"
)

type fakeSpeechService struct {
	transcribeSession string
	synthSession      string
	language          string
	transcribeErr     error
}

func (f *fakeSpeechService) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	f.transcribeSession = req.SessionID
	f.language = req.Language
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return &speechmodel.ASRResponse{SessionID: req.SessionID, Transcript: "ok", WordCount: 1}, nil
}

func (f *fakeSpeechService) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.synthSession = req.SessionID
	return &speechmodel.TTSResponse{SessionID: req.SessionID, AudioData: []byte("audio"), Format: "mp3"}, nil
}

func (f *fakeSpeechService) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speechmodel.ASRResponse, error) {
	f.transcribeSession = sessionID
	return &speechmodel.ASRResponse{SessionID: sessionID, Transcript: "ok"}, nil
}

func (f *fakeSpeechService) SynthesizeToBuffer(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.synthSession = req.SessionID
	return &speechmodel.TTSResponse{SessionID: req.SessionID, AudioData: []byte("audio"), Format: "mp3"}, nil
}

func multipartAudio(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestProcessTranscribeOverridesSession(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	handler := New(fakeSvc, "en-US")

	body, contentType := multipartAudio(t, "sample.wav")
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe/test", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	handler.processTranscribe(rr, req, "session-override")

	if fakeSvc.transcribeSession != "session-override" {
		t.Fatalf("expected override session, got %s", fakeSvc.transcribeSession)
	}
	if fakeSvc.language != "en-US" {
		t.Fatalf("expected default language en-US, got %s", fakeSvc.language)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestProcessTranscribeUpstreamFailure(t *testing.T) {
	fakeSvc := &fakeSpeechService{
		transcribeErr: apperr.New(apperr.KindUpstream, "speech.transcribe", "backend rejected"),
	}
	handler := New(fakeSvc, "en-US")

	body, contentType := multipartAudio(t, "sample.wav")
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	handler.processTranscribe(rr, req, "")

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestProcessSynthesizeReturnsAudio(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	handler := New(fakeSvc, "en-US")

	payload, _ := json.Marshal(map[string]any{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize/test", bytes.NewReader(payload))
	rr := httptest.NewRecorder()

	handler.processSynthesize(rr, req, "session-1")

	if fakeSvc.synthSession != "session-1" {
		t.Fatalf("expected override session, got %s", fakeSvc.synthSession)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "audio/mp3" {
		t.Fatalf("unexpected content type: %s", got)
	}
	if !bytes.Equal(rr.Body.Bytes(), []byte("audio")) {
		t.Fatal("audio bytes not passed through")
	}
}

func TestProcessSynthesizeRequiresText(t *testing.T) {
	handler := New(&fakeSpeechService{}, "en-US")

	payload, _ := json.Marshal(map[string]any{"text": "  "})
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewReader(payload))
	rr := httptest.NewRecorder()

	handler.processSynthesize(rr, req, "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
