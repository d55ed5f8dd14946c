package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumehealth/lume/backend/internal/apperr"
	speechmodel "github.com/lumehealth/lume/backend/internal/model/speech"
	"github.com/lumehealth/lume/backend/internal/service/auth"
)

type fakeTokens struct {
	tokenCalls   int32
	refreshCalls int32
}

func (f *fakeTokens) Token(ctx context.Context) (auth.Credential, error) {
	atomic.AddInt32(&f.tokenCalls, 1)
	return auth.Credential{Value: "token-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) ForceRefresh(ctx context.Context) (auth.Credential, error) {
	n := atomic.AddInt32(&f.refreshCalls, 1)
	return auth.Credential{Value: fmt.Sprintf("token-fresh-%d", n), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func testConfig(baseURL string) *speechmodel.Config {
	return &speechmodel.Config{
		BaseURL:    baseURL,
		Language:   "en-US",
		SampleRate: 16000,
		Timeout:    5,
	}
}

func TestTranscribeSendsTokenAndDecodesResponse(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["format"] != "wav" {
			t.Errorf("unexpected format: %v", req["format"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"transcript": "I had toast this morning",
			"confidence": 0.92,
		})
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), &fakeTokens{})
	resp, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("audio"), "wav", "")
	if err != nil {
		t.Fatalf("TranscribeBuffer err: %v", err)
	}

	if gotToken != "token-1" {
		t.Fatalf("expected token header, got %q", gotToken)
	}
	if resp.Transcript != "I had toast this morning" {
		t.Fatalf("unexpected transcript: %s", resp.Transcript)
	}
	if resp.WordCount != 5 {
		t.Fatalf("unexpected word count: %d", resp.WordCount)
	}
	if resp.Confidence != 0.92 {
		t.Fatalf("unexpected confidence: %f", resp.Confidence)
	}
}

func TestTranscribeEmptyAudioRejectedBeforeNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), &fakeTokens{})
	_, err := svc.TranscribeBuffer(context.Background(), "s1", nil, "wav", "")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no network call expected for empty audio")
	}
}

func TestAuthFailureRetriedExactlyOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	svc := NewService(testConfig(srv.URL), tokens)

	_, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("audio"), "wav", "")
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth classification after failed retry, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected exactly 2 upstream calls (original + retry), observed %d", got)
	}
	if got := atomic.LoadInt32(&tokens.refreshCalls); got != 1 {
		t.Fatalf("expected exactly 1 forced refresh, observed %d", got)
	}
}

func TestAuthRetrySucceedsWithFreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") == "token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"transcript": "hello"})
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), &fakeTokens{})
	resp, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("audio"), "wav", "")
	if err != nil {
		t.Fatalf("TranscribeBuffer err: %v", err)
	}
	if resp.Transcript != "hello" {
		t.Fatalf("unexpected transcript: %s", resp.Transcript)
	}
}

func TestUpstreamFailureNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), &fakeTokens{})
	_, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("audio"), "wav", "")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected upstream classification, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single upstream call, observed %d", got)
	}
}

func TestTransientRetriesConfigurable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable on purpose

	cfg := testConfig(srv.URL)
	cfg.TransientRetries = 2
	tokens := &fakeTokens{}
	svc := NewService(cfg, tokens)

	_, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("audio"), "wav", "")
	if !apperr.IsTransient(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
	if got := atomic.LoadInt32(&tokens.tokenCalls); got != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), observed %d", got)
	}
}

func TestSynthesizeDecodesAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "hello there" {
			t.Errorf("unexpected text: %v", req["text"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"audioBase64": base64.StdEncoding.EncodeToString([]byte("fake-mp3")),
			"format":      "mp3",
			"duration":    1200,
		})
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), &fakeTokens{})
	resp, err := svc.SynthesizeSpeech(context.Background(), &speechmodel.TTSRequest{SessionID: "s1", Text: "hello there"})
	if err != nil {
		t.Fatalf("SynthesizeSpeech err: %v", err)
	}
	if string(resp.AudioData) != "fake-mp3" {
		t.Fatalf("unexpected audio payload: %q", resp.AudioData)
	}
	if resp.Format != "mp3" || resp.Duration != 1200 {
		t.Fatalf("unexpected metadata: %+v", resp)
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	svc := NewService(testConfig("http://localhost:1"), &fakeTokens{})
	_, err := svc.SynthesizeSpeech(context.Background(), &speechmodel.TTSRequest{Text: "  "})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
