package speech

import (
	"context"
	"encoding/base64"
	"io"
	"time"

	"github.com/lumehealth/lume/backend/internal/analysis/lexical"
	"github.com/lumehealth/lume/backend/internal/apperr"
	speechmodel "github.com/lumehealth/lume/backend/internal/model/speech"
)

// RecognizerClient calls the short-audio transcription endpoint of the
// identity-gated speech backend.
type RecognizerClient struct {
	config *speechmodel.Config
	rest   *restClient
}

// NewRecognizerClient creates the transcription gateway.
func NewRecognizerClient(config *speechmodel.Config, tokens TokenSource) *RecognizerClient {
	return &RecognizerClient{
		config: config,
		rest:   newRESTClient(config.BaseURL, tokens, config.Timeout, config.TransientRetries),
	}
}

type recognizeRequest struct {
	Audio      string `json:"audio"` // base64-encoded payload
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Language   string `json:"language,omitempty"`
}

type recognizeResponse struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence,omitempty"`
	RequestID  string  `json:"requestId,omitempty"`
	Segments   []struct {
		Text  string `json:"text"`
		Start int64  `json:"start"`
		End   int64  `json:"end"`
	} `json:"segments,omitempty"`
}

// Transcribe sends one utterance and returns its transcript. Word counts
// are derived locally; the backend does not report them.
func (c *RecognizerClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	const op = "speech.transcribe"

	if req == nil || req.AudioData == nil {
		return nil, apperr.New(apperr.KindValidation, op, "audio payload is required")
	}

	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, "read audio payload", err)
	}
	if len(audio) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "audio payload is empty")
	}

	language := req.Language
	if language == "" {
		language = c.config.Language
	}
	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = c.config.SampleRate
	}

	var payload recognizeResponse
	err = c.rest.postJSON(ctx, op, "/v1/asr/short-audio", recognizeRequest{
		Audio:      base64.StdEncoding.EncodeToString(audio),
		Format:     req.Format,
		SampleRate: sampleRate,
		Language:   language,
	}, &payload)
	if err != nil {
		return nil, err
	}

	return &speechmodel.ASRResponse{
		SessionID:  req.SessionID,
		Transcript: payload.Transcript,
		Confidence: payload.Confidence,
		WordCount:  lexical.Analyze(payload.Transcript).WordCount,
		RequestID:  payload.RequestID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
