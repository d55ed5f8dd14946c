package speech

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/lumehealth/lume/backend/internal/apperr"
	speechmodel "github.com/lumehealth/lume/backend/internal/model/speech"
)

// SynthesizerClient calls the synthesis endpoint of the identity-gated
// speech backend.
type SynthesizerClient struct {
	config *speechmodel.Config
	rest   *restClient
}

// NewSynthesizerClient creates the synthesis gateway.
func NewSynthesizerClient(config *speechmodel.Config, tokens TokenSource) *SynthesizerClient {
	return &SynthesizerClient{
		config: config,
		rest:   newRESTClient(config.BaseURL, tokens, config.Timeout, config.TransientRetries),
	}
}

type synthesizeRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Speed  float32 `json:"speed,omitempty"`
	Pitch  float32 `json:"pitch,omitempty"`
	Volume float32 `json:"volume,omitempty"`
	Format string  `json:"format,omitempty"`
}

type synthesizeResponse struct {
	AudioBase64 string `json:"audioBase64"`
	Format      string `json:"format"`
	Duration    int64  `json:"duration,omitempty"` // milliseconds
	RequestID   string `json:"requestId,omitempty"`
}

// Synthesize converts text to an encoded audio payload.
func (c *SynthesizerClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	const op = "speech.synthesize"

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, apperr.New(apperr.KindValidation, op, "text is required")
	}

	speed := req.Speed
	if speed == 0 {
		speed = c.config.TTSSpeed
	}
	volume := req.Volume
	if volume == 0 {
		volume = c.config.TTSVolume
	}
	format := req.Format
	if format == "" {
		format = "mp3"
	}

	var payload synthesizeResponse
	err := c.rest.postJSON(ctx, op, "/v1/tts", synthesizeRequest{
		Text:   req.Text,
		Voice:  c.config.TTSVoice,
		Speed:  speed,
		Pitch:  req.Pitch,
		Volume: volume,
		Format: format,
	}, &payload)
	if err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(payload.AudioBase64)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, op, "malformed audio payload", err)
	}

	respFormat := payload.Format
	if respFormat == "" {
		respFormat = format
	}

	return &speechmodel.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    respFormat,
		Duration:  payload.Duration,
		RequestID: payload.RequestID,
		CreatedAt: time.Now().UTC(),
	}, nil
}
