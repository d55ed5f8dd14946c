package speech

import (
	"bytes"
	"context"

	speechmodel "github.com/lumehealth/lume/backend/internal/model/speech"
)

// Service bundles the transcription and synthesis gateways behind one
// surface for the handlers and the conversation pipeline.
type Service struct {
	config     *speechmodel.Config
	recognizer *RecognizerClient
	synth      *SynthesizerClient
}

// NewService creates the speech service.
func NewService(config *speechmodel.Config, tokens TokenSource) *Service {
	return &Service{
		config:     config,
		recognizer: NewRecognizerClient(config, tokens),
		synth:      NewSynthesizerClient(config, tokens),
	}
}

// TranscribeAudio performs speech-to-text for one utterance.
func (s *Service) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	return s.recognizer.Transcribe(ctx, req)
}

// SynthesizeSpeech performs text-to-speech for one utterance.
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return s.synth.Synthesize(ctx, req)
}

// TranscribeBuffer is TranscribeAudio over a byte slice.
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speechmodel.ASRResponse, error) {
	req := &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	}
	return s.TranscribeAudio(ctx, req)
}

// SynthesizeToBuffer is SynthesizeSpeech with the audio returned in-memory.
func (s *Service) SynthesizeToBuffer(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, req)
}
