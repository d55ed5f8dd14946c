package speech

import "io"

// ASRRequest carries one utterance to the transcription backend.
type ASRRequest struct {
	SessionID  string    `json:"sessionId"`
	AudioData  io.Reader `json:"-"`
	Format     string    `json:"format"`     // wav, webm, mp3, ...
	SampleRate int       `json:"sampleRate"` // Hz, 0 means backend default
	Language   string    `json:"language"`   // en-US, ...
}

// TTSRequest carries one synthesis request.
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Speed     float32 `json:"speed,omitempty"`  // rate multiplier, 0 means default
	Pitch     float32 `json:"pitch,omitempty"`  // pitch multiplier, 0 means default
	Volume    float32 `json:"volume,omitempty"` // 0.0-1.0, 0 means default
	Format    string  `json:"format,omitempty"` // mp3, wav, ...
}
