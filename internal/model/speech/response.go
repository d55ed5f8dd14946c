package speech

import "time"

// ASRResponse is the transcription result for one utterance.
type ASRResponse struct {
	SessionID  string    `json:"sessionId"`
	Transcript string    `json:"transcript"`
	Confidence float64   `json:"confidence,omitempty"`
	WordCount  int       `json:"wordCount,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TTSResponse is the synthesis result for one request.
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	AudioData []byte    `json:"-"`
	Format    string    `json:"format"`
	Duration  int64     `json:"duration,omitempty"` // milliseconds
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
