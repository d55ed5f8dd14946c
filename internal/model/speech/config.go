package speech

// Config describes the identity-gated speech backend.
type Config struct {
	BaseURL          string
	Language         string
	SampleRate       int
	TTSVoice         string
	TTSSpeed         float32
	TTSVolume        float32
	Timeout          int // seconds, per upstream call
	TransientRetries int // extra attempts on network/timeout failures
}
