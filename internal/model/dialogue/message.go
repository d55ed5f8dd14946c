package dialogue

import "time"

// Message persists individual turns for review and lexical analysis.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Degraded  bool      `json:"degraded,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
