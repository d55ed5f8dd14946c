package dialogue

import "time"

// Session captures one anonymous conversation bound to a cognitive focus.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	FocusID   string    `json:"focusId"`
	CreatedAt time.Time `json:"createdAt"`
}
