package dialogue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
	"github.com/lumehealth/lume/backend/internal/model/dialogue"
)

var (
	ErrFocusRequired   = errors.New("focus id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]dialogue.Session
	messages map[string][]dialogue.Message
}

// NewService bootstraps the in-memory dialogue store. Sessions are
// transient; a restart wipes them.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]dialogue.Session),
		messages: make(map[string][]dialogue.Message),
	}
}

// CreateSession provisions an anonymous session bound to a cognitive focus.
func (s *Service) CreateSession(_ context.Context, userID, focusID string) (dialogue.Session, error) {
	if focusID == "" {
		return dialogue.Session{}, ErrFocusRequired
	}

	session := dialogue.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		FocusID:   focusID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]dialogue.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// SaveMessage appends a message to the session history.
func (s *Service) SaveMessage(_ context.Context, message dialogue.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (dialogue.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return dialogue.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]dialogue.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]dialogue.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// History projects the transcript into user/agent exchange pairs, pairing
// each user message with the agent reply that follows it.
func (s *Service) History(ctx context.Context, sessionID string) ([]conversation.Exchange, error) {
	messages, err := s.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return PairExchanges(messages), nil
}

// PairExchanges folds a sender-ordered transcript into exchanges. An
// unanswered trailing user message yields an exchange with an empty reply.
func PairExchanges(messages []dialogue.Message) []conversation.Exchange {
	exchanges := make([]conversation.Exchange, 0, len(messages)/2+1)
	var pending *conversation.Exchange
	for _, msg := range messages {
		switch msg.Sender {
		case "user":
			if pending != nil {
				exchanges = append(exchanges, *pending)
			}
			pending = &conversation.Exchange{User: msg.Content}
		case "assistant", "agent":
			if pending == nil {
				exchanges = append(exchanges, conversation.Exchange{Agent: msg.Content})
				continue
			}
			pending.Agent = msg.Content
			exchanges = append(exchanges, *pending)
			pending = nil
		}
	}
	if pending != nil {
		exchanges = append(exchanges, *pending)
	}
	return exchanges
}
