package auth

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultExpiryMargin is the minimum remaining validity a Credential must
// have when handed to a caller. Anything closer to expiry is refreshed
// first.
const DefaultExpiryMargin = 60 * time.Second

// IdentityConfig carries the principal used for the identity exchange. It
// is loaded once at startup and passed in as a value; the manager never
// reads the environment itself.
type IdentityConfig struct {
	Username    string
	Password    string
	DomainName  string
	ProjectName string
	Region      string
	Endpoint    string
}

// Credential is a short-lived bearer value for the identity-gated backends.
// It lives only in process memory.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Exchanger performs one identity exchange against the identity backend.
type Exchanger interface {
	Exchange(ctx context.Context, cfg IdentityConfig) (Credential, error)
}

// flight is one in-flight identity exchange. Waiters block on done and read
// the result fields afterwards.
type flight struct {
	done chan struct{}
	cred Credential
	err  error
}

// Manager owns the cached Credential. It is the single source of truth for
// "current valid token" and the only piece of shared mutable state in the
// gateway core: concurrent callers observe at most one in-flight exchange.
type Manager struct {
	cfg       IdentityConfig
	exchanger Exchanger
	margin    time.Duration
	now       func() time.Time

	mu   sync.Mutex
	cred *Credential
	fl   *flight
}

// NewManager builds a Manager around the given exchanger.
func NewManager(cfg IdentityConfig, exchanger Exchanger) *Manager {
	return &Manager{
		cfg:       cfg,
		exchanger: exchanger,
		margin:    DefaultExpiryMargin,
		now:       time.Now,
	}
}

// Token returns the cached Credential when it is still valid beyond the
// expiry margin, otherwise refreshes synchronously. Callers arriving during
// a refresh wait for that single exchange instead of issuing their own.
func (m *Manager) Token(ctx context.Context) (Credential, error) {
	return m.token(ctx, false)
}

// ForceRefresh discards the cached Credential and obtains a fresh one. Used
// by gateways after an auth-classified upstream failure.
func (m *Manager) ForceRefresh(ctx context.Context) (Credential, error) {
	return m.token(ctx, true)
}

func (m *Manager) token(ctx context.Context, force bool) (Credential, error) {
	m.mu.Lock()
	if force {
		m.cred = nil
	}
	if m.cred != nil && m.cred.ExpiresAt.Sub(m.now()) > m.margin {
		cred := *m.cred
		m.mu.Unlock()
		return cred, nil
	}

	if m.fl != nil {
		fl := m.fl
		m.mu.Unlock()
		select {
		case <-fl.done:
			return fl.cred, fl.err
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		}
	}

	fl := &flight{done: make(chan struct{})}
	m.fl = fl
	m.mu.Unlock()

	cred, err := m.exchanger.Exchange(ctx, m.cfg)

	m.mu.Lock()
	if err == nil {
		m.cred = &cred
	}
	m.fl = nil
	m.mu.Unlock()

	fl.cred, fl.err = cred, err
	close(fl.done)

	if err != nil {
		// The error is classified by the exchanger; never log the principal.
		log.Printf("[auth] identity exchange failed: %v", err)
		return Credential{}, err
	}
	return cred, nil
}
