package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an error at its point of origin. The classification is
// carried upward unchanged so callers can pick a retry or fallback policy
// without inspecting error strings.
type Kind string

const (
	KindAuth       Kind = "AUTH"
	KindUpstream   Kind = "UPSTREAM"
	KindNetwork    Kind = "NETWORK"
	KindTimeout    Kind = "TIMEOUT"
	KindStorage    Kind = "STORAGE"
	KindValidation Kind = "VALIDATION"
)

// Error is the structured error carried across service boundaries.
type Error struct {
	Kind   Kind
	Op     string // component and operation, e.g. "speech.transcribe"
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Reason, e.Kind)
	}
	return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Reason, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a classified error without an underlying cause.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind Kind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// KindOf extracts the classification from err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuth reports whether err was classified as an auth failure, i.e. the
// only class that warrants a forced token refresh and a single retry.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsTransient reports whether the caller may safely retry the whole
// operation (no response was received upstream).
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindTimeout
}

// FromStatus classifies an HTTP response status from an upstream service.
func FromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	default:
		return KindUpstream
	}
}

// FromTransport classifies a transport-level error (no HTTP response).
func FromTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
