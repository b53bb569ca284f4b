package realtime

import "errors"

var (
	// ErrInvalidToken means the presented session token failed validation.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrSessionNotFound means no session resolves from the token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed means the session has ended; no registrations or events accepted.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnauthorized means the connection's role does not permit the event.
	ErrUnauthorized = errors.New("unauthorized for event")
	// ErrNotRegistered means the connection is not present in the session registry.
	ErrNotRegistered = errors.New("connection not registered")
	// ErrEmptyContent means neither the canonical nor the legacy content field was supplied.
	ErrEmptyContent = errors.New("empty content payload")
)
