package sessions

import "errors"

var (
	ErrNotFound          = errors.New("session not found")
	ErrAlreadyEnded      = errors.New("session has already ended")
	ErrInvalidTransition = errors.New("invalid session status transition")
)
