package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	// StatusCreated: session provisioned, tokens issued, nothing open yet.
	StatusCreated SessionStatus = "created"
	// StatusWaiting: waiting room open, participants may register and connect.
	StatusWaiting SessionStatus = "waiting"
	// StatusActive: host has started the session.
	StatusActive SessionStatus = "active"
	// StatusEnded: terminal; no new connections or events are accepted.
	StatusEnded SessionStatus = "ended"
)

// Routable reports whether events may still be delivered for this status.
func (s SessionStatus) Routable() bool {
	return s != StatusEnded
}

// Session is a live teaching/broadcast instance. Host and user tokens are
// distinct opaque strings resolving to the same session row.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	HostToken        string        `json:"host_token,omitempty"`
	UserToken        string        `json:"user_token,omitempty"`
	Status           SessionStatus `json:"status"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty"`
	PeakParticipants int           `json:"peak_participants"`
	CreatedBy        uuid.UUID     `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Public returns a copy safe to expose to participants (no host token).
func (s *Session) Public() Session {
	out := *s
	out.HostToken = ""
	return out
}
