package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is an audience question submitted during a session.
type Question struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	ParticipantID   uuid.UUID `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Text            string    `json:"text"`
	Answered        bool      `json:"answered"`
	CreatedAt       time.Time `json:"created_at"`
}
