package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a registered attendee of a session. UserGuid is the stable
// per-session identity issued at registration; every subsequent action in the
// session must present it. Losing the guid means registering as a new
// participant, not rejoining as the old one.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	UserGuid     string    `json:"user_guid"`
	Name         string    `json:"name"`
	Country      string    `json:"country,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AttendanceRow is one join/leave record for a participant connection.
type AttendanceRow struct {
	ParticipantID uuid.UUID  `json:"participant_id"`
	SessionID     uuid.UUID  `json:"session_id"`
	JoinedAt      time.Time  `json:"joined_at"`
	LeftAt        *time.Time `json:"left_at,omitempty"`
	WatchSeconds  int64      `json:"watch_seconds"`
}
