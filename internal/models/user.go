package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a platform account role (for the provisioning API, not for
// in-session authority, which is carried by the session token kind).
type Role string

const (
	RoleAdmin Role = "admin"
	RoleHost  Role = "host"
)

// User is a platform account allowed to provision sessions.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserPublic is the safe-to-return view of a User.
type UserPublic struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     Role      `json:"role"`
}

// Public converts a User to its public view.
func (u *User) Public() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}
