package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/noor-canvas/backend/internal/models"
	"github.com/noor-canvas/backend/internal/realtime"
)

// TokenResolution is the result of resolving either token kind.
type TokenResolution struct {
	Session *models.Session
	Role    realtime.Role
}

// Resolve maps an opaque token to its session and the role the token grants.
// An expired token behaves like an invalid one.
func (r *Repository) Resolve(ctx context.Context, token string) (*TokenResolution, error) {
	if !IsValidTokenFormat(token) {
		return nil, realtime.ErrInvalidToken
	}

	s, err := r.GetByHostToken(ctx, token)
	role := realtime.RoleHost
	if errors.Is(err, ErrNotFound) {
		s, err = r.GetByUserToken(ctx, token)
		role = realtime.RoleParticipant
	}
	if errors.Is(err, ErrNotFound) {
		return nil, realtime.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Before(time.Now()) {
		return nil, realtime.ErrInvalidToken
	}
	return &TokenResolution{Session: s, Role: role}, nil
}

// NewTokenValidator adapts the repository into the connect-time validator
// the realtime layer depends on.
func NewTokenValidator(repo *Repository) realtime.TokenValidator {
	return func(ctx context.Context, token string) (*realtime.SessionAccess, error) {
		res, err := repo.Resolve(ctx, token)
		if err != nil {
			return nil, err
		}
		return &realtime.SessionAccess{
			SessionID: res.Session.ID,
			Status:    res.Session.Status,
			Role:      res.Role,
		}, nil
	}
}
