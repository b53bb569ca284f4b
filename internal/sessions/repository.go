package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noor-canvas/backend/internal/models"
)

const sessionColumns = `id, title, description, host_token, user_token, status,
	started_at, ended_at, expires_at, peak_participants, created_by, created_at, updated_at`

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a session with a freshly generated token pair, retrying on
// the rare token collision.
func (r *Repository) Create(ctx context.Context, title, description string, createdBy uuid.UUID, expiresAt time.Time) (*models.Session, error) {
	const query = `INSERT INTO sessions (title, description, host_token, user_token, status, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sessionColumns
	for attempt := 0; attempt < 5; attempt++ {
		hostToken, userToken, err := GenerateTokenPair()
		if err != nil {
			return nil, err
		}
		s, err := r.scanOne(r.pool.QueryRow(ctx, query,
			title, description, hostToken, userToken, models.StatusCreated, expiresAt, createdBy))
		if err == nil {
			return s, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue // token collision, regenerate
		}
		return nil, err
	}
	return nil, fmt.Errorf("token pair generation exhausted retries")
}

// GetByID returns a session by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetByHostToken returns the session a host token resolves to.
func (r *Repository) GetByHostToken(ctx context.Context, token string) (*models.Session, error) {
	return r.getBy(ctx, "host_token = $1", token)
}

// GetByUserToken returns the session a user token resolves to.
func (r *Repository) GetByUserToken(ctx context.Context, token string) (*models.Session, error) {
	return r.getBy(ctx, "user_token = $1", token)
}

func (r *Repository) getBy(ctx context.Context, where string, arg interface{}) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + where
	s, err := r.scanOne(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// OpenWaiting moves a created session into the waiting room state.
func (r *Repository) OpenWaiting(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id,
		`UPDATE sessions SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		models.StatusWaiting, models.StatusCreated)
}

// Start activates a session. Legal only from created or waiting.
func (r *Repository) Start(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, started_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status IN ($3, $4)`,
		id, models.StatusActive, models.StatusCreated, models.StatusWaiting)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionFailure(ctx, id)
	}
	return nil
}

// End terminates a session. Ended is terminal, so ending twice fails with
// ErrAlreadyEnded.
func (r *Repository) End(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, ended_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status <> $2`,
		id, models.StatusEnded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionFailure(ctx, id)
	}
	return nil
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionFailure(ctx, id)
	}
	return nil
}

// transitionFailure distinguishes a missing session from an illegal
// transition for error reporting.
func (r *Repository) transitionFailure(ctx context.Context, id uuid.UUID) error {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if s.Status == models.StatusEnded {
		return ErrAlreadyEnded
	}
	return ErrInvalidTransition
}

// RotateTokens issues a fresh token pair for an existing session.
func (r *Repository) RotateTokens(ctx context.Context, id uuid.UUID, expiresAt time.Time) (*models.Session, error) {
	const query = `UPDATE sessions SET host_token = $2, user_token = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1 AND status <> $5
		RETURNING ` + sessionColumns
	for attempt := 0; attempt < 5; attempt++ {
		hostToken, userToken, err := GenerateTokenPair()
		if err != nil {
			return nil, err
		}
		s, err := r.scanOne(r.pool.QueryRow(ctx, query, id, hostToken, userToken, expiresAt, models.StatusEnded))
		if err == nil {
			return s, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyEnded
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("token pair generation exhausted retries")
}

// UpdatePeakParticipants raises the stored peak when count exceeds it.
func (r *Repository) UpdatePeakParticipants(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET peak_participants = $2, updated_at = NOW()
		 WHERE id = $1 AND peak_participants < $2`,
		id, count)
	return err
}

// ListExpired returns sessions past their token expiry that have not ended.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status <> $1 AND expires_at IS NOT NULL AND expires_at < $2`,
		models.StatusEnded, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		s, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanOne(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.HostToken, &s.UserToken, &s.Status,
		&s.StartedAt, &s.EndedAt, &s.ExpiresAt, &s.PeakParticipants, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
