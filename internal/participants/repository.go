package participants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noor-canvas/backend/internal/models"
)

// ErrNotFound means no participant matches the lookup.
var ErrNotFound = errors.New("participant not found")

// Repository handles participant registration and attendance persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Register creates a participant identity for a session, or refreshes the
// existing one when the same name re-registers. The identity guid is stable
// across re-registrations so a returning participant keeps their identity.
func (r *Repository) Register(ctx context.Context, sessionID uuid.UUID, name, country string) (*models.Participant, error) {
	const q = `INSERT INTO participants (session_id, user_guid, name, country)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, name) DO UPDATE SET country = EXCLUDED.country
		RETURNING id, session_id, user_guid, name, country, registered_at`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, sessionID, uuid.New().String(), name, country).
		Scan(&p.ID, &p.SessionID, &p.UserGuid, &p.Name, &p.Country, &p.RegisteredAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByGuid returns the participant a session identity guid resolves to.
func (r *Repository) GetByGuid(ctx context.Context, sessionID uuid.UUID, userGuid string) (*models.Participant, error) {
	const q = `SELECT id, session_id, user_guid, name, country, registered_at
		FROM participants WHERE session_id = $1 AND user_guid = $2`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, sessionID, userGuid).
		Scan(&p.ID, &p.SessionID, &p.UserGuid, &p.Name, &p.Country, &p.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListBySession returns all registered participants of a session.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_guid, name, country, registered_at
		 FROM participants WHERE session_id = $1 ORDER BY registered_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserGuid, &p.Name, &p.Country, &p.RegisteredAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CountBySession returns the number of registered participants.
func (r *Repository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// LogJoin inserts an attendance row when a participant connection registers.
func (r *Repository) LogJoin(ctx context.Context, sessionID, participantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attendance_logs (session_id, participant_id, joined_at) VALUES ($1, $2, NOW())`,
		sessionID, participantID)
	return err
}

// LogLeave closes the most recent open attendance row for the participant.
func (r *Repository) LogLeave(ctx context.Context, sessionID, participantID uuid.UUID, _ time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attendance_logs a
		 SET left_at = NOW(), watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - a.joined_at))::BIGINT)
		 FROM (SELECT id FROM attendance_logs
		       WHERE session_id = $1 AND participant_id = $2 AND left_at IS NULL
		       ORDER BY joined_at DESC LIMIT 1) AS sub
		 WHERE a.id = sub.id`,
		sessionID, participantID)
	return err
}

// ListAttendance returns a session's attendance rows, most recent join first.
func (r *Repository) ListAttendance(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT participant_id, session_id, joined_at, left_at, watch_seconds
		 FROM attendance_logs WHERE session_id = $1 ORDER BY joined_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendanceRow
	for rows.Next() {
		var a models.AttendanceRow
		if err := rows.Scan(&a.ParticipantID, &a.SessionID, &a.JoinedAt, &a.LeftAt, &a.WatchSeconds); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CloseOpenAttendance closes every open attendance row of a session at the
// given time. Used by the teardown worker after a session ends.
func (r *Repository) CloseOpenAttendance(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attendance_logs
		 SET left_at = $2, watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($2 - joined_at))::BIGINT)
		 WHERE session_id = $1 AND left_at IS NULL`,
		sessionID, endedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
