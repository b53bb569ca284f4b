package questions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noor-canvas/backend/internal/models"
)

// ErrNotFound means no question matches the lookup.
var ErrNotFound = errors.New("question not found")

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new question.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (session_id, participant_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, q.SessionID, q.ParticipantID, q.Text).
		Scan(&q.ID, &q.CreatedAt)
}

// GetByID returns a question with its submitter's display name.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	const query = `SELECT q.id, q.session_id, q.participant_id, p.name, q.text, q.answered, q.created_at
		FROM questions q JOIN participants p ON p.id = q.participant_id
		WHERE q.id = $1`
	var q models.Question
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&q.ID, &q.SessionID, &q.ParticipantID, &q.ParticipantName, &q.Text, &q.Answered, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// MarkAnswered sets a question's answered flag. Fails with ErrNotFound when
// the question does not belong to the session.
func (r *Repository) MarkAnswered(ctx context.Context, sessionID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions SET answered = TRUE WHERE id = $1 AND session_id = $2`,
		id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBySession returns all questions of a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.session_id, q.participant_id, p.name, q.text, q.answered, q.created_at
		 FROM questions q JOIN participants p ON p.id = q.participant_id
		 WHERE q.session_id = $1 ORDER BY q.created_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.SessionID, &q.ParticipantID, &q.ParticipantName, &q.Text, &q.Answered, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// CountBySession returns the number of questions of a session.
func (r *Repository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}
