package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository provides operations on admin sessions.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sessions (token, admin_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`,
		s.Token,
		s.AdminID,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a session by token.
func (r *SessionRepository) Get(ctx context.Context, token string) (*Session, error) {
	s := &Session{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT token, admin_id, created_at, expires_at
		FROM sessions WHERE token = $1
	`, token).Scan(
		&s.Token,
		&s.AdminID,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Delete removes a session row. Deleting a missing token is not an error,
// so revocation stays idempotent.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.Pool.Exec(ctx, "DELETE FROM sessions WHERE token = $1", token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes all sessions past their expiry and reports how many
// were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
