package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

const (
	getSessionByTokenQuery = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE token = $1
	`
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at <= $1`
)

// SessionRepository reads sessions issued by the platform auth service
type SessionRepository struct {
	db                *sql.DB
	getByTokenStmt    *sql.Stmt
	deleteExpiredStmt *sql.Stmt
	now               func() time.Time
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	repo := &SessionRepository{db: db, now: time.Now}

	var err error
	repo.getByTokenStmt, err = db.Prepare(getSessionByTokenQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByToken statement: %w", err)
	}

	repo.deleteExpiredStmt, err = db.Prepare(deleteExpiredSessionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteExpired statement: %w", err)
	}

	return repo, nil
}

// GetByToken returns ErrSessionExpired for a known token past its expiry.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	session := &domain.Session{}
	err := r.getByTokenStmt.QueryRowContext(ctx, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	if session.Expired(r.now()) {
		return nil, domain.ErrSessionExpired
	}
	return session, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.deleteExpiredStmt.ExecContext(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
