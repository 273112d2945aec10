package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

func newSessionRepository(t *testing.T, now time.Time) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPrepare(regexp.QuoteMeta(getSessionByTokenQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(deleteExpiredSessionsQuery))

	repo, err := NewSessionRepository(db)
	require.NoError(t, err)
	repo.now = func() time.Time { return now }
	return repo, mock
}

func TestSessionRepository_GetByToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid_session", func(t *testing.T) {
		repo, mock := newSessionRepository(t, now)

		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenQuery)).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}).
				AddRow("sess-1", "user-1", "tok-1", now.Add(time.Hour), now.Add(-time.Hour)))

		session, err := repo.GetByToken(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", session.UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown_token", func(t *testing.T) {
		repo, mock := newSessionRepository(t, now)

		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenQuery)).
			WithArgs("tok-unknown").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByToken(context.Background(), "tok-unknown")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("expired_at_boundary", func(t *testing.T) {
		repo, mock := newSessionRepository(t, now)

		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenQuery)).
			WithArgs("tok-old").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}).
				AddRow("sess-2", "user-1", "tok-old", now, now.Add(-24*time.Hour)))

		session, err := repo.GetByToken(context.Background(), "tok-old")
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
		assert.Nil(t, session)
	})

	t.Run("query_error", func(t *testing.T) {
		repo, mock := newSessionRepository(t, now)

		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenQuery)).
			WillReturnError(errors.New("conn reset"))

		_, err := repo.GetByToken(context.Background(), "tok-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns_rows_affected", func(t *testing.T) {
		repo, mock := newSessionRepository(t, now)

		mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSessionsQuery)).
			WithArgs(now).
			WillReturnResult(sqlmock.NewResult(0, 7))

		count, err := repo.DeleteExpired(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)
	})

	t.Run("exec_error", func(t *testing.T) {
		repo, mock := newSessionRepository(t, now)

		mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSessionsQuery)).WillReturnError(errors.New("locked"))

		_, err := repo.DeleteExpired(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete expired sessions")
	})
}
