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

var messageColumns = []string{"id", "room_id", "user_id", "content", "created_at", "updated_at", "likes", "reply_to"}

func setupMessageRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(createMessageQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(getMessageByIDQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(listLatestMessagesQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(updateMessageLikesQuery))
}

func newMessageRepository(t *testing.T) (*MessageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupMessageRepositoryMocks(mock)
	repo, err := NewMessageRepository(db)
	require.NoError(t, err)
	return repo, mock
}

func TestNewMessageRepository(t *testing.T) {
	t.Run("fails_when_prepare_list_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(createMessageQuery))
		mock.ExpectPrepare(regexp.QuoteMeta(getMessageByIDQuery))
		mock.ExpectPrepare(regexp.QuoteMeta(listLatestMessagesQuery)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewMessageRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare listLatest statement")
	})
}

func TestMessageRepository_Create(t *testing.T) {
	t.Run("plain_message", func(t *testing.T) {
		repo, mock := newMessageRepository(t)
		now := time.Now()

		mock.ExpectQuery(regexp.QuoteMeta(createMessageQuery)).
			WithArgs("room-1", "user-1", "gg wp", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "likes"}).
				AddRow("msg-1", now, now, 0))

		msg := &domain.Message{RoomID: "room-1", UserID: "user-1", Content: "gg wp"}
		require.NoError(t, repo.Create(context.Background(), msg))

		assert.Equal(t, "msg-1", msg.ID)
		assert.Equal(t, now, msg.CreatedAt)
		assert.Equal(t, 0, msg.Likes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reply_message", func(t *testing.T) {
		repo, mock := newMessageRepository(t)
		now := time.Now()

		mock.ExpectQuery(regexp.QuoteMeta(createMessageQuery)).
			WithArgs("room-1", "user-2", "agreed", sql.NullString{String: "msg-1", Valid: true}).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "likes"}).
				AddRow("msg-2", now, now, 0))

		msg := &domain.Message{RoomID: "room-1", UserID: "user-2", Content: "agreed", ReplyTo: "msg-1"}
		require.NoError(t, repo.Create(context.Background(), msg))
		assert.Equal(t, "msg-2", msg.ID)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newMessageRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(createMessageQuery)).WillReturnError(errors.New("foreign key violation"))

		err := repo.Create(context.Background(), &domain.Message{RoomID: "missing", UserID: "user-1", Content: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create message")
	})
}

func TestMessageRepository_ListLatest(t *testing.T) {
	t.Run("returns_rows_newest_first", func(t *testing.T) {
		repo, mock := newMessageRepository(t)
		t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		t2 := t1.Add(time.Minute)

		mock.ExpectQuery(regexp.QuoteMeta(listLatestMessagesQuery)).
			WithArgs("room-1", 20).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("msg-2", "room-1", "user-2", "second", t2, t2, 3, "msg-1").
				AddRow("msg-1", "room-1", "user-1", "first", t1, t1, 0, nil))

		messages, err := repo.ListLatest(context.Background(), "room-1", 20)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "msg-2", messages[0].ID)
		assert.Equal(t, "msg-1", messages[0].ReplyTo)
		assert.Equal(t, 3, messages[0].Likes)
		assert.Empty(t, messages[1].ReplyTo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		repo, mock := newMessageRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(listLatestMessagesQuery)).WillReturnError(context.DeadlineExceeded)

		_, err := repo.ListLatest(context.Background(), "room-1", 20)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMessageRepository_GetByID(t *testing.T) {
	repo, mock := newMessageRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(getMessageByIDQuery)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	msg, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestMessageRepository_UpdateLikes(t *testing.T) {
	t.Run("returns_confirmed_count", func(t *testing.T) {
		repo, mock := newMessageRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(updateMessageLikesQuery)).
			WithArgs("msg-5", 4).
			WillReturnRows(sqlmock.NewRows([]string{"likes"}).AddRow(4))

		likes, err := repo.UpdateLikes(context.Background(), "msg-5", 4)
		require.NoError(t, err)
		assert.Equal(t, 4, likes)
	})

	t.Run("negative_counts_clamp_to_zero", func(t *testing.T) {
		repo, mock := newMessageRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(updateMessageLikesQuery)).
			WithArgs("msg-5", 0).
			WillReturnRows(sqlmock.NewRows([]string{"likes"}).AddRow(0))

		likes, err := repo.UpdateLikes(context.Background(), "msg-5", -1)
		require.NoError(t, err)
		assert.Equal(t, 0, likes)
	})

	t.Run("unknown_message", func(t *testing.T) {
		repo, mock := newMessageRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(updateMessageLikesQuery)).WillReturnError(sql.ErrNoRows)

		_, err := repo.UpdateLikes(context.Background(), "msg-x", 1)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}
