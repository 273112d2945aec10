package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

const (
	createMessageQuery = `
		INSERT INTO messages (room_id, user_id, content, reply_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at, likes
	`
	getMessageByIDQuery = `
		SELECT id, room_id, user_id, content, created_at, updated_at, likes, reply_to
		FROM messages
		WHERE id = $1
	`
	listLatestMessagesQuery = `
		SELECT id, room_id, user_id, content, created_at, updated_at, likes, reply_to
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	updateMessageLikesQuery = `
		UPDATE messages SET likes = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING likes
	`
)

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db              *sql.DB
	createStmt      *sql.Stmt
	getByIDStmt     *sql.Stmt
	listLatestStmt  *sql.Stmt
	updateLikesStmt *sql.Stmt
}

// NewMessageRepository creates a new MessageRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewMessageRepository(db *sql.DB) (*MessageRepository, error) {
	repo := &MessageRepository{db: db}

	var err error
	repo.createStmt, err = db.Prepare(createMessageQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getByIDStmt, err = db.Prepare(getMessageByIDQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByID statement: %w", err)
	}

	repo.listLatestStmt, err = db.Prepare(listLatestMessagesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare listLatest statement: %w", err)
	}

	repo.updateLikesStmt, err = db.Prepare(updateMessageLikesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare updateLikes statement: %w", err)
	}

	return repo, nil
}

// Create inserts a new message; id, timestamps and likes are filled from the row
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	err := r.createStmt.QueryRowContext(ctx,
		message.RoomID,
		message.UserID,
		message.Content,
		nullString(message.ReplyTo),
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt, &message.Likes)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID retrieves a single message
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := scanMessage(r.getByIDStmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListLatest retrieves the newest messages of a room, newest first
func (r *MessageRepository) ListLatest(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	rows, err := r.listLatestStmt.QueryContext(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// UpdateLikes sets the like counter of a message
func (r *MessageRepository) UpdateLikes(ctx context.Context, id string, likes int) (int, error) {
	if likes < 0 {
		likes = 0
	}
	var confirmed int
	err := r.updateLikesStmt.QueryRowContext(ctx, id, likes).Scan(&confirmed)
	if err == sql.ErrNoRows {
		return 0, domain.ErrMessageNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update likes: %w", err)
	}
	return confirmed, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		msg     domain.Message
		replyTo sql.NullString
	)
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.UserID,
		&msg.Content,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.Likes,
		&replyTo,
	)
	if err != nil {
		return nil, err
	}
	msg.ReplyTo = replyTo.String
	return &msg, nil
}
