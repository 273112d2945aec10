package domain

import (
	"context"
	"time"
)

// Author is the display data of a message author, resolved from profiles
type Author struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Message represents a chat message
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Likes     int       `json:"likes"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Author    Author    `json:"author"`
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListLatest returns up to limit messages of a room, newest first.
	ListLatest(ctx context.Context, roomID string, limit int) ([]*Message, error)
	// UpdateLikes stores the like counter and returns the value the store confirmed.
	UpdateLikes(ctx context.Context, id string, likes int) (int, error)
}
