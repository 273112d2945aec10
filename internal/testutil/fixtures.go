package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewTestSession creates a test session with sensible defaults
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	o := &SessionOptions{
		ID:        nextID("session"),
		UserID:    nextID("user"),
		Token:     nextID("token"),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Session{
		ID:        o.ID,
		UserID:    o.UserID,
		Token:     o.Token,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}

// WithSessionUserID sets the user ID for the session
func WithSessionUserID(userID string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.UserID = userID
	}
}

// WithToken sets the session token
func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.Token = token
	}
}

// WithExpired creates an expired session
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = time.Now().Add(-1 * time.Hour)
	}
}

// NewTestRoom creates a general room with the given name
func NewTestRoom(name string, opts ...func(*domain.Room)) *domain.Room {
	r := &domain.Room{
		ID:        nextID("room"),
		Name:      name,
		Type:      domain.RoomTypeGeneral,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithRoomID sets the room ID
func WithRoomID(id string) func(*domain.Room) {
	return func(r *domain.Room) {
		r.ID = id
	}
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID        string
	RoomID    string
	UserID    string
	Content   string
	Likes     int
	ReplyTo   string
	CreatedAt time.Time
}

// NewTestMessage creates a test message with sensible defaults
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:        nextID("msg"),
		RoomID:    nextID("room"),
		UserID:    nextID("user"),
		Content:   "gg",
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Message{
		ID:        o.ID,
		RoomID:    o.RoomID,
		UserID:    o.UserID,
		Content:   o.Content,
		Likes:     o.Likes,
		ReplyTo:   o.ReplyTo,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.CreatedAt,
	}
}

// WithMessageID sets the message ID
func WithMessageID(id string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.ID = id
	}
}

// WithMessageRoomID sets the room ID for the message
func WithMessageRoomID(roomID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.RoomID = roomID
	}
}

// WithLikes sets the like counter
func WithLikes(likes int) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Likes = likes
	}
}

// WithMessageCreatedAt sets the message creation time
func WithMessageCreatedAt(t time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.CreatedAt = t
	}
}

// NewTestMessages creates count messages in one room, one second apart, oldest first
func NewTestMessages(roomID string, count int) []*domain.Message {
	base := time.Now().Add(-time.Duration(count) * time.Second)
	messages := make([]*domain.Message, count)
	for i := 0; i < count; i++ {
		messages[i] = NewTestMessage(
			WithMessageRoomID(roomID),
			WithMessageCreatedAt(base.Add(time.Duration(i)*time.Second)),
		)
	}
	return messages
}

// NewTestProfile creates a profile with the given username
func NewTestProfile(id, username string) *domain.Profile {
	return &domain.Profile{ID: id, Username: username, AvatarURL: "https://cdn.example/" + username + ".png"}
}
