package domain

import (
	"context"
	"time"
)

// RoomType groups rooms in the room list panel
type RoomType string

const (
	RoomTypeGeneral RoomType = "general"
	RoomTypeGame    RoomType = "game"
	RoomTypeTeam    RoomType = "team"
)

// Valid reports whether t is one of the known room types
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeGeneral, RoomTypeGame, RoomTypeTeam:
		return true
	}
	return false
}

// Room represents a chat room
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        RoomType  `json:"type"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	UnreadCount int       `json:"unread_count,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// RoomRepository defines the interface for room data access
type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByName(ctx context.Context, name string) (*Room, error)
	List(ctx context.Context, limit int) ([]*Room, error)
}
