// Package cache holds the advisory chat caches: a durable tier for room lists
// and last-room markers, and a session tier for per-room message lists.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

const (
	roomsKey          = "rooms"
	messagesKeyPrefix = "messages:"
	lastRoomKeyPrefix = "last_room:"
)

// Service is the typed facade over both cache tiers.
//
// Store failures never reach the caller: reads degrade to misses and writes
// are dropped after logging.
type Service struct {
	durable Store
	session Store
	clock   clockwork.Clock

	mu          sync.Mutex
	messageKeys map[string]struct{}
}

// NewService creates a cache service. A nil clock uses the wall clock.
func NewService(durable, session Store, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		durable:     durable,
		session:     session,
		clock:       clock,
		messageKeys: make(map[string]struct{}),
	}
}

// Rooms returns the cached room list and when it was captured.
func (s *Service) Rooms(ctx context.Context) ([]domain.Room, time.Time, bool) {
	var rooms []domain.Room
	entry, ok := s.read(ctx, s.durable, roomsKey, &rooms)
	if !ok {
		return nil, time.Time{}, false
	}
	return rooms, entry.CapturedAt, true
}

// SetRooms stores the room list stamped with the current time
func (s *Service) SetRooms(ctx context.Context, rooms []domain.Room) {
	s.write(ctx, s.durable, roomsKey, rooms)
}

// Messages returns the last known message list of a room, or nil.
func (s *Service) Messages(ctx context.Context, roomID string) []domain.Message {
	var messages []domain.Message
	if _, ok := s.read(ctx, s.session, messagesKeyPrefix+roomID, &messages); !ok {
		return nil
	}
	return messages
}

func (s *Service) SetMessages(ctx context.Context, roomID string, messages []domain.Message) {
	key := messagesKeyPrefix + roomID
	if s.write(ctx, s.session, key, messages) {
		s.mu.Lock()
		s.messageKeys[key] = struct{}{}
		s.mu.Unlock()
	}
}

// LastRoom returns the room a user last had open.
func (s *Service) LastRoom(ctx context.Context, userID string) (string, bool) {
	var roomID string
	if _, ok := s.read(ctx, s.durable, lastRoomKeyPrefix+userID, &roomID); !ok || roomID == "" {
		return "", false
	}
	return roomID, true
}

func (s *Service) SetLastRoom(ctx context.Context, userID, roomID string) {
	if userID == "" {
		return
	}
	s.write(ctx, s.durable, lastRoomKeyPrefix+userID, roomID)
}

// Clear drops the room list and every message list written through this service.
func (s *Service) Clear(ctx context.Context) {
	s.delete(ctx, s.durable, roomsKey)

	s.mu.Lock()
	keys := s.messageKeys
	s.messageKeys = make(map[string]struct{})
	s.mu.Unlock()

	for key := range keys {
		s.delete(ctx, s.session, key)
	}
}

func (s *Service) read(ctx context.Context, store Store, key string, dst any) (Entry, bool) {
	entry, ok, err := store.Get(ctx, key)
	if err != nil {
		observability.FromContext(ctx).Warn("cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		observability.FromContext(ctx).Warn("cache entry malformed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Entry{}, false
	}
	return entry, true
}

func (s *Service) write(ctx context.Context, store Store, key string, value any) bool {
	payload, err := json.Marshal(value)
	if err != nil {
		observability.FromContext(ctx).Warn("cache encode failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := store.Set(ctx, key, Entry{Payload: payload, CapturedAt: s.clock.Now()}); err != nil {
		observability.FromContext(ctx).Warn("cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (s *Service) delete(ctx context.Context, store Store, key string) {
	if err := store.Delete(ctx, key); err != nil {
		observability.FromContext(ctx).Warn("cache delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
