// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the chat gateway.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: backend unavailable")
)

// MockRoomRepository implements domain.RoomRepository for testing
type MockRoomRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc    func(ctx context.Context, room *domain.Room) error
	GetByNameFunc func(ctx context.Context, name string) (*domain.Room, error)
	ListFunc      func(ctx context.Context, limit int) ([]*domain.Room, error)

	// In-memory storage for simple tests
	Rooms     map[string]*domain.Room
	ListCalls int
}

// NewMockRoomRepository creates a new MockRoomRepository with initialized maps
func NewMockRoomRepository(rooms ...*domain.Room) *MockRoomRepository {
	m := &MockRoomRepository{Rooms: make(map[string]*domain.Room)}
	for _, r := range rooms {
		m.Rooms[r.ID] = r
	}
	return m
}

func (m *MockRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, room)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.Rooms {
		if r.Name == room.Name {
			return domain.ErrRoomExists
		}
	}
	if room.ID == "" {
		room.ID = "room-" + room.Name
	}
	if room.Type == "" {
		room.Type = domain.RoomTypeGeneral
	}
	room.CreatedAt = time.Now()
	m.Rooms[room.ID] = room
	return nil
}

func (m *MockRoomRepository) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, name)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.Rooms {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (m *MockRoomRepository) List(ctx context.Context, limit int) ([]*domain.Room, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Room, 0, len(m.Rooms))
	for _, r := range m.Rooms {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Calls returns how many times List was invoked
func (m *MockRoomRepository) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ListCalls
}

// MockMessageRepository implements domain.MessageRepository for testing
type MockMessageRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc      func(ctx context.Context, message *domain.Message) error
	GetByIDFunc     func(ctx context.Context, id string) (*domain.Message, error)
	ListLatestFunc  func(ctx context.Context, roomID string, limit int) ([]*domain.Message, error)
	UpdateLikesFunc func(ctx context.Context, id string, likes int) (int, error)

	// In-memory storage
	Messages []*domain.Message
}

// NewMockMessageRepository creates a new MockMessageRepository with initialized slices
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{Messages: make([]*domain.Message, 0)}
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if message.ID == "" {
		message.ID = nextID("msg")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	message.UpdatedAt = message.CreatedAt
	stored := *message
	m.Messages = append(m.Messages, &stored)
	return nil
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.Messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *MockMessageRepository) ListLatest(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	if m.ListLatestFunc != nil {
		return m.ListLatestFunc(ctx, roomID, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*domain.Message{}
	for _, msg := range m.Messages {
		if msg.RoomID == roomID {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockMessageRepository) UpdateLikes(ctx context.Context, id string, likes int) (int, error) {
	if m.UpdateLikesFunc != nil {
		return m.UpdateLikesFunc(ctx, id, likes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if likes < 0 {
		likes = 0
	}
	for _, msg := range m.Messages {
		if msg.ID == id {
			msg.Likes = likes
			return likes, nil
		}
	}
	return 0, domain.ErrMessageNotFound
}

// MockProfileRepository implements domain.ProfileRepository for testing
type MockProfileRepository struct {
	mu sync.RWMutex

	GetByIDFunc func(ctx context.Context, id string) (*domain.Profile, error)

	Profiles map[string]*domain.Profile
}

// NewMockProfileRepository creates a MockProfileRepository seeded with profiles
func NewMockProfileRepository(profiles ...*domain.Profile) *MockProfileRepository {
	m := &MockProfileRepository{Profiles: make(map[string]*domain.Profile)}
	for _, p := range profiles {
		m.Profiles[p.ID] = p
	}
	return m
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.Profiles[id]; ok {
		return p, nil
	}
	return nil, domain.ErrProfileNotFound
}

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	// In-memory storage
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{Sessions: make(map[string]*domain.Session)}
}

// Add stores a session keyed by its token
func (m *MockSessionRepository) Add(session *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[session.Token] = session
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.Sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Expired(time.Now()) {
		return nil, domain.ErrSessionExpired
	}
	return session, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for token, session := range m.Sessions {
		if session.Expired(now) {
			delete(m.Sessions, token)
			count++
		}
	}
	return count, nil
}
