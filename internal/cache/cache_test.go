package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("store unavailable")
}
func (failingStore) Set(context.Context, string, Entry) error { return errors.New("store unavailable") }
func (failingStore) Delete(context.Context, string) error     { return errors.New("store unavailable") }

func TestService_Rooms(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(NewMemoryStore(), NewMemoryStore(), clock)
	ctx := context.Background()

	_, _, ok := svc.Rooms(ctx)
	assert.False(t, ok)

	rooms := []domain.Room{{ID: "1", Name: "General Chat", Type: domain.RoomTypeGeneral}}
	svc.SetRooms(ctx, rooms)
	capturedAt := clock.Now()

	clock.Advance(10 * time.Second)
	got, at, ok := svc.Rooms(ctx)
	require.True(t, ok)
	assert.Equal(t, "General Chat", got[0].Name)
	assert.Equal(t, capturedAt, at)
}

func TestService_MessagesAreScopedPerRoom(t *testing.T) {
	svc := NewService(NewMemoryStore(), NewMemoryStore(), clockwork.NewFakeClock())
	ctx := context.Background()

	svc.SetMessages(ctx, "r1", []domain.Message{{ID: "m1", RoomID: "r1", Content: "hi"}})

	assert.Len(t, svc.Messages(ctx, "r1"), 1)
	assert.Nil(t, svc.Messages(ctx, "r2"))
}

func TestService_LastRoom(t *testing.T) {
	svc := NewService(NewMemoryStore(), NewMemoryStore(), nil)
	ctx := context.Background()

	_, ok := svc.LastRoom(ctx, "user-1")
	assert.False(t, ok)

	svc.SetLastRoom(ctx, "user-1", "room-7")
	svc.SetLastRoom(ctx, "", "room-8")

	roomID, ok := svc.LastRoom(ctx, "user-1")
	assert.True(t, ok)
	assert.Equal(t, "room-7", roomID)
}

func TestService_Clear(t *testing.T) {
	durable, session := NewMemoryStore(), NewMemoryStore()
	svc := NewService(durable, session, clockwork.NewFakeClock())
	ctx := context.Background()

	svc.SetRooms(ctx, []domain.Room{{ID: "1", Name: "General Chat"}})
	svc.SetMessages(ctx, "r1", []domain.Message{{ID: "m1"}})
	svc.SetMessages(ctx, "r2", []domain.Message{{ID: "m2"}})
	svc.SetLastRoom(ctx, "user-1", "r1")

	svc.Clear(ctx)

	_, _, ok := svc.Rooms(ctx)
	assert.False(t, ok)
	assert.Nil(t, svc.Messages(ctx, "r1"))
	assert.Equal(t, 0, session.Len())
	// last-room markers survive a clear
	assert.Equal(t, 1, durable.Len())
}

func TestService_StoreFailuresAreMisses(t *testing.T) {
	svc := NewService(failingStore{}, failingStore{}, clockwork.NewFakeClock())
	ctx := context.Background()

	svc.SetRooms(ctx, []domain.Room{{ID: "1"}})
	svc.SetMessages(ctx, "r1", []domain.Message{{ID: "m1"}})

	_, _, ok := svc.Rooms(ctx)
	assert.False(t, ok)
	assert.Nil(t, svc.Messages(ctx, "r1"))
	assert.NotPanics(t, func() { svc.Clear(ctx) })
}

func TestService_MalformedPayloadIsMiss(t *testing.T) {
	durable := NewMemoryStore()
	require.NoError(t, durable.Set(context.Background(), roomsKey, Entry{Payload: []byte(`{"oops":`)}))

	svc := NewService(durable, NewMemoryStore(), clockwork.NewFakeClock())
	_, _, ok := svc.Rooms(context.Background())
	assert.False(t, ok)
}
