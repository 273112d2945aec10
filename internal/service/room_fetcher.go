package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/cache"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

const (
	// RoomListLimit caps the rooms returned by one load.
	RoomListLimit = 10
	// RoomFreshness is how long a cached room list is served without a network call.
	RoomFreshness = 30 * time.Second
	// FallbackRoomID identifies the client-only default room record.
	FallbackRoomID = "default-room"

	roomAbortTimeout = 2500 * time.Millisecond
	roomRaceTimeout  = 3 * time.Second
)

// RoomFetcher loads the room list through the durable cache and keeps the
// well-known default room present in every non-empty result.
type RoomFetcher struct {
	rooms       domain.RoomRepository
	cache       *cache.Service
	clock       clockwork.Clock
	defaultRoom string
}

// NewRoomFetcher creates a RoomFetcher. defaultRoom is the reserved room name.
func NewRoomFetcher(rooms domain.RoomRepository, cache *cache.Service, clock clockwork.Clock, defaultRoom string) *RoomFetcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomFetcher{
		rooms:       rooms,
		cache:       cache,
		clock:       clock,
		defaultRoom: defaultRoom,
	}
}

// DefaultRoom returns the reserved room name
func (f *RoomFetcher) DefaultRoom() string {
	return f.defaultRoom
}

// GetRooms returns the available rooms ordered by name.
//
// Backend failures never surface: a stale cached list, or the built-in
// fallback list, is returned instead. The only error is ctx's own.
func (f *RoomFetcher) GetRooms(ctx context.Context) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := observability.FromContext(ctx)

	cached, capturedAt, hasCache := f.cache.Rooms(ctx)
	if hasCache && f.clock.Since(capturedAt) < RoomFreshness {
		observability.FetchOutcomesTotal.WithLabelValues("rooms", "fresh_cache").Inc()
		return cached, nil
	}

	list, err := raceTimeout(ctx, f.clock, roomAbortTimeout, roomRaceTimeout,
		func(ctx context.Context) ([]*domain.Room, error) {
			return f.rooms.List(ctx, RoomListLimit)
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrTimeout) {
			observability.FetchOutcomesTotal.WithLabelValues("rooms", "timeout").Inc()
		} else {
			observability.FetchOutcomesTotal.WithLabelValues("rooms", "error").Inc()
		}

		if hasCache && len(cached) > 0 {
			logger.Warn("room fetch failed, serving stale cache",
				slog.Duration("age", f.clock.Since(capturedAt)),
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
		logger.Warn("room fetch failed, serving fallback rooms", slog.String("error", err.Error()))
		return f.fallbackRooms(), nil
	}

	rooms := make([]domain.Room, 0, len(list)+1)
	hasDefault := false
	for _, r := range list {
		rooms = append(rooms, *r)
		if r.Name == f.defaultRoom {
			hasDefault = true
		}
	}
	if len(rooms) > 0 && !hasDefault {
		rooms = append(rooms, f.ensureDefaultRoom(ctx))
	}

	f.cache.SetRooms(ctx, rooms)
	observability.FetchOutcomesTotal.WithLabelValues("rooms", "network").Inc()
	return rooms, nil
}

// ensureDefaultRoom creates the reserved room server-side. A concurrent
// creator winning the unique name is resolved by reading its row; any other
// failure yields the synthetic record.
func (f *RoomFetcher) ensureDefaultRoom(ctx context.Context) domain.Room {
	logger := observability.FromContext(ctx)

	room := &domain.Room{Name: f.defaultRoom, Type: domain.RoomTypeGeneral}
	err := f.rooms.Create(ctx, room)
	if err == nil {
		logger.Info("default room created", slog.String("room_id", room.ID))
		return *room
	}

	if errors.Is(err, domain.ErrRoomExists) {
		existing, getErr := f.rooms.GetByName(ctx, f.defaultRoom)
		if getErr == nil {
			return *existing
		}
		err = getErr
	}

	logger.Warn("default room unavailable, using placeholder", slog.String("error", err.Error()))
	return f.syntheticDefaultRoom()
}

func (f *RoomFetcher) fallbackRooms() []domain.Room {
	return []domain.Room{f.syntheticDefaultRoom()}
}

func (f *RoomFetcher) syntheticDefaultRoom() domain.Room {
	return domain.Room{ID: FallbackRoomID, Name: f.defaultRoom, Type: domain.RoomTypeGeneral}
}
