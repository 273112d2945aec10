package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/cache"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/profile"
)

const (
	// MessagePageSize is how many of the latest messages a room load returns.
	MessagePageSize = 20

	messageAbortTimeout = 2 * time.Second
	messageRaceTimeout  = 2500 * time.Millisecond
)

// MessageFetcher loads the latest messages of a room, degrading to the last
// known list from the session cache when the backend is slow or failing.
type MessageFetcher struct {
	messages domain.MessageRepository
	authors  *profile.Resolver
	cache    *cache.Service
	clock    clockwork.Clock
}

// NewMessageFetcher creates a MessageFetcher. A nil clock uses the wall clock.
func NewMessageFetcher(messages domain.MessageRepository, authors *profile.Resolver, cache *cache.Service, clock clockwork.Clock) *MessageFetcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MessageFetcher{
		messages: messages,
		authors:  authors,
		cache:    cache,
		clock:    clock,
	}
}

// GetMessages returns the latest messages of roomID in ascending creation order.
//
// It fails with domain.ErrTimeout or domain.ErrFetchFailed only when the
// backend did not answer usefully and nothing was cached for the room. It
// never retries.
func (f *MessageFetcher) GetMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	logger := observability.FromContext(ctx).With(slog.String("room_id", roomID))
	fallback := f.cache.Messages(ctx, roomID)

	page, err := raceTimeout(ctx, f.clock, messageAbortTimeout, messageRaceTimeout,
		func(ctx context.Context) ([]*domain.Message, error) {
			return f.messages.ListLatest(ctx, roomID, MessagePageSize)
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		timedOut := errors.Is(err, domain.ErrTimeout)
		if len(fallback) > 0 {
			logger.Warn("message fetch failed, serving cached messages",
				slog.Bool("timeout", timedOut),
				slog.String("error", err.Error()),
			)
			observability.FetchOutcomesTotal.WithLabelValues("messages", "cache_fallback").Inc()
			return fallback, nil
		}

		if timedOut {
			logger.Warn("message fetch timed out")
			observability.FetchOutcomesTotal.WithLabelValues("messages", "timeout").Inc()
			return nil, domain.ErrTimeout
		}
		logger.Error("message fetch failed", slog.String("error", err.Error()))
		observability.FetchOutcomesTotal.WithLabelValues("messages", "error").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	// newest first from the store, ascending for display
	messages := make([]domain.Message, len(page))
	for i, msg := range page {
		messages[len(page)-1-i] = *msg
	}
	f.authors.Attach(ctx, messages)

	f.cache.SetMessages(ctx, roomID, messages)
	observability.FetchOutcomesTotal.WithLabelValues("messages", "network").Inc()
	return messages, nil
}
