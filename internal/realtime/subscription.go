// Package realtime delivers newly inserted messages of a room as a stream of
// author-enriched events.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/profile"
)

// Status is the connection state of a subscription
type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

// Subscriber opens push channels scoped to one room.
type Subscriber interface {
	// Subscribe returns once the channel is established. Setup failures wrap
	// domain.ErrSubscriptionFailed. ctx bounds the setup only; the
	// subscription lives until Unsubscribe or until the channel breaks.
	Subscribe(ctx context.Context, roomID string) (*Subscription, error)
}

// AuthorResolver resolves display data for a user, never failing.
type AuthorResolver interface {
	Resolve(ctx context.Context, userID string) domain.Author
}

// Source is what a driver hands to a subscription: raw message rows, a
// signal that the channel broke, and a teardown function. Payloads closing
// while the subscription is live counts as a broken channel.
type Source struct {
	Payloads <-chan []byte
	Failures <-chan error
	Close    func()
}

// Subscription is a live push channel for one room.
//
// Messages is closed when the subscription ends. Status receives
// StatusSubscribed first, StatusError if the channel breaks, and StatusClosed
// last, after which it is closed.
type Subscription struct {
	roomID  string
	driver  string
	authors AuthorResolver
	src     Source

	messages chan domain.Message
	status   chan Status
	done     chan struct{}
	once     sync.Once
	cancel   context.CancelFunc
}

// NewSubscription starts delivering the payloads of src as enriched messages.
func NewSubscription(ctx context.Context, driver, roomID string, authors AuthorResolver, src Source) *Subscription {
	lifeCtx, cancel := context.WithCancel(context.WithoutCancel(observability.WithRoomID(ctx, roomID)))
	s := &Subscription{
		roomID:   roomID,
		driver:   driver,
		authors:  authors,
		src:      src,
		messages: make(chan domain.Message, 16),
		status:   make(chan Status, 3),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	observability.RealtimeSubscriptionsActive.WithLabelValues(driver).Inc()
	s.status <- StatusSubscribed
	go s.pump(lifeCtx)
	return s
}

// Messages returns the stream of enriched inserted messages.
func (s *Subscription) Messages() <-chan domain.Message { return s.messages }

// Status returns the connection state stream.
func (s *Subscription) Status() <-chan Status { return s.status }

// Unsubscribe tears the channel down. It is safe to call more than once and
// from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		if s.src.Close != nil {
			s.src.Close()
		}
		observability.RealtimeSubscriptionsActive.WithLabelValues(s.driver).Dec()
	})
}

func (s *Subscription) pump(ctx context.Context) {
	logger := observability.FromContext(ctx).With(slog.String("driver", s.driver))
	defer func() {
		close(s.messages)
		s.status <- StatusClosed
		close(s.status)
	}()

	payloads, failures := s.src.Payloads, s.src.Failures
	for {
		select {
		case <-s.done:
			return

		case err, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			if err == nil {
				continue
			}
			logger.Warn("realtime channel broke", slog.String("error", err.Error()))
			s.status <- StatusError
			s.Unsubscribe()
			return

		case raw, ok := <-payloads:
			if !ok {
				select {
				case <-s.done:
				default:
					logger.Warn("realtime channel closed by peer")
					s.status <- StatusError
					s.Unsubscribe()
				}
				return
			}

			msg, ok := s.enrich(ctx, logger, raw)
			if !ok {
				continue
			}
			select {
			case s.messages <- msg:
			case <-s.done:
				return
			}
		}
	}
}

// enrich decodes a raw row and attaches its author. Events are only skipped
// when they cannot be decoded or belong to another room.
func (s *Subscription) enrich(ctx context.Context, logger *slog.Logger, raw []byte) (domain.Message, bool) {
	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == "" {
		logger.Warn("dropping malformed realtime event", slog.Int("body_size", len(raw)))
		observability.RealtimeEventsTotal.WithLabelValues(s.driver, "malformed").Inc()
		return domain.Message{}, false
	}
	if msg.RoomID != s.roomID {
		logger.Debug("ignoring event for another room", slog.String("event_room_id", msg.RoomID))
		observability.RealtimeEventsTotal.WithLabelValues(s.driver, "foreign_room").Inc()
		return domain.Message{}, false
	}

	msg.Author = s.authors.Resolve(ctx, msg.UserID)
	if msg.Author.Username == profile.PlaceholderUsername {
		observability.RealtimeEventsTotal.WithLabelValues(s.driver, "placeholder_author").Inc()
	} else {
		observability.RealtimeEventsTotal.WithLabelValues(s.driver, "delivered").Inc()
	}
	return msg, true
}
