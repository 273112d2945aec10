package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

const (
	// DriverPostgres names the LISTEN/NOTIFY driver
	DriverPostgres = "postgres"

	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = 30 * time.Second
)

// RoomChannel returns the NOTIFY channel carrying inserts for a room.
func RoomChannel(roomID string) string {
	return "room_messages:" + roomID
}

// PGSubscriber subscribes through PostgreSQL LISTEN/NOTIFY, one listener
// connection per subscription.
type PGSubscriber struct {
	dsn     string
	authors AuthorResolver
}

// NewPGSubscriber creates a PGSubscriber for the database at dsn
func NewPGSubscriber(dsn string, authors AuthorResolver) *PGSubscriber {
	return &PGSubscriber{dsn: dsn, authors: authors}
}

func (p *PGSubscriber) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	logger := observability.FromContext(ctx).With(slog.String("room_id", roomID))

	connected := make(chan error, 1)
	failures := make(chan error, 1)
	var firstEvent sync.Once

	listener := pq.NewListener(p.dsn, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnected:
				firstEvent.Do(func() { connected <- nil })
			case pq.ListenerEventConnectionAttemptFailed:
				firstEvent.Do(func() { connected <- err })
			case pq.ListenerEventDisconnected:
				select {
				case failures <- fmt.Errorf("listener disconnected: %w", err):
				default:
				}
			}
		})

	if err := awaitListener(ctx, connected, func() error { return listener.Listen(RoomChannel(roomID)) }); err != nil {
		listener.Close()
		logger.Warn("realtime subscribe failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscriptionFailed, err)
	}

	payloads := make(chan []byte)
	stop := make(chan struct{})
	go func() {
		defer close(payloads)
		for {
			select {
			case <-stop:
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect; notifications may have been lost
				if n == nil {
					continue
				}
				select {
				case payloads <- []byte(n.Extra):
				case <-stop:
					return
				}
			}
		}
	}()

	var closeOnce sync.Once
	logger.Debug("realtime subscribed", slog.String("driver", DriverPostgres))
	return NewSubscription(ctx, DriverPostgres, roomID, p.authors, Source{
		Payloads: payloads,
		Failures: failures,
		Close: func() {
			closeOnce.Do(func() {
				close(stop)
				listener.Close()
			})
		},
	}), nil
}

// awaitListener waits for the first connection event, then runs listen,
// giving up when ctx is done. listen blocks until the server acknowledges.
func awaitListener(ctx context.Context, connected <-chan error, listen func() error) error {
	select {
	case err := <-connected:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	listened := make(chan error, 1)
	go func() { listened <- listen() }()

	select {
	case err := <-listened:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
