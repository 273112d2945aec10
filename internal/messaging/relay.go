package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// InsertChannel is the NOTIFY channel carrying every message insert
const InsertChannel = "messages_insert"

// Publisher publishes message insert events
type Publisher interface {
	PublishMessageInsert(ctx context.Context, roomID, messageID string, body []byte) error
}

// insertEvent holds the routing fields of a notified message row
type insertEvent struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
}

// Relay forwards database insert notifications to the broker.
type Relay struct {
	publisher     Publisher
	notifications <-chan *pq.Notification
}

func NewRelay(publisher Publisher, notifications <-chan *pq.Notification) *Relay {
	return &Relay{
		publisher:     publisher,
		notifications: notifications,
	}
}

// Run forwards notifications until ctx is done or the notification channel closes.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping message relay")
			return
		case n, ok := <-r.notifications:
			if !ok {
				slog.Warn("relay notification channel closed")
				return
			}
			// the listener reconnected; inserts in between were not notified
			if n == nil {
				slog.Warn("relay listener reconnected, events may have been missed")
				continue
			}
			r.forward(ctx, []byte(n.Extra))
		}
	}
}

func (r *Relay) forward(ctx context.Context, body []byte) {
	var event insertEvent
	if err := json.Unmarshal(body, &event); err != nil || event.RoomID == "" {
		slog.Error("error decoding insert notification",
			slog.Int("body_size", len(body)))
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if err := r.publisher.PublishMessageInsert(ctx, event.RoomID, event.ID, body); err != nil {
		slog.Error("error relaying message insert",
			slog.String("room_id", event.RoomID),
			slog.String("message_id", event.ID),
			slog.String("error", err.Error()))
	}
}
