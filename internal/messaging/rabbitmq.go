package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ChangesExchange carries row change events of the chat tables
	ChangesExchange = "chat.changes"

	messageInsertPrefix = "messages.insert."
)

// MessageInsertKey returns the routing key of message inserts in a room
func MessageInsertKey(roomID string) string {
	return messageInsertPrefix + roomID
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until the broker accepts the connection or ctx
// is done, backing off exponentially between attempts.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	return backoff.RetryNotifyWithData(
		func() (*RabbitMQ, error) { return NewRabbitMQ(url) },
		backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			slog.Warn("rabbitmq not ready, retrying",
				slog.String("error", err.Error()),
				slog.Duration("wait", wait))
		},
	)
}

func (r *RabbitMQ) Setup() error {
	if err := DeclareChangesExchange(r.channel); err != nil {
		return err
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// DeclareChangesExchange declares the durable topic exchange for change events
func DeclareChangesExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		ChangesExchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare changes exchange: %w", err)
	}
	return nil
}

// PublishMessageInsert publishes a raw message row to subscribers of its room.
// Events are transient: a subscriber that is not bound when it is published
// catches up through its next fetch.
func (r *RabbitMQ) PublishMessageInsert(ctx context.Context, roomID, messageID string, body []byte) error {
	err := r.channel.PublishWithContext(
		ctx,
		ChangesExchange,
		MessageInsertKey(roomID),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message insert: %w", err)
	}

	slog.Debug("published message insert",
		slog.String("room_id", roomID),
		slog.String("message_id", messageID))
	return nil
}

// Channel opens a new channel on the shared connection
func (r *RabbitMQ) Channel() (*amqp.Channel, error) {
	if r.IsClosed() {
		return nil, amqp.ErrClosed
	}
	return r.conn.Channel()
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
