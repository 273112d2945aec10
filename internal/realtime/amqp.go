package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/messaging"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

// DriverRabbitMQ names the broker driver
const DriverRabbitMQ = "rabbitmq"

// ChannelOpener opens AMQP channels. *amqp.Connection and *messaging.RabbitMQ
// both satisfy it.
type ChannelOpener interface {
	Channel() (*amqp.Channel, error)
}

// AMQPSubscriber subscribes through the chat.changes topic exchange fed by
// the relay. Every subscription owns one channel and one exclusive queue.
type AMQPSubscriber struct {
	conn    ChannelOpener
	authors AuthorResolver
}

// NewAMQPSubscriber creates an AMQPSubscriber
func NewAMQPSubscriber(conn ChannelOpener, authors AuthorResolver) *AMQPSubscriber {
	return &AMQPSubscriber{conn: conn, authors: authors}
}

func (a *AMQPSubscriber) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscriptionFailed, err)
	}
	logger := observability.FromContext(ctx).With(slog.String("room_id", roomID))

	ch, err := a.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open channel: %v", domain.ErrSubscriptionFailed, err)
	}

	deliveries, err := bindRoomQueue(ch, roomID)
	if err != nil {
		ch.Close()
		logger.Warn("realtime subscribe failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscriptionFailed, err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	failures := make(chan error, 1)
	payloads := make(chan []byte)
	stop := make(chan struct{})

	go func() {
		defer close(payloads)
		for {
			select {
			case <-stop:
				return
			case amqpErr, ok := <-closed:
				if ok && amqpErr != nil {
					failures <- amqpErr
				}
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case payloads <- d.Body:
				case <-stop:
					return
				}
			}
		}
	}()

	var closeOnce sync.Once
	logger.Debug("realtime subscribed", slog.String("driver", DriverRabbitMQ))
	return NewSubscription(ctx, DriverRabbitMQ, roomID, a.authors, Source{
		Payloads: payloads,
		Failures: failures,
		Close: func() {
			closeOnce.Do(func() {
				close(stop)
				ch.Close()
			})
		},
	}), nil
}

func bindRoomQueue(ch *amqp.Channel, roomID string) (<-chan amqp.Delivery, error) {
	if err := messaging.DeclareChangesExchange(ch); err != nil {
		return nil, err
	}

	queue, err := ch.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare room queue: %w", err)
	}

	if err := ch.QueueBind(
		queue.Name,
		messaging.MessageInsertKey(roomID),
		messaging.ChangesExchange,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to bind room queue: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return deliveries, nil
}
