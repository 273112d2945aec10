// Package session implements the per-client chat session: room list and
// message loading with watchdogs and bounded retry, realtime merging, and the
// send, reply and like operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/realtime"
)

const (
	roomsWatchdogTimeout    = 6 * time.Second
	messagesWatchdogTimeout = 8 * time.Second
)

// User-facing texts
const (
	msgRoomsTimeout    = "Loading rooms took too long. Please try again."
	msgRoomsFailed     = "Failed to load rooms."
	msgMessagesTimeout = "Loading messages took too long. Please try again."
	msgMessagesFailed  = "Failed to load messages."
	msgRetrying        = "Connection problem, retrying..."
	msgSendFailed      = "Failed to send message."
	msgLikeFailed      = "Failed to update like."
)

var (
	ErrClosed       = errors.New("session closed")
	ErrNoActiveRoom = errors.New("no active room")
)

// RoomSource lists the available rooms
type RoomSource interface {
	GetRooms(ctx context.Context) ([]domain.Room, error)
}

// MessageSource loads the latest messages of a room
type MessageSource interface {
	GetMessages(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Mutator performs backend mutations
type Mutator interface {
	Send(ctx context.Context, roomID, userID, content, replyTo string) (*domain.Message, error)
	Like(ctx context.Context, messageID string, likes int) (int, error)
}

// RoomMemory remembers the last room a user had open
type RoomMemory interface {
	LastRoom(ctx context.Context, userID string) (string, bool)
	SetLastRoom(ctx context.Context, userID, roomID string)
}

// ReplyTarget is the message the next send replies to
type ReplyTarget struct {
	MessageID string `json:"message_id"`
	Username  string `json:"username"`
}

// Snapshot is the observable state of a session
type Snapshot struct {
	Rooms         []domain.Room    `json:"rooms"`
	RoomsPhase    Phase            `json:"rooms_phase"`
	RoomsError    string           `json:"rooms_error,omitempty"`
	ActiveRoomID  string           `json:"active_room_id,omitempty"`
	Phase         Phase            `json:"phase"`
	Error         string           `json:"error,omitempty"`
	Retrying      bool             `json:"retrying"`
	CanRetry      bool             `json:"can_retry"`
	Connected     bool             `json:"connected"`
	Messages      []domain.Message `json:"messages"`
	ReplyTo       *ReplyTarget     `json:"reply_to,omitempty"`
	LoadAttempts  int              `json:"load_attempts"`
	RoomsAttempts int              `json:"rooms_attempts"`
}

// Update is delivered to the observer after every state change. Notice is a
// transient message for the user, possibly empty.
type Update struct {
	Snapshot Snapshot
	Notice   string
}

// Config wires a Controller to its collaborators. Memory, Clock and Observer
// are optional.
type Config struct {
	UserID string
	// InitialRoomID is selected once the room list is ready. When empty the
	// last room of the user, then the default room, then the first room is used.
	InitialRoomID string
	DefaultRoom   string

	Rooms      RoomSource
	Messages   MessageSource
	Subscriber realtime.Subscriber
	Mutator    Mutator
	Memory     RoomMemory
	Clock      clockwork.Clock
	Observer   func(Update)
}

// loader drives one Load machine and owns its timers.
type loader struct {
	name          string
	state         Load
	watchdog      time.Duration
	watchdogTimer clockwork.Timer
	retryTimer    clockwork.Timer
	fetch         func(epoch uint64)
	ready         func(epoch uint64)
}

// Controller owns one client's chat session. All state is confined to the
// goroutine running Run; public methods hand work to it.
type Controller struct {
	cfg   Config
	clock clockwork.Clock

	actions chan func()
	closing chan struct{}
	done    chan struct{}

	ctx    context.Context
	logger *slog.Logger

	rooms       []domain.Room
	lastRoom    string
	roomsLoader *loader

	activeRoom string
	msgsLoader *loader
	timeline   *Timeline
	sub        *realtime.Subscription
	connected  bool
	replyTo    *ReplyTarget
}

// NewController creates a session. It does nothing until Run is called.
func NewController(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Controller{
		cfg:      cfg,
		clock:    clock,
		actions:  make(chan func()),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		timeline: NewTimeline(),
	}
	c.roomsLoader = &loader{name: "rooms", watchdog: roomsWatchdogTimeout, fetch: c.fetchRooms, ready: c.onRoomsReady}
	c.msgsLoader = &loader{name: "messages", watchdog: messagesWatchdogTimeout, fetch: c.fetchMessages, ready: c.onMessagesReady}
	return c
}

// Run loads the room list and processes session work until ctx is done or
// Close is called. Teardown unsubscribes and stops every timer.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(observability.WithUserID(ctx, c.cfg.UserID))
	defer cancel()
	c.ctx = ctx
	c.logger = observability.FromContext(ctx)

	defer close(c.done)
	defer c.teardown()

	c.apply(c.roomsLoader, Event{Kind: EventStart})
	c.publish("")

	for {
		select {
		case fn := <-c.actions:
			fn()
		case <-c.closing:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the session. It does not wait; see Done.
func (c *Controller) Close() {
	select {
	case <-c.closing:
	default:
		close(c.closing)
	}
}

// Done is closed once Run has returned and the session is torn down
func (c *Controller) Done() <-chan struct{} { return c.done }

// SelectRoom switches the session to roomID, dropping all state of the
// previous room.
func (c *Controller) SelectRoom(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return domain.ErrInvalidInput
	}
	return c.do(func() {
		c.switchRoom(roomID)
		c.publish("")
	})
}

// Retry reloads the messages of the active room and resets the automatic
// retry budget.
func (c *Controller) Retry() error {
	return c.call(func() error {
		if c.activeRoom == "" {
			return ErrNoActiveRoom
		}
		c.dropSubscription()
		c.apply(c.msgsLoader, Event{Kind: EventManualRetry})
		c.publish("")
		return nil
	})
}

// RetryRooms reloads the room list and resets its automatic retry budget.
func (c *Controller) RetryRooms() error {
	return c.do(func() {
		c.apply(c.roomsLoader, Event{Kind: EventManualRetry})
		c.publish("")
	})
}

// Reply marks messageID as the target of the next send.
func (c *Controller) Reply(messageID string) error {
	return c.call(func() error {
		msg, ok := c.timeline.Get(messageID)
		if !ok {
			return domain.ErrMessageNotFound
		}
		c.replyTo = &ReplyTarget{MessageID: msg.ID, Username: msg.Author.Username}
		c.publish("")
		return nil
	})
}

// CancelReply clears the pending reply target
func (c *Controller) CancelReply() error {
	return c.do(func() {
		if c.replyTo != nil {
			c.replyTo = nil
			c.publish("")
		}
	})
}

// Send posts content to the active room, replying to the pending target if
// any. Blank content fails with domain.ErrEmptyContent without any backend
// call. On success the confirmed message is merged and the reply target
// cleared; on failure a notice is published and the error returned.
func (c *Controller) Send(ctx context.Context, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	var roomID, replyTo string
	err := c.call(func() error {
		if c.activeRoom == "" {
			return ErrNoActiveRoom
		}
		roomID = c.activeRoom
		if c.replyTo != nil {
			replyTo = c.replyTo.MessageID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg, err := c.cfg.Mutator.Send(ctx, roomID, c.cfg.UserID, content, replyTo)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContent) || errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		_ = c.do(func() { c.publish(msgSendFailed) })
		if !errors.Is(err, domain.ErrMutationFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrMutationFailed, err)
		}
		return nil, err
	}

	confirmed := *msg
	_ = c.do(func() {
		if c.activeRoom != roomID {
			return
		}
		c.timeline.Merge(confirmed)
		if c.replyTo != nil && c.replyTo.MessageID == replyTo {
			c.replyTo = nil
		}
		c.publish("")
	})
	return msg, nil
}

// Like adds or removes the user's like on a message. The new count is shown
// at once and replaced by the backend-confirmed count on success. A failed
// update keeps the optimistic count and publishes a notice.
func (c *Controller) Like(ctx context.Context, messageID string, liked bool) error {
	var roomID string
	var likes int
	err := c.call(func() error {
		msg, ok := c.timeline.Get(messageID)
		if !ok {
			return domain.ErrMessageNotFound
		}
		likes = msg.Likes - 1
		if liked {
			likes = msg.Likes + 1
		}
		likes = max(0, likes)
		roomID = c.activeRoom
		c.timeline.SetLikes(messageID, likes)
		c.publish("")
		return nil
	})
	if err != nil {
		return err
	}

	confirmed, err := c.cfg.Mutator.Like(ctx, messageID, likes)
	if err != nil {
		observability.FromContext(ctx).Warn("like update failed",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		_ = c.do(func() { c.publish(msgLikeFailed) })
		if !errors.Is(err, domain.ErrMutationFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrMutationFailed, err)
		}
		return err
	}

	_ = c.do(func() {
		if c.activeRoom == roomID && c.timeline.SetLikes(messageID, confirmed) {
			c.publish("")
		}
	})
	return nil
}

// Snapshot returns the current session state
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.do(func() { snap = c.snapshot() })
	return snap, err
}

// do runs fn on the session goroutine and waits until it has run.
func (c *Controller) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case c.actions <- func() { fn(); close(ran) }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// call is do for work that returns an error.
func (c *Controller) call(fn func() error) error {
	var err error
	if doErr := c.do(func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// post hands fn to the session goroutine without waiting. It is used by
// workers and timers; work posted after teardown is dropped.
func (c *Controller) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.done:
	}
}

func (c *Controller) apply(l *loader, ev Event) {
	next, effects := l.state.Apply(ev)
	l.state = next

	for _, eff := range effects {
		switch eff.Kind {
		case EffectFetch:
			l.fetch(eff.Epoch)
		case EffectArmWatchdog:
			epoch := eff.Epoch
			stopTimer(l.watchdogTimer)
			l.watchdogTimer = c.clock.AfterFunc(l.watchdog, func() {
				c.post(func() {
					if l.state.Accepts(epoch) {
						c.logger.Warn("load watchdog fired", slog.String("resource", l.name))
						c.apply(l, Event{Kind: EventWatchdog, Epoch: epoch})
						c.publish(c.failureNotice(l))
					}
				})
			})
		case EffectDisarmWatchdog:
			stopTimer(l.watchdogTimer)
			l.watchdogTimer = nil
		case EffectScheduleRetry:
			epoch := eff.Epoch
			stopTimer(l.retryTimer)
			observability.LoadRetriesTotal.WithLabelValues(l.name).Inc()
			c.logger.Info("scheduling load retry",
				slog.String("resource", l.name),
				slog.Int("failures", l.state.Failures),
				slog.Duration("delay", eff.Delay),
			)
			l.retryTimer = c.clock.AfterFunc(eff.Delay, func() {
				c.post(func() {
					c.apply(l, Event{Kind: EventRetryDue, Epoch: epoch})
					c.publish("")
				})
			})
		case EffectCancelRetry:
			stopTimer(l.retryTimer)
			l.retryTimer = nil
		case EffectReady:
			l.ready(eff.Epoch)
		}
	}
}

func (c *Controller) failureNotice(l *loader) string {
	if l.state.RetryPending {
		return msgRetrying
	}
	return ""
}

func (c *Controller) fetchRooms(epoch uint64) {
	ctx := c.ctx
	go func() {
		rooms, err := c.cfg.Rooms.GetRooms(ctx)
		var lastRoom string
		if err == nil && c.cfg.Memory != nil {
			lastRoom, _ = c.cfg.Memory.LastRoom(ctx, c.cfg.UserID)
		}
		c.post(func() {
			if !c.roomsLoader.state.Accepts(epoch) {
				return
			}
			if err != nil {
				c.logger.Warn("room list load failed", slog.String("error", err.Error()))
				c.apply(c.roomsLoader, Event{Kind: EventFailed, Epoch: epoch, Cause: causeOf(err)})
				c.publish(c.failureNotice(c.roomsLoader))
				return
			}
			c.rooms = rooms
			c.lastRoom = lastRoom
			c.apply(c.roomsLoader, Event{Kind: EventSucceeded, Epoch: epoch})
			c.publish("")
		})
	}()
}

func (c *Controller) onRoomsReady(uint64) {
	if c.activeRoom != "" {
		return
	}
	if roomID := c.initialRoom(); roomID != "" {
		c.switchRoom(roomID)
	}
}

func (c *Controller) initialRoom() string {
	if c.cfg.InitialRoomID != "" {
		return c.cfg.InitialRoomID
	}
	if c.lastRoom != "" {
		for _, r := range c.rooms {
			if r.ID == c.lastRoom {
				return r.ID
			}
		}
	}
	for _, r := range c.rooms {
		if r.Name == c.cfg.DefaultRoom {
			return r.ID
		}
	}
	if len(c.rooms) > 0 {
		return c.rooms[0].ID
	}
	return ""
}

func (c *Controller) switchRoom(roomID string) {
	c.dropSubscription()
	c.timeline.Reset()
	c.replyTo = nil
	c.activeRoom = roomID

	if c.cfg.Memory != nil {
		ctx, userID := c.ctx, c.cfg.UserID
		go c.cfg.Memory.SetLastRoom(ctx, userID, roomID)
	}
	c.apply(c.msgsLoader, Event{Kind: EventStart})
}

func (c *Controller) fetchMessages(epoch uint64) {
	ctx, roomID := observability.WithRoomID(c.ctx, c.activeRoom), c.activeRoom
	go func() {
		messages, err := c.cfg.Messages.GetMessages(ctx, roomID)
		c.post(func() {
			// a room switch or retry since the request started supersedes it
			if !c.msgsLoader.state.Accepts(epoch) || c.activeRoom != roomID {
				return
			}
			if err != nil {
				c.logger.Warn("message load failed",
					slog.String("room_id", roomID),
					slog.String("error", err.Error()),
				)
				c.apply(c.msgsLoader, Event{Kind: EventFailed, Epoch: epoch, Cause: causeOf(err)})
				c.publish(c.failureNotice(c.msgsLoader))
				return
			}
			c.timeline.Merge(messages...)
			c.apply(c.msgsLoader, Event{Kind: EventSucceeded, Epoch: epoch})
			c.publish("")
		})
	}()
}

func (c *Controller) onMessagesReady(epoch uint64) {
	if c.cfg.Subscriber == nil {
		return
	}
	ctx, roomID := observability.WithRoomID(c.ctx, c.activeRoom), c.activeRoom
	go func() {
		sub, err := c.cfg.Subscriber.Subscribe(ctx, roomID)
		c.post(func() {
			current := c.msgsLoader.state.Phase == PhaseReady && c.msgsLoader.state.Epoch == epoch && c.activeRoom == roomID
			if !current {
				if sub != nil {
					sub.Unsubscribe()
				}
				return
			}
			if err != nil {
				c.logger.Warn("realtime subscribe failed",
					slog.String("room_id", roomID),
					slog.String("error", err.Error()),
				)
				c.connected = false
				c.publish("")
				return
			}
			c.sub = sub
			c.connected = true
			go c.forward(sub)
			c.publish("")
		})
	}()
}

// forward feeds the events of sub into the session goroutine until it ends.
func (c *Controller) forward(sub *realtime.Subscription) {
	messages, status := sub.Messages(), sub.Status()
	for messages != nil || status != nil {
		select {
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			c.post(func() {
				if c.sub == sub && c.timeline.Merge(msg) {
					c.publish("")
				}
			})
		case st, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			if st != realtime.StatusError {
				continue
			}
			c.post(func() {
				if c.sub == sub {
					c.sub = nil
					c.connected = false
					c.publish("")
				}
			})
		case <-c.done:
			return
		}
	}
}

func (c *Controller) dropSubscription() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	c.connected = false
}

func (c *Controller) teardown() {
	c.dropSubscription()
	for _, l := range []*loader{c.roomsLoader, c.msgsLoader} {
		stopTimer(l.watchdogTimer)
		stopTimer(l.retryTimer)
	}
}

func (c *Controller) publish(notice string) {
	if c.cfg.Observer == nil {
		return
	}
	c.cfg.Observer(Update{Snapshot: c.snapshot(), Notice: notice})
}

func (c *Controller) snapshot() Snapshot {
	rooms := make([]domain.Room, len(c.rooms))
	copy(rooms, c.rooms)

	snap := Snapshot{
		Rooms:         rooms,
		RoomsPhase:    c.roomsLoader.state.Phase,
		ActiveRoomID:  c.activeRoom,
		Phase:         c.msgsLoader.state.Phase,
		Retrying:      c.msgsLoader.state.RetryPending,
		CanRetry:      c.msgsLoader.state.Exhausted(),
		Connected:     c.connected,
		Messages:      c.timeline.Messages(),
		LoadAttempts:  c.msgsLoader.state.Failures,
		RoomsAttempts: c.roomsLoader.state.Failures,
	}
	if c.roomsLoader.state.Phase == PhaseLoadError {
		snap.RoomsError = errorText(c.roomsLoader.state.Cause, msgRoomsTimeout, msgRoomsFailed)
	}
	if c.msgsLoader.state.Phase == PhaseLoadError {
		snap.Error = errorText(c.msgsLoader.state.Cause, msgMessagesTimeout, msgMessagesFailed)
	}
	if c.replyTo != nil {
		target := *c.replyTo
		snap.ReplyTo = &target
	}
	return snap
}

func errorText(cause Cause, timeout, failed string) string {
	if cause == CauseTimeout {
		return timeout
	}
	return failed
}

func causeOf(err error) Cause {
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	return CauseFailed
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}
