package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 64
	actionTimeout  = 5 * time.Second

	// Sends and likes per client
	actionRate  = 5
	actionBurst = 10
)

// Client message types
const (
	TypeSelectRoom  = "select_room"
	TypeSend        = "send"
	TypeReply       = "reply"
	TypeCancelReply = "cancel_reply"
	TypeLike        = "like"
	TypeRetry       = "retry"
	TypeRetryRooms  = "retry_rooms"
)

// Server message types
const (
	TypeState  = "state"
	TypeNotice = "notice"
	TypeError  = "error"
)

var (
	errUnknownType = errors.New("unknown message type")
	errRateLimited = errors.New("rate limited")
)

// Session is the chat session driven by one connection.
type Session interface {
	Run(ctx context.Context) error
	SelectRoom(roomID string) error
	Retry() error
	RetryRooms() error
	Reply(messageID string) error
	CancelReply() error
	Send(ctx context.Context, content string) (*domain.Message, error)
	Like(ctx context.Context, messageID string, liked bool) error
}

// SessionFactory creates the session of a user, opening roomID first when it
// is set. Every state change must be reported through observer, which never
// blocks.
type SessionFactory func(userID, roomID string, observer func(session.Update)) Session

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	session   Session
	limiter   *rate.Limiter
	writeMu   sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
	logger    *slog.Logger
}

type ClientMessage struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Liked     bool   `json:"liked,omitempty"`
}

type ServerMessage struct {
	Type    string            `json:"type"`
	State   *session.Snapshot `json:"state,omitempty"`
	Message string            `json:"message,omitempty"`
}

func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, userID, roomID string, newSession SessionFactory) *Client {
	clientCtx, cancel := context.WithCancel(observability.WithUserID(ctx, userID))

	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		userID:    userID,
		limiter:   rate.NewLimiter(actionRate, actionBurst),
		ctx:       clientCtx,
		ctxCancel: cancel,
		logger:    observability.FromContext(clientCtx),
	}
	c.session = newSession(userID, roomID, c.deliver)
	return c
}

// Close ends the session and the connection
func (c *Client) Close() {
	c.ctxCancel()
}

// ReadPump runs the session and dispatches client messages to it until the
// connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.ctxCancel()
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	go func() {
		if err := c.session.Run(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("chat session ended", slog.String("error", err.Error()))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", slog.String("error", err.Error()))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid message format", slog.String("error", err.Error()))
			c.enqueue(ServerMessage{Type: TypeError, Message: "Invalid message format"})
			continue
		}

		if err := c.handle(msg); err != nil {
			if errors.Is(err, session.ErrClosed) {
				return
			}
			if text := errorText(err); text != "" {
				c.enqueue(ServerMessage{Type: TypeError, Message: text})
			}
		}
	}
}

func (c *Client) handle(msg ClientMessage) error {
	switch msg.Type {
	case TypeSelectRoom:
		return c.session.SelectRoom(msg.RoomID)
	case TypeReply:
		return c.session.Reply(msg.MessageID)
	case TypeCancelReply:
		return c.session.CancelReply()
	case TypeRetry:
		return c.session.Retry()
	case TypeRetryRooms:
		return c.session.RetryRooms()
	case TypeSend, TypeLike:
		if !c.limiter.Allow() {
			return errRateLimited
		}
		ctx, cancel := context.WithTimeout(c.ctx, actionTimeout)
		defer cancel()
		if msg.Type == TypeLike {
			return c.session.Like(ctx, msg.MessageID, msg.Liked)
		}
		_, err := c.session.Send(ctx, msg.Content)
		return err
	}
	return errUnknownType
}

// errorText maps a session error to the text shown to the user. Mutation
// failures are reported by the session itself as notices.
func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrMutationFailed):
		return ""
	case errors.Is(err, domain.ErrEmptyContent):
		return "Message cannot be empty"
	case errors.Is(err, domain.ErrInvalidInput):
		return "Invalid request"
	case errors.Is(err, domain.ErrMessageNotFound):
		return "Message not found"
	case errors.Is(err, session.ErrNoActiveRoom):
		return "Select a room first"
	case errors.Is(err, errRateLimited):
		return "You are sending too fast"
	case errors.Is(err, errUnknownType):
		return "Unknown message type"
	}
	return "Something went wrong"
}

// deliver is the session observer. It runs on the session goroutine and must
// not block.
func (c *Client) deliver(u session.Update) {
	snap := u.Snapshot
	c.enqueue(ServerMessage{Type: TypeState, State: &snap})
	if u.Notice != "" {
		c.enqueue(ServerMessage{Type: TypeNotice, Message: u.Notice})
	}
}

// enqueue queues msg for the write pump. A client that cannot keep up is
// disconnected.
func (c *Client) enqueue(msg ServerMessage) {
	if c.ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal server message",
			slog.String("error", err.Error()),
			slog.String("type", msg.Type))
		return
	}

	select {
	case c.send <- data:
		observability.WebSocketMessagesSent.WithLabelValues(msg.Type).Inc()
	default:
		c.logger.Warn("client send buffer full, closing connection")
		c.ctxCancel()
	}
}

// WritePump pumps queued messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("failed to set write deadline", slog.String("error", err.Error()))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
