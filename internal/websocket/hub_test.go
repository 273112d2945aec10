package websocket

import (
	"context"
	"testing"
	"time"
)

func newBareClient(userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		send:      make(chan []byte, sendBufferSize),
		userID:    userID,
		ctx:       ctx,
		ctxCancel: cancel,
	}
}

func waitActive(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Active() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d active clients, got %d", want, hub.Active())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub()

	if hub.clients == nil {
		t.Error("Expected clients map to be initialized")
	}
	if hub.register == nil || hub.unregister == nil {
		t.Error("Expected register channels to be initialized")
	}
	if hub.done == nil {
		t.Error("Expected done channel to be initialized")
	}
	if hub.Active() != 0 {
		t.Errorf("Expected no active clients, got %d", hub.Active())
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- hub.Run(ctx)
	}()

	cancel()

	select {
	case err := <-errChan:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Hub did not stop within timeout")
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	c1, c2 := newBareClient("user-1"), newBareClient("user-2")
	hub.Register(c1)
	hub.Register(c2)
	waitActive(t, hub, 2)

	hub.Unregister(c1)
	waitActive(t, hub, 1)

	// a second unregister is a no-op
	hub.Unregister(c1)
	waitActive(t, hub, 1)

	if c2.ctx.Err() != nil {
		t.Error("Expected remaining client to stay open")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()

	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = newBareClient("user")
		hub.Register(clients[i])
	}
	waitActive(t, hub, len(clients))

	cancel()
	<-stopped

	for i, c := range clients {
		select {
		case <-c.ctx.Done():
		default:
			t.Errorf("client %d was not closed on shutdown", i)
		}
	}
	if hub.Active() != 0 {
		t.Errorf("Expected no active clients after shutdown, got %d", hub.Active())
	}
}

func TestHub_RegisterAfterShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := newBareClient("late")
	hub.Register(c)
	hub.Unregister(c)

	if c.ctx.Err() == nil {
		t.Error("Expected late client to be closed")
	}
}
