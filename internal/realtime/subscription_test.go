package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/profile"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/testutil"
)

type fakeSource struct {
	payloads chan []byte
	failures chan error
	closes   atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		payloads: make(chan []byte),
		failures: make(chan error, 1),
	}
}

func (f *fakeSource) source() Source {
	return Source{
		Payloads: f.payloads,
		Failures: f.failures,
		Close:    func() { f.closes.Add(1) },
	}
}

func newTestResolver() *profile.Resolver {
	return profile.NewResolver(testutil.NewMockProfileRepository(testutil.NewTestProfile("u1", "zywoo")))
}

func receive(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "messages channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return domain.Message{}
}

func drainStatus(t *testing.T, ch <-chan Status) []Status {
	t.Helper()
	var got []Status
	timeout := time.After(time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, s)
		case <-timeout:
			t.Fatal("status channel was not closed")
		}
	}
}

func TestSubscription_EnrichesEvents(t *testing.T) {
	src := newFakeSource()
	sub := NewSubscription(context.Background(), "test", "r1", newTestResolver(), src.source())
	defer sub.Unsubscribe()

	src.payloads <- []byte(`{"id":"m1","room_id":"r1","user_id":"u1","content":"nice","likes":2,"created_at":"2026-03-01T10:00:00.123456+00:00"}`)
	msg := receive(t, sub.Messages())

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, 2, msg.Likes)
	assert.Equal(t, "zywoo", msg.Author.Username)
	assert.Equal(t, 2026, msg.CreatedAt.Year())
}

func TestSubscription_PlaceholderWhenProfileMissing(t *testing.T) {
	failing := testutil.NewMockProfileRepository()
	failing.GetByIDFunc = func(ctx context.Context, id string) (*domain.Profile, error) {
		return nil, errors.New("profiles table unavailable")
	}
	src := newFakeSource()
	sub := NewSubscription(context.Background(), "test", "r1", profile.NewResolver(failing), src.source())
	defer sub.Unsubscribe()

	src.payloads <- []byte(`{"id":"m2","room_id":"r1","user_id":"u1","content":"hey"}`)
	msg := receive(t, sub.Messages())

	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, profile.PlaceholderUsername, msg.Author.Username)
	assert.Empty(t, msg.Author.AvatarURL)
}

func TestSubscription_SkipsMalformedAndForeignEvents(t *testing.T) {
	src := newFakeSource()
	sub := NewSubscription(context.Background(), "test", "r1", newTestResolver(), src.source())
	defer sub.Unsubscribe()

	src.payloads <- []byte(`{broken`)
	src.payloads <- []byte(`{"room_id":"r1"}`)
	src.payloads <- []byte(`{"id":"x","room_id":"r2","user_id":"u1"}`)
	src.payloads <- []byte(`{"id":"m3","room_id":"r1","user_id":"u1"}`)

	assert.Equal(t, "m3", receive(t, sub.Messages()).ID)
}

func TestSubscription_UnsubscribeIsIdempotent(t *testing.T) {
	src := newFakeSource()
	sub := NewSubscription(context.Background(), "test", "r1", newTestResolver(), src.source())

	assert.NotPanics(t, func() {
		sub.Unsubscribe()
		sub.Unsubscribe()
		go sub.Unsubscribe()
	})

	assert.Equal(t, []Status{StatusSubscribed, StatusClosed}, drainStatus(t, sub.Status()))
	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestSubscription_ChannelFailure(t *testing.T) {
	src := newFakeSource()
	sub := NewSubscription(context.Background(), "test", "r1", newTestResolver(), src.source())

	src.failures <- errors.New("connection reset by peer")

	assert.Equal(t, []Status{StatusSubscribed, StatusError, StatusClosed}, drainStatus(t, sub.Status()))
	assert.Equal(t, int32(1), src.closes.Load())

	sub.Unsubscribe()
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestSubscription_PeerClose(t *testing.T) {
	src := newFakeSource()
	sub := NewSubscription(context.Background(), "test", "r1", newTestResolver(), src.source())

	close(src.payloads)

	assert.Equal(t, []Status{StatusSubscribed, StatusError, StatusClosed}, drainStatus(t, sub.Status()))
}

func TestAwaitListener(t *testing.T) {
	t.Run("connection_failure", func(t *testing.T) {
		connected := make(chan error, 1)
		connected <- errors.New("dial tcp: connection refused")

		err := awaitListener(context.Background(), connected, func() error {
			t.Fatal("listen must not run")
			return nil
		})
		assert.EqualError(t, err, "dial tcp: connection refused")
	})

	t.Run("listen_blocks_past_deadline", func(t *testing.T) {
		connected := make(chan error, 1)
		connected <- nil
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := awaitListener(ctx, connected, func() error {
			<-release
			return nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("success", func(t *testing.T) {
		connected := make(chan error, 1)
		connected <- nil

		assert.NoError(t, awaitListener(context.Background(), connected, func() error { return nil }))
	})

	t.Run("never_connected", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := awaitListener(ctx, make(chan error), func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRoomChannel(t *testing.T) {
	assert.Equal(t, "room_messages:4b1f", RoomChannel("4b1f"))
}
