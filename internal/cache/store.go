package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a cached payload together with the moment it was captured.
type Entry struct {
	Payload    json.RawMessage `json:"payload"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Store is a key-value tier of the chat cache.
//
// Implementations are last-write-wins per key and never evict on their own.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}
