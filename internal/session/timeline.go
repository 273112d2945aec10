package session

import (
	"sort"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

// Timeline is the in-memory message list of the active room: unique by id and
// ascending by creation time, ties broken by id.
type Timeline struct {
	messages []domain.Message
	ids      map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// Merge inserts every message whose id is not present yet, at its ordered
// position. It reports whether anything was inserted.
func (t *Timeline) Merge(messages ...domain.Message) bool {
	changed := false
	for _, msg := range messages {
		if _, ok := t.ids[msg.ID]; ok {
			continue
		}
		i := sort.Search(len(t.messages), func(i int) bool {
			return before(msg, t.messages[i])
		})
		t.messages = append(t.messages, domain.Message{})
		copy(t.messages[i+1:], t.messages[i:])
		t.messages[i] = msg
		t.ids[msg.ID] = struct{}{}
		changed = true
	}
	return changed
}

func before(a, b domain.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Get returns the message with the given id
func (t *Timeline) Get(id string) (domain.Message, bool) {
	if _, ok := t.ids[id]; !ok {
		return domain.Message{}, false
	}
	for _, msg := range t.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return domain.Message{}, false
}

// SetLikes overwrites the like counter of a message, reporting whether it exists.
func (t *Timeline) SetLikes(id string, likes int) bool {
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i].Likes = likes
			return true
		}
	}
	return false
}

// Messages returns a copy of the ordered list
func (t *Timeline) Messages() []domain.Message {
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Reset() {
	t.messages = nil
	t.ids = make(map[string]struct{})
}
