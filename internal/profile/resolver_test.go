package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

type stubProfiles struct {
	profiles map[string]*domain.Profile
	err      error
	calls    map[string]int
}

func (s *stubProfiles) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[id]++
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func TestResolver_Resolve(t *testing.T) {
	repo := &stubProfiles{profiles: map[string]*domain.Profile{
		"u1": {ID: "u1", Username: "tenz", AvatarURL: "https://cdn.example/tenz.png"},
		"u2": {ID: "u2", Username: "   "},
	}}
	r := NewResolver(repo)

	tests := []struct {
		name   string
		userID string
		want   domain.Author
	}{
		{"known", "u1", domain.Author{Username: "tenz", AvatarURL: "https://cdn.example/tenz.png"}},
		{"blank_username", "u2", Placeholder()},
		{"missing", "u3", Placeholder()},
		{"empty_id", "", Placeholder()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.userID))
		})
	}
}

func TestResolver_ResolveBackendError(t *testing.T) {
	r := NewResolver(&stubProfiles{err: errors.New("connection refused")})

	author := r.Resolve(context.Background(), "u1")
	assert.Equal(t, PlaceholderUsername, author.Username)
	assert.Empty(t, author.AvatarURL)
}

func TestResolver_AttachLooksUpEachUserOnce(t *testing.T) {
	repo := &stubProfiles{profiles: map[string]*domain.Profile{
		"u1": {ID: "u1", Username: "tenz"},
	}}
	messages := []domain.Message{
		{ID: "m1", UserID: "u1"},
		{ID: "m2", UserID: "u9"},
		{ID: "m3", UserID: "u1"},
	}

	NewResolver(repo).Attach(context.Background(), messages)

	assert.Equal(t, "tenz", messages[0].Author.Username)
	assert.Equal(t, PlaceholderUsername, messages[1].Author.Username)
	assert.Equal(t, "tenz", messages[2].Author.Username)
	assert.Equal(t, 1, repo.calls["u1"])
}
