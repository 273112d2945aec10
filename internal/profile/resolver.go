// Package profile resolves message authors to display data.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

// PlaceholderUsername is shown for authors whose profile cannot be resolved.
const PlaceholderUsername = "Unknown player"

// Placeholder returns the author attached when resolution fails
func Placeholder() domain.Author {
	return domain.Author{Username: PlaceholderUsername}
}

// Resolver looks up author display data. It never fails: any lookup problem
// yields the placeholder author.
type Resolver struct {
	profiles domain.ProfileRepository
}

// NewResolver creates a Resolver backed by a profile repository
func NewResolver(profiles domain.ProfileRepository) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve returns the author display data of userID.
func (r *Resolver) Resolve(ctx context.Context, userID string) domain.Author {
	if userID == "" {
		return Placeholder()
	}

	p, err := r.profiles.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrProfileNotFound) {
			observability.FromContext(ctx).Warn("profile lookup failed",
				slog.String("profile_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return Placeholder()
	}
	if p == nil || strings.TrimSpace(p.Username) == "" {
		return Placeholder()
	}
	return domain.Author{Username: p.Username, AvatarURL: p.AvatarURL}
}

// Attach resolves the author of every message in place, looking each user up once.
func (r *Resolver) Attach(ctx context.Context, messages []domain.Message) {
	seen := make(map[string]domain.Author, len(messages))
	for i := range messages {
		userID := messages[i].UserID
		author, ok := seen[userID]
		if !ok {
			author = r.Resolve(ctx, userID)
			seen[userID] = author
		}
		messages[i].Author = author
	}
}
