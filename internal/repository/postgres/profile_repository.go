package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

// ProfileRepository implements domain.ProfileRepository for PostgreSQL
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves the public profile of a user
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `
		SELECT id, username, avatar_url
		FROM profiles
		WHERE id = $1
	`
	var (
		profile   domain.Profile
		username  sql.NullString
		avatarURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&profile.ID, &username, &avatarURL)
	if err == sql.ErrNoRows {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	profile.Username = username.String
	profile.AvatarURL = avatarURL.String
	return &profile, nil
}
