package domain

import "context"

// Profile is the public part of a user account
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// ProfileRepository defines the interface for profile lookups
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
}
