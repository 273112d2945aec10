package domain

import "errors"

var (
	// ErrTimeout is returned when a fetch exceeded its bound and no cached fallback existed.
	ErrTimeout = errors.New("request timed out")
	// ErrFetchFailed is returned when the backend failed and no cached fallback existed.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrSubscriptionFailed is returned when a push channel could not be established.
	ErrSubscriptionFailed = errors.New("subscription failed")
	// ErrEmptyContent rejects a send whose content is blank after trimming.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrMutationFailed is returned when a send or like call failed at the backend.
	ErrMutationFailed = errors.New("mutation failed")

	ErrInvalidInput    = errors.New("invalid input")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room name already exists")
	ErrMessageNotFound = errors.New("message not found")
	ErrProfileNotFound = errors.New("profile not found")
)
