package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/profile"
)

// MaxContentLength is the longest message accepted, in characters.
const MaxContentLength = 1000

// ChatService performs the backend mutations of the chat: sending and liking.
type ChatService struct {
	messageRepo domain.MessageRepository
	authors     *profile.Resolver
}

func NewChatService(messageRepo domain.MessageRepository, authors *profile.Resolver) *ChatService {
	return &ChatService{
		messageRepo: messageRepo,
		authors:     authors,
	}
}

// Send stores a message and returns the confirmed record with its author.
// Blank content is rejected before any backend call. A reply must target an
// existing message of the same room.
func (s *ChatService) Send(ctx context.Context, roomID, userID, content, replyTo string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength || roomID == "" || userID == "" {
		return nil, domain.ErrInvalidInput
	}
	if replyTo != "" {
		if err := s.checkReplyTarget(ctx, roomID, replyTo); err != nil {
			return nil, err
		}
	}

	msg := &domain.Message{
		RoomID:  roomID,
		UserID:  userID,
		Content: content,
		ReplyTo: replyTo,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMutationFailed, err)
	}
	msg.Author = s.authors.Resolve(ctx, userID)
	return msg, nil
}

func (s *ChatService) checkReplyTarget(ctx context.Context, roomID, replyTo string) error {
	target, err := s.messageRepo.GetByID(ctx, replyTo)
	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		return fmt.Errorf("reply target %s: %w", replyTo, err)
	case err != nil:
		return fmt.Errorf("%w: %w", domain.ErrMutationFailed, err)
	case target.RoomID != roomID:
		return fmt.Errorf("%w: reply target %s belongs to another room", domain.ErrInvalidInput, replyTo)
	}
	return nil
}

// Like stores a new like counter and returns the count the backend confirmed.
func (s *ChatService) Like(ctx context.Context, messageID string, likes int) (int, error) {
	if messageID == "" {
		return 0, domain.ErrInvalidInput
	}
	if likes < 0 {
		likes = 0
	}
	confirmed, err := s.messageRepo.UpdateLikes(ctx, messageID, likes)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrMutationFailed, err)
	}
	return confirmed, nil
}
