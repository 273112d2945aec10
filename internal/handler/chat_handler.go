package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/middleware"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

const maxBodyBytes = 16 << 10

// RoomLister returns the room list with cache fallback
type RoomLister interface {
	GetRooms(ctx context.Context) ([]domain.Room, error)
}

// MessageLister returns the latest messages of a room, oldest first
type MessageLister interface {
	GetMessages(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Mutator sends messages and updates like counters
type Mutator interface {
	Send(ctx context.Context, roomID, userID, content, replyTo string) (*domain.Message, error)
	Like(ctx context.Context, messageID string, likes int) (int, error)
}

// ChatHandler serves the REST side of the chat
type ChatHandler struct {
	rooms    RoomLister
	messages MessageLister
	mutator  Mutator
}

func NewChatHandler(rooms RoomLister, messages MessageLister, mutator Mutator) *ChatHandler {
	return &ChatHandler{
		rooms:    rooms,
		messages: messages,
		mutator:  mutator,
	}
}

// SendMessageRequest represents a message post
type SendMessageRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// UpdateLikesRequest carries the new like counter of a message
type UpdateLikesRequest struct {
	Likes *int `json:"likes"`
}

// ListRooms returns the rooms shown in the room panel
func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.GetRooms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// ListMessages returns the latest messages of a room
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, `{"error":"Room ID required"}`, http.StatusBadRequest)
		return
	}

	ctx := observability.WithRoomID(r.Context(), roomID)
	messages, err := h.messages.GetMessages(ctx, roomID)
	if err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// SendMessage posts a message to a room as the authenticated user
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "id")

	var req SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	ctx := observability.WithRoomID(r.Context(), roomID)
	msg, err := h.mutator.Send(ctx, roomID, userID, req.Content, req.ReplyTo)
	if err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// UpdateLikes stores a new like counter for a message
func (h *ChatHandler) UpdateLikes(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req UpdateLikesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Likes == nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	likes, err := h.mutator.Like(r.Context(), messageID, *req.Likes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"likes": likes})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, text := errorStatus(err)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": text})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyContent):
		return http.StatusBadRequest, "Message content is empty"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, domain.ErrMessageNotFound):
		return http.StatusNotFound, "Message not found"
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "Room not found"
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "Request timed out"
	case errors.Is(err, domain.ErrFetchFailed), errors.Is(err, domain.ErrMutationFailed):
		return http.StatusBadGateway, "Backend request failed"
	}
	return http.StatusInternalServerError, "Internal server error"
}
