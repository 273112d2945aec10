package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"

	// SessionCookie is the cookie set by the platform auth service
	SessionCookie = "session_id"
)

// Auth resolves the caller's session token, taken from the session cookie or
// a bearer Authorization header, to a user id.
func Auth(sessionRepo domain.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			session, err := sessionRepo.GetByToken(r.Context(), token)
			switch {
			case errors.Is(err, domain.ErrSessionExpired):
				http.Error(w, `{"error":"Session expired"}`, http.StatusUnauthorized)
				return
			case errors.Is(err, domain.ErrSessionNotFound):
				http.Error(w, `{"error":"Invalid session"}`, http.StatusUnauthorized)
				return
			case err != nil:
				observability.FromContext(r.Context()).Error("session lookup failed",
					slog.String("error", err.Error()))
				http.Error(w, `{"error":"Authentication unavailable"}`, http.StatusServiceUnavailable)
				return
			}

			ctx := WithUserID(r.Context(), session.UserID)
			ctx = WithSession(ctx, session)
			ctx = observability.WithUserID(ctx, session.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionToken prefers the cookie over the Authorization header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}
