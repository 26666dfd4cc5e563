// Package middleware holds the chi middleware shared by the REST routes.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/http/dto"
)

type ctxKey int

const userIDKey ctxKey = iota

// Authenticator resolves the caller of a request. Session handling lives
// outside this service; implementations only map a request to a user id.
type Authenticator interface {
	Identify(r *http.Request) (userID string, ok bool)
}

// HeaderAuthenticator trusts the X-User-ID header set by the upstream
// gateway, falling back to "Authorization: Bearer <userId>".
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Identify(r *http.Request) (string, bool) {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id, true
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if id := strings.TrimSpace(auth[7:]); id != "" {
			return id, true
		}
	}
	return "", false
}

// RequireUser rejects unauthenticated requests with 401 and stores the
// caller's id in the request context.
func RequireUser(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.Identify(r)
			if !ok {
				writeError(w, apperrors.Unauthorized("authentication required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated caller, or "" outside RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:     err.Code,
		Message:   err.Message,
		Timestamp: time.Now().UTC(),
	})
}
