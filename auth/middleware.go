package auth

import (
	"chat-core/contract"
	"context"
	"net/http"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Middleware rejects requests without a valid "Authorization: Bearer <token>" header
// and injects the caller's user id into the request context.
func Middleware(authenticator contract.Authenticator, onReject func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Validate the credential and resolve the identity
			userID, err := authenticator.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				onReject(w, err)
				return
			}

			// 2. Inject user identity into context for downstream handlers
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
