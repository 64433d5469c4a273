package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"boxoffice/backend/internal/auth"
)

type contextKey string

const adminLoginKey contextKey = "admin_login"

func AdminLoginFromContext(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(adminLoginKey).(string)
	return val, ok && val != ""
}

// AdminAuth requires a valid admin bearer token.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				http.Error(w, "invalid Authorization", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAdminToken(secret, parts[1])
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), adminLoginKey, claims.Login)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth checks the shared secret the shop sends with notifications.
// An empty secret rejects every call.
func WebhookAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
