package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quickshare/service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// AdminSubjectKey is the context key for the authenticated admin's subject claim.
const AdminSubjectKey contextKey = "adminSubject"

// RequireAdmin returns middleware that validates a Bearer JWT carrying the
// given role claim and injects its subject into the request context.
func RequireAdmin(jwtSecret, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				response.Unauthorized(w, "invalid token claims")
				return
			}
			if got, _ := claims["role"].(string); got != role {
				response.Error(w, http.StatusForbidden, "admin role required")
				return
			}

			subject, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), AdminSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
