package middleware

import (
	"context"
	"net/http"
	"strings"

	"enrollment-crm/http/response"
	"enrollment-crm/models"
	"enrollment-crm/services"
)

// Authenticator resolves a bearer token to the user it belongs to.
type Authenticator interface {
	Session(ctx context.Context, token string) (models.User, *services.Claims, error)
}

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

// UserFromContext returns the authenticated user of the request.
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// TokenFromContext returns the raw bearer token of the request.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// WithUser stores u on ctx the way RequireAuth does.
func WithUser(ctx context.Context, u models.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, tokenKey, token)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth rejects requests without a valid session.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				response.ErrorResponse(w, http.StatusUnauthorized, "Authorization token not provided")
				return
			}
			user, _, err := auth.Session(r.Context(), token)
			if err != nil {
				response.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// RequireRole lets through users holding one of roles. It must run after
// RequireAuth.
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				response.ErrorResponse(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.ErrorResponse(w, http.StatusForbidden, "your role cannot perform this action")
		})
	}
}
