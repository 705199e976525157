// internal/auth/auth.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/redis/go-redis/v9"
)

// SessionStore resolves an opaque session token to an organization
// scope. Authentication itself lives outside this service; we only
// consume its result.
type SessionStore interface {
	OrgForToken(ctx context.Context, token string) (string, error)
}

// RedisSessionStore looks tokens up under session:<token>.
type RedisSessionStore struct {
	Client *redis.Client
}

func (s *RedisSessionStore) OrgForToken(ctx context.Context, token string) (string, error) {
	orgID, err := s.Client.Get(ctx, "session:"+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orgID, nil
}

// StaticSessionStore is a fixed token -> org map for tests and local
// development.
type StaticSessionStore map[string]string

func (s StaticSessionStore) OrgForToken(_ context.Context, token string) (string, error) {
	return s[token], nil
}

var (
	_ SessionStore = (*RedisSessionStore)(nil)
	_ SessionStore = (StaticSessionStore)(nil)
)

type ctxKey struct{}

// OrgID returns the caller's organization scope, or "" outside the
// middleware.
func OrgID(ctx context.Context) string {
	orgID, _ := ctx.Value(ctxKey{}).(string)
	return orgID
}

// Middleware rejects requests without a resolvable session and stamps
// the org scope into the request context. Every repository call below
// this point filters by that org.
func Middleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if cookie, err := r.Cookie("session"); err == nil {
					token = cookie.Value
				}
			}
			if token == "" {
				unauthorized(w, r)
				return
			}

			orgID, err := store.OrgForToken(r.Context(), token)
			if err != nil || orgID == "" {
				unauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{"error": "Unauthorized"})
}
