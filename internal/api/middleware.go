/**
 * @description
 * Request middleware for the rewards API: bearer token authentication that resolves the
 * caller to a DinCash user, the admin gate, and the shared-key check for internal hooks.
 */

package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ivanValieri/din-cash/internal/app"
	"github.com/ivanValieri/din-cash/internal/domain"
)

type contextKey string

const userContextKey contextKey = "dincashUser"

// ActorResolver maps a verified identity onto a stored user.
type ActorResolver interface {
	ResolveActor(ctx context.Context, identity domain.Identity) (*domain.User, error)
}

// AuthMiddleware verifies the bearer token and stores the resolved user in the context.
func AuthMiddleware(verifier *TokenVerifier, resolver ActorResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			tokenString, ok := bearerToken(authHeader)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			identity, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				logger.Debug("token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			user, err := resolver.ResolveActor(r.Context(), identity)
			if err != nil {
				if errors.Is(err, app.ErrStoreUnavailable) {
					logger.Error("failed to resolve actor", "subject", identity.Subject, "error", err)
				}
				respondWithServiceError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose resolved user is not an administrator.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		if !user.IsAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InternalAuthMiddleware validates the internal API key for server-to-server calls. With
// no key configured the internal routes are closed.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				writeError(w, http.StatusUnauthorized, "Internal API disabled")
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the authenticated user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	return user, ok && user != nil
}

func actorFromContext(ctx context.Context) domain.Actor {
	user, ok := UserFromContext(ctx)
	if !ok {
		return domain.Actor{}
	}
	return domain.Actor{UserID: user.ID, IsAdmin: user.IsAdmin}
}
