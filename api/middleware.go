package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/amirhf/giftreco/services/api-go/auth"
	"github.com/amirhf/giftreco/services/api-go/logging"
	"github.com/amirhf/giftreco/services/api-go/metrics"
	"github.com/amirhf/giftreco/services/api-go/storage"
)

// RoleStore looks up the role recorded on a user's profile.
type RoleStore interface {
	UserRole(ctx context.Context, userID string) (string, error)
}

// OptionalAuth attaches the caller when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := v.Verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					logging.Ctx(r.Context()).Warn().Err(err).Msg("token verification failed, continuing anonymously")
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Missing Authorization Bearer token", nil)
				return
			}
			user, err := v.Verify(r.Context(), token)
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				respondError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			case err != nil:
				logging.Ctx(r.Context()).Error().Err(err).Msg("token verification failed")
				respondError(w, http.StatusInternalServerError, "Auth middleware failed", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(roles RoleStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			if user == nil {
				respondError(w, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}
			role, err := roles.UserRole(r.Context(), user.ID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				respondError(w, http.StatusForbidden, "Profile not found", nil)
				return
			case err != nil:
				logging.Ctx(r.Context()).Error().Err(err).Str("user_id", user.ID).Msg("role lookup failed")
				respondError(w, http.StatusInternalServerError, "Failed to check role", nil)
				return
			case role != auth.RoleAdmin:
				respondError(w, http.StatusForbidden, "ADMIN only", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger copies chi's request id into the logging context and writes one
// access log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Metrics records request counts and latency by chi route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
