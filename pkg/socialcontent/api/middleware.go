package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// PrincipalHeader carries the authenticated principal id. It is set by the
// gateway in front of the service.
const PrincipalHeader = "X-Principal-ID"

type contextKey string

const accountKey contextKey = "account"

// AccountFromContext returns the account resolved by AccountMiddleware, if any.
func AccountFromContext(ctx context.Context) (*socialcontent.Account, bool) {
	account, ok := ctx.Value(accountKey).(*socialcontent.Account)
	return account, ok && account != nil
}

// AccountMiddleware resolves the principal header into an account. Requests
// without the header pass through anonymously; unknown principals also pass
// through so they can register.
func AccountMiddleware(service socialcontent.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := r.Header.Get(PrincipalHeader)
			if principal == "" {
				next.ServeHTTP(w, r)
				return
			}

			account, err := service.ResolveAccount(r.Context(), principal)
			switch {
			case err == nil:
				r = r.WithContext(context.WithValue(r.Context(), accountKey, account))
			case errors.Is(err, socialcontent.ErrNotFound):
			default:
				writeError(w, r, logger, "Failed to resolve account", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAccount writes 401 and returns false when no account is attached.
func requireAccount(w http.ResponseWriter, r *http.Request) (*socialcontent.Account, bool) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		writeErrorStatus(w, r, http.StatusUnauthorized, "unauthorized", "A registered account is required")
		return nil, false
	}
	return account, true
}

// LoggingMiddleware logs one line per request with status, size and duration.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
