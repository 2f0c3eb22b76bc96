package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthChecker reports whether the server can still serve requests.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// NewHealthHandler answers "ok" while checker passes and 503 otherwise.
func NewHealthHandler(logger *slog.Logger, checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain")
		if err := checker.CheckHealth(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: " + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
