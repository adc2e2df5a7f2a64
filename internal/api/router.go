// internal/api/router.go
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"campus-coin/internal/api/handler"
	"campus-coin/internal/metrics"
)

// HealthCheck reports whether the ledger backend is usable.
type HealthCheck func(ctx context.Context) error

// NewRouter sets up and returns a new HTTP router.
// ws may be nil when live updates are disabled; health may be nil when the
// backend has nothing to probe.
func NewRouter(ledgerHandler *handler.LedgerHandler, ws http.HandlerFunc, health HealthCheck, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID) // Add a request ID to the context
	r.Use(middleware.RealIP)    // Use the real IP address
	r.Use(middleware.Logger)    // Log HTTP requests
	r.Use(middleware.Recoverer) // Recover from panics and return 500
	if m != nil {
		r.Use(m.Instrument)
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				logger.Warn("Health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// The WebSocket stays open for the life of the client, so it sits outside the timeout.
	if ws != nil {
		r.Get("/ws", ws)
	}

	// Ledger API routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(handler.DefaultTimeout))
		r.Post("/login", ledgerHandler.Login)
		r.Get("/balance/{nickname}", ledgerHandler.GetBalance)
		r.Post("/quest", ledgerHandler.CreditQuestReward)
		r.Post("/send", ledgerHandler.Transfer)
		r.Get("/ranking", ledgerHandler.GetRanking)
		r.Get("/history/{nickname}", ledgerHandler.GetHistory)
	})

	logger.Debug("HTTP routes registered")
	return r
}
