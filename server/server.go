// Package server exposes the bot's HTTP sidecar: health, readiness, status,
// runtime config overrides, and Prometheus metrics. It injects correlation
// IDs into request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scanlibre/trackerbot/telemetry"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(db *sql.DB, gw SheetChecker) http.Handler {
	handlers := NewHandlers(db, gw)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)
	mux.HandleFunc("/config", handlers.HandleConfig)

	// Correlation ID injector.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)
		telemetry.Logger(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, db *sql.DB, gw SheetChecker, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(db, gw),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
