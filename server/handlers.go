package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// SheetChecker is the slice of the sheets gateway readiness checks use.
// Nil disables the sheet reachability check (e.g. in tests).
type SheetChecker interface {
	WorksheetTitles(ctx context.Context) ([]string, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db      *sql.DB
	gw      SheetChecker
	started time.Time
}

// NewHandlers creates a Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, gw SheetChecker) *Handlers {
	return &Handlers{db: db, gw: gw, started: time.Now()}
}

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes with detailed checks: the alias
// store must answer and, when configured, the tracker spreadsheet must be
// reachable.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"spreadsheet", func() error {
			if h.gw == nil {
				return nil
			}
			_, err := h.gw.WorksheetTitles(r.Context())
			return err
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports uptime and alias-store counts.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var users, series int
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM user_aliases`).Scan(&users); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM series_aliases`).Scan(&series); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"channel":        os.Getenv("TWITCH_CHANNEL"),
		"user_aliases":   users,
		"series_aliases": series,
	})
}

// HandleConfig handles GET and PUT requests for safe configuration keys,
// stored in the kv table under a cfg: prefix. Secrets are never exposed here.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	safeKeys := map[string]bool{
		"LOG_LEVEL":              true,
		"LOG_FORMAT":             true,
		"TRACKER_GRAMMAR":        true,
		"PROMPT_TIMEOUT":         true,
		"REPLACE_PROMPT_TIMEOUT": true,
		"FUZZY_THRESHOLD":        true,
	}
	switch r.Method {
	case http.MethodGet:
		out := map[string]string{}
		for k := range safeKeys {
			var v string
			_ = h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, "cfg:"+k).Scan(&v)
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if _, err := h.db.ExecContext(
				r.Context(),
				`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
				"cfg:"+k,
				strings.TrimSpace(v),
			); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
