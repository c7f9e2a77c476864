// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesSeen     prometheus.Counter
	ParseMisses      prometheus.Counter
	UpdatesSucceeded prometheus.Counter
	UpdatesFailed    prometheus.Counter
	Collisions       prometheus.Counter
	PromptTimeouts   prometheus.Counter
	AliasesSaved     *prometheus.CounterVec

	// Histograms (seconds)
	SheetWriteDuration prometheus.Observer
	UpdateDuration     prometheus.Observer

	// Gauges
	PendingPromptsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesSeen = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_messages_seen_total", Help: "Chat messages inspected by the parser"})
		ParseMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_parse_miss_total", Help: "Messages that matched no grammar and were dropped"})
		UpdatesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_updates_succeeded_total", Help: "Tracker updates written to the sheet"})
		UpdatesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_updates_failed_total", Help: "Tracker updates that ended in a reported failure"})
		Collisions = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_collisions_total", Help: "Writes that hit an occupied name slot"})
		PromptTimeouts = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_prompt_timeouts_total", Help: "Interactive prompts that timed out waiting for a reply"})
		AliasesSaved = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tracker_aliases_saved_total", Help: "Aliases persisted after interactive resolution"}, []string{"kind"})
		SheetWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tracker_sheet_write_duration_seconds", Help: "WriteEntry duration seconds", Buckets: prometheus.DefBuckets})
		UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tracker_update_duration_seconds", Help: "End-to-end update pipeline duration seconds", Buckets: prometheus.DefBuckets})
		PendingPromptsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracker_pending_prompts", Help: "Interactive prompts currently awaiting a reply"})
	})
}

// ObserveSheetWrite records a WriteEntry duration if metrics are initialized.
func ObserveSheetWrite(d time.Duration) {
	if SheetWriteDuration != nil {
		SheetWriteDuration.Observe(d.Seconds())
	}
}

// ObserveUpdate records an end-to-end pipeline duration if metrics are initialized.
func ObserveUpdate(d time.Duration) {
	if UpdateDuration != nil {
		UpdateDuration.Observe(d.Seconds())
	}
}

// PromptPending adjusts the pending-prompt gauge by delta.
func PromptPending(delta int) {
	if PendingPromptsGauge != nil {
		PendingPromptsGauge.Add(float64(delta))
	}
}

// CountAliasSaved increments the saved-alias counter for kind ("user"|"series").
func CountAliasSaved(kind string) {
	if AliasesSaved != nil {
		AliasesSaved.WithLabelValues(kind).Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// Logger returns the default slog logger with the context's correlation id
// attached when present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if corr := GetCorrelation(ctx); corr != "" {
		l = l.With(slog.String("correlation_id", corr))
	}
	return l
}
