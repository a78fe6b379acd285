// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
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
	EventsIndexed     prometheus.Counter
	MessagesScanned   prometheus.Counter
	ChannelsIndexed   prometheus.Counter
	ChannelsFailed    prometheus.Counter
	RendersAdmitted   prometheus.Counter
	RendersRejected   prometheus.Counter
	RendersFailed     prometheus.Counter
	SnitchesImported  prometheus.Counter

	// Histograms (seconds)
	BackfillDuration prometheus.Observer
	RenderDuration   prometheus.Observer
	QueryDuration    prometheus.Observer

	// Gauges
	IndexQueueDepthGauge prometheus.Gauge
	IndexStateGauge      prometheus.Gauge // 0=deferring,1=draining,2=live
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsIndexed = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_events_indexed_total", Help: "Number of snitch events written to the store"})
		MessagesScanned = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_messages_scanned_total", Help: "Number of channel messages scanned for snitch events"})
		ChannelsIndexed = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_channels_indexed_total", Help: "Number of channel backfills completed"})
		ChannelsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_channels_failed_total", Help: "Number of channel backfills that failed"})
		RendersAdmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_renders_admitted_total", Help: "Number of render requests admitted by the usage throttle"})
		RendersRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_renders_rejected_total", Help: "Number of render requests rejected by the usage throttle"})
		RendersFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_renders_failed_total", Help: "Number of render requests that failed after admission"})
		SnitchesImported = promauto.NewCounter(prometheus.CounterOpts{Name: "snitchvis_snitches_imported_total", Help: "Number of snitches imported from SnitchMod databases"})
		BackfillDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "snitchvis_backfill_duration_seconds", Help: "Channel backfill duration seconds", Buckets: prometheus.DefBuckets})
		RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "snitchvis_render_duration_seconds", Help: "Render duration seconds", Buckets: prometheus.DefBuckets})
		QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "snitchvis_query_duration_seconds", Help: "Event query duration seconds", Buckets: prometheus.DefBuckets})
		IndexQueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "snitchvis_index_queue_depth", Help: "Messages deferred while startup backfill runs"})
		IndexStateGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "snitchvis_index_state", Help: "Indexing state: 0=deferring 1=draining 2=live"})
	})
}

// SetIndexQueueDepth records the number of messages waiting for the drain.
func SetIndexQueueDepth(n int) {
	if IndexQueueDepthGauge != nil {
		IndexQueueDepthGauge.Set(float64(n))
	}
}

// SetIndexState records the coordinator state as a numeric gauge.
func SetIndexState(s int) {
	if IndexStateGauge != nil {
		IndexStateGauge.Set(float64(s))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
