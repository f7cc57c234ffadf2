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
	PagesFetched        prometheus.Counter
	MessagesProcessed   prometheus.Counter
	DuplicatesSkipped   prometheus.Counter
	RepliesSent         prometheus.Counter
	SendFailures        prometheus.Counter
	GreetingsSent       prometheus.Counter
	ContinuationsQueued prometheus.Counter
	SessionsCleaned     prometheus.Counter
	TasksClaimed        prometheus.Counter
	TasksFailed         prometheus.Counter

	// Histograms (seconds)
	PageFetchDuration prometheus.Observer
	TaskRunDuration   prometheus.Observer

	// Gauges
	ActiveSessionsGauge prometheus.Gauge
	QueueDepthGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PagesFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_pages_fetched_total", Help: "Number of chat feed pages fetched"})
		MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_processed_total", Help: "Number of chat messages routed (first delivery only)"})
		DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_duplicate_total", Help: "Number of redelivered messages skipped by the processed marker"})
		RepliesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_replies_sent_total", Help: "Number of chat replies sent"})
		SendFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_send_failures_total", Help: "Number of chat sends that failed"})
		GreetingsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_greetings_sent_total", Help: "Number of one-time join greetings sent"})
		ContinuationsQueued = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_continuations_queued_total", Help: "Number of continuation tasks enqueued after interruption"})
		SessionsCleaned = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_sessions_cleaned_total", Help: "Number of sessions torn down on clean exit"})
		TasksClaimed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_tasks_claimed_total", Help: "Number of queued tasks claimed by a worker"})
		TasksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_tasks_failed_total", Help: "Number of task executions that ended in error"})
		PageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_page_fetch_duration_seconds", Help: "Feed page fetch duration seconds", Buckets: prometheus.DefBuckets})
		TaskRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_task_run_duration_seconds", Help: "Full task execution duration seconds", Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 900}})
		ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_active_sessions", Help: "Number of sessions currently being polled by this process"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_queue_depth", Help: "Current number of queued continuation tasks"})
	})
}

// The helpers below are nil-safe so core packages can record without caring
// whether Init ran (it doesn't in unit tests).

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func IncMessagesProcessed() { inc(MessagesProcessed) }
func IncDuplicatesSkipped() { inc(DuplicatesSkipped) }
func IncRepliesSent()       { inc(RepliesSent) }
func IncSendFailures()      { inc(SendFailures) }
func IncGreetings()         { inc(GreetingsSent) }
func IncContinuations()     { inc(ContinuationsQueued) }
func IncCleanups()          { inc(SessionsCleaned) }
func IncTasksClaimed()      { inc(TasksClaimed) }
func IncTasksFailed()       { inc(TasksFailed) }

// ObservePageFetch records one feed page fetch (count + duration).
func ObservePageFetch(d time.Duration) {
	inc(PagesFetched)
	if PageFetchDuration != nil {
		PageFetchDuration.Observe(d.Seconds())
	}
}

// ObserveTaskRun records one full task execution duration.
func ObserveTaskRun(d time.Duration) {
	if TaskRunDuration != nil {
		TaskRunDuration.Observe(d.Seconds())
	}
}

// AddActiveSessions adjusts the active session gauge by delta.
func AddActiveSessions(delta int) {
	if ActiveSessionsGauge != nil {
		ActiveSessionsGauge.Add(float64(delta))
	}
}

// SetQueueDepth records the current queued task count.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
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
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
