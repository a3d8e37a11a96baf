package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// store operation latency (seconds)
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "store"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	// MQ consume latency (milliseconds)
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	EventPublishedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_event_published_count",
			Help: "Total number of habit events handed to the broker",
		},
		[]string{"routing_key", "status"}, // status: success, failed, skipped
	)

	CompletionUpsertCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_completion_upsert_count",
			Help: "Total number of completion upserts",
		},
		[]string{"result"}, // result: created, updated
	)

	CacheLookupCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_cache_lookup_count",
			Help: "Habit cache lookups by outcome",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	CurrentStreak = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habit_current_streak",
			Help: "Trailing run of completed entries per habit",
		},
		[]string{"habit_id"},
	)

	MaxStreak = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habit_max_streak",
			Help: "Longest run of completed entries per habit",
		},
		[]string{"habit_id"},
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordDBQueryDuration(operation, store string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, store).Observe(duration.Seconds())
}

func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementEventPublished(routingKey, status string) {
	EventPublishedCount.WithLabelValues(routingKey, status).Inc()
}

func IncrementCompletionUpsert(created bool) {
	result := "updated"
	if created {
		result = "created"
	}
	CompletionUpsertCount.WithLabelValues(result).Inc()
}

func IncrementCacheLookup(result string) {
	CacheLookupCount.WithLabelValues(result).Inc()
}

func SetStreak(habitID string, current, max int) {
	CurrentStreak.WithLabelValues(habitID).Set(float64(current))
	MaxStreak.WithLabelValues(habitID).Set(float64(max))
}

func DeleteStreak(habitID string) {
	CurrentStreak.DeleteLabelValues(habitID)
	MaxStreak.DeleteLabelValues(habitID)
}
