// Package gamemetrics records game session metrics.
package gamemetrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guesser"

// GameMetrics is the metrics surface used by the game service and client.
type GameMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, d time.Duration)

	RecordGameCreated(ctx context.Context, multiplayer bool)
	RecordRoundStarted(ctx context.Context, round int)
	RecordGuessPoints(ctx context.Context, difficulty string, points int)
	RecordGameEnded(ctx context.Context)

	RecordFeedEvent(ctx context.Context, table, eventType string)
}

type prometheusMetrics struct {
	attempts  *prometheus.CounterVec
	successes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec

	gamesCreated *prometheus.CounterVec
	rounds       *prometheus.CounterVec
	guessPoints  *prometheus.HistogramVec
	gamesEnded   prometheus.Counter
	feedEvents   *prometheus.CounterVec
}

// NewPrometheus registers the game collectors on reg.
func NewPrometheus(reg prometheus.Registerer) (GameMetrics, error) {
	m := &prometheusMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_attempts_total",
			Help:      "Service operations started.",
		}, []string{"operation", "service"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_success_total",
			Help:      "Service operations that completed without infrastructure error.",
		}, []string{"operation", "service"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failure_total",
			Help:      "Service operations that failed with an infrastructure error or panic.",
		}, []string{"operation", "service"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		gamesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_created_total",
			Help:      "Games created by mode.",
		}, []string{"multiplayer"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_started_total",
			Help:      "Rounds started by round number.",
		}, []string{"round"}),
		guessPoints: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guess_points",
			Help:      "Points awarded per guess.",
			Buckets:   prometheus.LinearBuckets(0, 500, 11),
		}, []string{"difficulty"}),
		gamesEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Games that reached the ended state.",
		}),
		feedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_total",
			Help:      "Change feed events observed by table and type.",
		}, []string{"table", "type"}),
	}

	for _, c := range []prometheus.Collector{
		m.attempts, m.successes, m.failures, m.duration,
		m.gamesCreated, m.rounds, m.guessPoints, m.gamesEnded, m.feedEvents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.attempts.WithLabelValues(operation, service).Inc()
}

func (m *prometheusMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.successes.WithLabelValues(operation, service).Inc()
}

func (m *prometheusMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.failures.WithLabelValues(operation, service).Inc()
}

func (m *prometheusMetrics) RecordOperationDuration(_ context.Context, operation, service string, d time.Duration) {
	m.duration.WithLabelValues(operation, service).Observe(d.Seconds())
}

func (m *prometheusMetrics) RecordGameCreated(_ context.Context, multiplayer bool) {
	m.gamesCreated.WithLabelValues(strconv.FormatBool(multiplayer)).Inc()
}

func (m *prometheusMetrics) RecordRoundStarted(_ context.Context, round int) {
	m.rounds.WithLabelValues(strconv.Itoa(round)).Inc()
}

func (m *prometheusMetrics) RecordGuessPoints(_ context.Context, difficulty string, points int) {
	m.guessPoints.WithLabelValues(difficulty).Observe(float64(points))
}

func (m *prometheusMetrics) RecordGameEnded(_ context.Context) {
	m.gamesEnded.Inc()
}

func (m *prometheusMetrics) RecordFeedEvent(_ context.Context, table, eventType string) {
	m.feedEvents.WithLabelValues(table, eventType).Inc()
}

// Handler exposes a registry over HTTP for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
