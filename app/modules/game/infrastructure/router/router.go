package gamerouter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamehandlers "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/handlers"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// TestEnvironmentFlag is the flag to check if we're in a test environment
	TestEnvironmentFlag  = "APP_ENV"
	TestEnvironmentValue = "test"
)

// Tables is the set of feed tables the router consumes.
var Tables = []gamefeed.Table{
	gamefeed.TableGames,
	gamefeed.TableGameLocation,
	gamefeed.TableGuesses,
	gamefeed.TableUserGame,
}

// GameRouter routes change feed messages to the activity handlers.
type GameRouter struct {
	logger         *slog.Logger
	Router         *message.Router
	subscriber     message.Subscriber
	metricsBuilder *metrics.PrometheusMetricsBuilder
}

// NewGameRouter creates a GameRouter. Router metrics are registered only
// when a registry is given and APP_ENV is not "test".
func NewGameRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber message.Subscriber,
	prometheusRegistry prometheus.Registerer,
) *GameRouter {
	inTestEnv := os.Getenv(TestEnvironmentFlag) == TestEnvironmentValue

	var metricsBuilder *metrics.PrometheusMetricsBuilder
	if prometheusRegistry != nil && !inTestEnv {
		builder := metrics.NewPrometheusMetricsBuilder(prometheusRegistry, "", "")
		metricsBuilder = &builder
	} else {
		logger.Info("Skipping Prometheus router metrics for game",
			slog.Bool("registry_provided", prometheusRegistry != nil),
			slog.Bool("in_test_env", inTestEnv),
		)
	}

	return &GameRouter{
		logger:         logger,
		Router:         router,
		subscriber:     subscriber,
		metricsBuilder: metricsBuilder,
	}
}

// Configure adds the middleware and registers one handler per feed table.
func (r *GameRouter) Configure(handlers gamehandlers.Handlers) error {
	if handlers == nil {
		return fmt.Errorf("game router needs handlers")
	}
	if r.metricsBuilder != nil {
		r.metricsBuilder.AddPrometheusRouterMetrics(r.Router)
	}
	r.Router.AddMiddleware(middleware.Recoverer)

	for _, table := range Tables {
		r.registerHandler(table, handlers)
	}
	return nil
}

func (r *GameRouter) registerHandler(table gamefeed.Table, handlers gamehandlers.Handlers) {
	handlerName := "game.activity." + string(table)

	r.Router.AddNoPublisherHandler(
		handlerName,
		gamefeed.Topic(table),
		r.subscriber,
		func(msg *message.Message) error {
			ev, err := gamefeed.DecodeMessage(msg)
			if err != nil {
				// Malformed payloads are acked and dropped.
				r.logger.WarnContext(msg.Context(), "Dropping malformed feed message",
					slog.String("handler", handlerName),
					slog.Any("error", err),
				)
				return nil
			}
			return handlers.HandleFeedEvent(msg.Context(), ev)
		},
	)
}

// Run blocks until the router stops or ctx is cancelled.
func (r *GameRouter) Run(ctx context.Context) error {
	return r.Router.Run(ctx)
}

// Running is closed once every handler subscribed.
func (r *GameRouter) Running() chan struct{} {
	return r.Router.Running()
}

// Close stops the router.
func (r *GameRouter) Close() error {
	return r.Router.Close()
}
