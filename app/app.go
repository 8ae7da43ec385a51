// Package app assembles the game engine process: store, event bus, game
// module and the optional metrics endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Black-And-White-Club/frolf-guesser/app/database"
	"github.com/Black-And-White-Club/frolf-guesser/app/eventbus"
	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game"
	gamemetrics "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/metrics"
	"github.com/Black-And-White-Club/frolf-guesser/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
)

const serviceName = "frolf-guesser"

// App holds the long lived dependencies of the process.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *bun.DB
	EventBus   *eventbus.EventBus
	Registry   *prometheus.Registry
	GameModule *game.Module

	metricsServer *http.Server
	wg            sync.WaitGroup
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level, environment string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if environment == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", serviceName))
}

// New connects the store and the event bus and builds the game module.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg.Observability.LogLevel, cfg.Observability.Environment)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	bus, err := eventbus.New(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracer := otel.Tracer(serviceName)
	gameModule, err := game.NewGameModule(ctx, cfg, logger, db, bus, registry, tracer)
	if err != nil {
		_ = bus.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create game module: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		EventBus:   bus,
		Registry:   registry,
		GameModule: gameModule,
	}
	if addr := cfg.Observability.MetricsAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", gamemetrics.Handler(registry))
		a.metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Run starts the module and the metrics endpoint and blocks until ctx is
// done.
func (a *App) Run(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("database_driver", a.Config.Database.Driver),
		slog.String("transport", a.EventBus.Transport()),
	)

	a.wg.Add(1)
	go a.GameModule.Run(ctx, &a.wg)

	serveErr := make(chan error, 1)
	if a.metricsServer != nil {
		go func() {
			a.Logger.InfoContext(ctx, "Serving metrics", slog.String("address", a.metricsServer.Addr))
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return err
	}
}

// Close stops everything New and Run started.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if err := a.GameModule.Close(); err != nil {
		errs = append(errs, err)
	}
	a.wg.Wait()

	if err := a.EventBus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	a.Logger.Info("Application stopped")
	return errors.Join(errs...)
}
