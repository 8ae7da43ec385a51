package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Black-And-White-Club/frolf-guesser/app/eventbus"
	gameservice "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/application"
	gameclient "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/client"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamehandlers "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/handlers"
	gamemetrics "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/metrics"
	gamepassword "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/password"
	gamepresence "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/presence"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	gamerouter "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/router"
	"github.com/Black-And-White-Club/frolf-guesser/config"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"
)

// Module represents the game module.
type Module struct {
	GameService *gameservice.GameService
	Feed        *gamefeed.Feed
	Presence    *gamepresence.Service
	GameRouter  *gamerouter.GameRouter
	Metrics     gamemetrics.GameMetrics

	logger     *slog.Logger
	cancelFunc context.CancelFunc
}

// NewGameModule creates and initializes a new game module. A nil registry
// disables prometheus metrics.
func NewGameModule(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *bun.DB,
	bus *eventbus.EventBus,
	registry *prometheus.Registry,
	tracer trace.Tracer,
) (*Module, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "game.NewGameModule initializing")

	// 1. Initialize Repository
	repo := gamedb.NewRepository(db)

	// 2. Initialize Metrics
	metrics := gamemetrics.NewNoop()
	if registry != nil {
		m, err := gamemetrics.NewPrometheus(registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register game metrics: %w", err)
		}
		metrics = m
	}

	// 3. Initialize the realtime surfaces
	feed := gamefeed.New(bus, bus, logger)
	presence := gamepresence.New(bus, bus, logger)

	regions := gametypes.DefaultRegions()
	if cfg.Game.RegionsFile != "" {
		loaded, err := gametypes.LoadRegions(cfg.Game.RegionsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load regions: %w", err)
		}
		regions = loaded
	}

	// 4. Initialize Service
	service := gameservice.NewGameService(
		repo,
		feed,
		gamepassword.NewBcrypt(cfg.Game.PasswordCost),
		regions,
		logger,
		metrics,
		tracer,
		db,
		gameservice.WithRules(RulesFromConfig(cfg.Game)),
	)

	// 5. Initialize Router
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create game router: %w", err)
	}
	var registerer prometheus.Registerer
	if registry != nil {
		registerer = registry
	}
	gameRouter := gamerouter.NewGameRouter(logger, router, bus, registerer)
	if err := gameRouter.Configure(gamehandlers.NewActivityHandlers(logger, tracer, metrics)); err != nil {
		return nil, fmt.Errorf("failed to configure game router: %w", err)
	}

	return &Module{
		GameService: service,
		Feed:        feed,
		Presence:    presence,
		GameRouter:  gameRouter,
		Metrics:     metrics,
		logger:      logger,
	}, nil
}

// RulesFromConfig maps the configured game settings onto service rules.
func RulesFromConfig(c config.GameConfig) gameservice.Rules {
	return gameservice.Rules{
		MaxRounds:       c.MaxRounds,
		StartingPoints:  c.StartingPoints,
		RequiredPlayers: c.RequiredPlayers,
		AllRegionArea:   c.AllRegionArea,
		LobbyPageSize:   c.LobbyPageSize,
	}
}

// NewSession creates a client session for one player in one game. The
// caller runs it with Session.Run.
func (m *Module) NewSession(gameID uuid.UUID, self gamepresence.Identity) *gameclient.Session {
	return gameclient.New(m.GameService, m.Feed, m.Presence, gameID, self, m.logger)
}

// Run starts the game module and blocks until ctx is done.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	m.logger.InfoContext(ctx, "Starting game module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	if err := m.GameRouter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.ErrorContext(ctx, "Game router stopped", slog.Any("error", err))
	}
	<-ctx.Done()
	m.logger.InfoContext(ctx, "Game module goroutine stopped")
}

// Close shuts down the game module.
func (m *Module) Close() error {
	m.logger.Info("Stopping game module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	if m.GameRouter != nil {
		if err := m.GameRouter.Close(); err != nil {
			m.logger.Error("Error closing GameRouter from module", slog.Any("error", err))
			return fmt.Errorf("error closing GameRouter: %w", err)
		}
	}

	m.logger.Info("Game module stopped")
	return nil
}
