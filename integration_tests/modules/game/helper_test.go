package gameintegration_test

import (
	"log/slog"
	"testing"

	gameservice "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/application"
	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamemetrics "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/metrics"
	gamepassword "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/password"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/integration_tests/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace/noop"
)

type serviceDeps struct {
	db   *bun.DB
	repo gamedb.Repository
	feed *gamefeed.Feed
	svc  *gameservice.GameService

	gameID uuid.UUID
}

// setupService cleans the tables and builds a service over the containers.
func setupService(t *testing.T, db *bun.DB, rules gameservice.Rules) serviceDeps {
	t.Helper()
	require.NoError(t, testutils.CleanGameIntegrationTables(testEnv.Ctx, db))

	repo := gamedb.NewRepository(db)
	feed := gamefeed.New(testEnv.EventBus, testEnv.EventBus, slog.Default())
	svc := gameservice.NewGameService(
		repo,
		feed,
		gamepassword.NewBcrypt(gamepassword.DefaultCost),
		nil,
		slog.Default(),
		gamemetrics.NewNoop(),
		noop.NewTracerProvider().Tracer("integration"),
		db,
		gameservice.WithRules(rules),
	)
	return serviceDeps{db: db, repo: repo, feed: feed, svc: svc}
}
