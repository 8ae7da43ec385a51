package testutils

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/frolf-guesser/app/database"
	"github.com/Black-And-White-Club/frolf-guesser/app/eventbus"
	gamemigrations "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/frolf-guesser/config"
	"github.com/Black-And-White-Club/frolf-guesser/integration_tests/containers"
	natsmodule "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// TestEnvironment holds all resources needed for integration testing
type TestEnvironment struct {
	Ctx           context.Context
	CancelContext context.CancelFunc
	PgContainer   *postgres.PostgresContainer
	NatsContainer *natsmodule.NATSContainer
	DB            *bun.DB
	EventBus      *eventbus.EventBus
	Config        *config.Config
	Logger        *slog.Logger
}

// NewTestEnvironment creates a new test environment with Postgres and NATS containers
func NewTestEnvironment() (*TestEnvironment, error) {
	ctx, cancel := context.WithCancel(context.Background())
	env := &TestEnvironment{
		Ctx:           ctx,
		CancelContext: cancel,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	pgContainer, pgConnStr, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup postgres container: %w", err)
	}
	env.PgContainer = pgContainer

	natsContainer, natsURL, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to setup nats container: %w", err)
	}
	env.NatsContainer = natsContainer

	env.Config = &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverPGX, DSN: pgConnStr},
		NATS:     config.NATSConfig{URL: natsURL},
		EventBus: config.EventBusConfig{Transport: config.TransportNATS},
	}

	db, err := database.Open(env.Config.Database)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	env.DB = db

	if err := RunMigrations(ctx, db); err != nil {
		env.Cleanup()
		return nil, err
	}

	bus, err := eventbus.NewNATS(natsURL, env.Logger)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to create EventBus: %w", err)
	}
	env.EventBus = bus

	return env, nil
}

// OpenDB opens another handle on the test database with the given driver.
func (env *TestEnvironment) OpenDB(driver string) (*bun.DB, error) {
	cfg := env.Config.Database
	cfg.Driver = driver
	return database.Open(cfg)
}

// NewEventBus connects another client to the NATS container.
func (env *TestEnvironment) NewEventBus() (*eventbus.EventBus, error) {
	return eventbus.NewNATS(env.Config.NATS.URL, env.Logger)
}

// Cleanup tears down all resources created for testing
func (env *TestEnvironment) Cleanup() {
	log.Println("Cleaning up test environment resources...")
	if env.CancelContext != nil {
		env.CancelContext()
	}
	if env.EventBus != nil {
		if err := env.EventBus.Close(); err != nil {
			log.Printf("Error closing EventBus: %v", err)
		}
	}
	if env.DB != nil {
		_ = env.DB.Close()
	}

	terminateCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if env.NatsContainer != nil {
		if err := env.NatsContainer.Terminate(terminateCtx); err != nil {
			log.Printf("Error terminating NATS container: %v", err)
		}
	}
	if env.PgContainer != nil {
		if err := env.PgContainer.Terminate(terminateCtx); err != nil {
			log.Printf("Error terminating Postgres container: %v", err)
		}
	}
	log.Println("Test environment resources cleaned up.")
}

// RunMigrations applies the game schema.
func RunMigrations(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, gamemigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration tables: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run game migrations: %w", err)
	}
	if group.IsZero() {
		log.Println("No game migrations to run")
	} else {
		log.Printf("Ran game migrations group #%d", group.ID)
	}
	return nil
}

// TruncateTables empties the given tables.
func TruncateTables(ctx context.Context, db *bun.DB, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}

	query := "TRUNCATE TABLE "
	for i, table := range tables {
		query += fmt.Sprintf(`"%s"`, table)
		if i < len(tables)-1 {
			query += ", "
		}
	}
	query += " CASCADE"

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate tables %v: %w", tables, err)
	}
	return nil
}

// CleanGameIntegrationTables empties every game table.
func CleanGameIntegrationTables(ctx context.Context, db *bun.DB) error {
	return TruncateTables(ctx, db, "guesses", "game_location", "user_game", "games", "players", "locations")
}
