package gameservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/scoring"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamemetrics "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/metrics"
	gamepassword "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/password"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "GameService"

// GameService implements the Service interface.
type GameService struct {
	repo    gamedb.Repository
	feed    gamefeed.Publisher
	hasher  gamepassword.Hasher
	regions *gametypes.RegionCatalog
	logger  *slog.Logger
	metrics gamemetrics.GameMetrics
	tracer  trace.Tracer
	db      *bun.DB

	rules  Rules
	clock  Clock
	random Randomizer
	areas  map[string]float64
}

var _ Service = (*GameService)(nil)

// Option customises a GameService.
type Option func(*GameService)

// WithRules overrides the default game rules. Zero fields keep defaults.
func WithRules(r Rules) Option {
	return func(s *GameService) {
		d := DefaultRules()
		if r.MaxRounds > 0 {
			d.MaxRounds = r.MaxRounds
		}
		if r.StartingPoints > 0 {
			d.StartingPoints = r.StartingPoints
		}
		if r.RequiredPlayers > 0 {
			d.RequiredPlayers = r.RequiredPlayers
		}
		if r.AllRegionArea > 0 {
			d.AllRegionArea = r.AllRegionArea
		}
		if r.LobbyPageSize > 0 {
			d.LobbyPageSize = r.LobbyPageSize
		}
		s.rules = d
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *GameService) { s.clock = c }
}

// WithRandomizer replaces the location picker's source of randomness.
func WithRandomizer(r Randomizer) Option {
	return func(s *GameService) { s.random = r }
}

// NewGameService creates a new GameService.
func NewGameService(
	repo gamedb.Repository,
	feed gamefeed.Publisher,
	hasher gamepassword.Hasher,
	regions *gametypes.RegionCatalog,
	logger *slog.Logger,
	metrics gamemetrics.GameMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	opts ...Option,
) *GameService {
	if logger == nil {
		logger = slog.Default()
	}
	if regions == nil {
		regions = gametypes.DefaultRegions()
	}
	if hasher == nil {
		hasher = gamepassword.NewBcrypt(gamepassword.DefaultCost)
	}
	s := &GameService{
		repo:    repo,
		feed:    feed,
		hasher:  hasher,
		regions: regions,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		db:      db,
		rules:   DefaultRules(),
		clock:   systemClock{},
		random:  systemRandom{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.areas = make(map[string]float64)
	for _, name := range regions.Names() {
		r, _ := regions.Lookup(name)
		s.areas[name] = scoring.RegionArea(r.Outer())
	}
	return s
}

func (s *GameService) Rules() Rules { return s.rules }

// regionArea returns the scoring area of a game's region.
func (s *GameService) regionArea(ctx context.Context, region string) float64 {
	if region == gametypes.RegionAll {
		return s.rules.AllRegionArea
	}
	if area, ok := s.areas[region]; ok {
		return area
	}
	s.logger.WarnContext(ctx, "Region missing from catalog, scoring as all regions",
		slog.String("region", region),
	)
	return s.rules.AllRegionArea
}

// -----------------------------------------------------------------------------
// Change events
// -----------------------------------------------------------------------------

type change struct {
	table  gamefeed.Table
	typ    gamefeed.EventType
	oldRow any
	newRow any
}

// changes collects feed events inside a transaction. They are published
// only once the transaction committed.
type changes []change

func (c *changes) insert(table gamefeed.Table, row any) {
	*c = append(*c, change{table: table, typ: gamefeed.Insert, newRow: row})
}

func (c *changes) update(table gamefeed.Table, oldRow, newRow any) {
	*c = append(*c, change{table: table, typ: gamefeed.Update, oldRow: oldRow, newRow: newRow})
}

// publish emits committed changes. The store is the source of truth, so a
// feed failure is logged and clients catch up on their next resync.
func (s *GameService) publish(ctx context.Context, operationName string, cs changes) {
	if s.feed == nil {
		return
	}
	for _, c := range cs {
		if err := s.feed.Publish(ctx, c.table, c.typ, c.oldRow, c.newRow); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish change event",
				slog.String("operation", operationName),
				slog.String("table", string(c.table)),
				slog.String("event_type", string(c.typ)),
				slog.Any("error", err),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Generic Helpers (Defined as functions because methods cannot have type params)
// -----------------------------------------------------------------------------

// operationFunc is the generic signature for service operation functions.
type operationFunc[S any, F any] func(ctx context.Context) (results.OperationResult[S, F], error)

// txFunc is the body of an operation run inside a transaction.
type txFunc[S any] func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[S, error], error)

// execute runs fn in a transaction under telemetry, publishes its changes
// after commit and flattens the result into a value and an error.
func execute[S any](s *GameService, ctx context.Context, operationName, identifier string, fn txFunc[S]) (S, error) {
	var cs changes
	result, err := withTelemetry(s, ctx, operationName, identifier, func(ctx context.Context) (results.OperationResult[S, error], error) {
		cs = nil
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (results.OperationResult[S, error], error) {
			return fn(ctx, db, &cs)
		})
	})

	var zero S
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if result.IsFailure() {
		return zero, *result.Failure
	}
	s.publish(ctx, operationName, cs)
	if result.Success == nil {
		return zero, nil
	}
	return *result.Success, nil
}

// query runs a read outside any transaction under telemetry.
func query[S any](s *GameService, ctx context.Context, operationName, identifier string, fn func(ctx context.Context, db bun.IDB) (results.OperationResult[S, error], error)) (S, error) {
	result, err := withTelemetry(s, ctx, operationName, identifier, func(ctx context.Context) (results.OperationResult[S, error], error) {
		var db bun.IDB
		if s.db != nil {
			db = s.db
		}
		return fn(ctx, db)
	})

	var zero S
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if result.IsFailure() {
		return zero, *result.Failure
	}
	if result.Success == nil {
		return zero, nil
	}
	return *result.Success, nil
}

// withTelemetry wraps a service operation with tracing, metrics, and panic recovery.
func withTelemetry[S any, F any](
	s *GameService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[S, F],
) (result results.OperationResult[S, F], err error) {

	// Start span
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	// Record attempt
	if s.metrics != nil {
		s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)
	}

	// Track duration
	startTime := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
		}
	}()

	s.logger.InfoContext(ctx, "Operation triggered", slog.String("operation", operationName))

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				slog.String("identifier", identifier),
				slog.Any("error", err),
			)
			if s.metrics != nil {
				s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			}
			span.RecordError(err)
			result = results.OperationResult[S, F]{}
		}
	}()

	// Execute operation
	result, err = op(ctx)

	// Handle Infrastructure Error
	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			slog.String("operation", operationName),
			slog.String("identifier", identifier),
			slog.Any("error", wrappedErr),
		)
		if s.metrics != nil {
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		}
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	// Handle Domain Failure
	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			slog.String("operation", operationName),
			slog.String("identifier", identifier),
			slog.Any("failure_payload", *result.Failure),
		)
	}

	// Handle Success
	if result.IsSuccess() {
		s.logger.InfoContext(ctx, "Operation completed successfully",
			slog.String("operation", operationName),
			slog.String("identifier", identifier),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	}

	return result, nil
}

// errRollback aborts a transaction whose operation returned a domain failure.
var errRollback = errors.New("rollback on domain failure")

// runInTx ensures the operation runs within a transaction. A domain
// failure rolls the transaction back but is still returned as a result.
func runInTx[S any, F any](
	s *GameService,
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (results.OperationResult[S, F], error),
) (results.OperationResult[S, F], error) {

	if s.db == nil {
		return fn(ctx, nil)
	}

	var result results.OperationResult[S, F]

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		if txErr == nil && result.IsFailure() {
			return errRollback
		}
		return txErr
	})
	if errors.Is(err, errRollback) {
		err = nil
	}

	return result, err
}

// fail builds a domain failure result.
func fail[S any](err error) (results.OperationResult[S, error], error) {
	return results.FailureResult[S, error](err), nil
}

// succeed builds a success result.
func succeed[S any](v S) (results.OperationResult[S, error], error) {
	return results.SuccessResult[S, error](v), nil
}

// infra builds an infrastructure error return.
func infra[S any](msg string, err error) (results.OperationResult[S, error], error) {
	return results.OperationResult[S, error]{}, fmt.Errorf("%s: %w", msg, err)
}
