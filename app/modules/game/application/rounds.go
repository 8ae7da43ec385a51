package gameservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SelectNextLocation draws an unused location and appends it as the next
// round. expectedRound is the round count the caller last saw; a mismatch
// means another writer advanced first. present is the caller's presence
// view used to elect the leader.
func (s *GameService) SelectNextLocation(ctx context.Context, gameID, actorID uuid.UUID, expectedRound int, present []uuid.UUID) (*RoundInfo, error) {
	return execute(s, ctx, "SelectNextLocation", gameID.String(), func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[*RoundInfo, error], error) {
		return s.selectNextLocationLogic(ctx, db, cs, gameID, actorID, expectedRound, present)
	})
}

func (s *GameService) selectNextLocationLogic(ctx context.Context, db bun.IDB, cs *changes, gameID, actorID uuid.UUID, expectedRound int, present []uuid.UUID) (results.OperationResult[*RoundInfo, error], error) {
	game, err := s.loadGame(ctx, db, gameID)
	if err != nil {
		return settle[*RoundInfo]("failed to load game", err)
	}
	if err := requirePlayable(game); err != nil {
		return fail[*RoundInfo](err)
	}
	if _, err := s.authorize(ctx, db, game, actorID, present); err != nil {
		return settle[*RoundInfo]("failed to authorize", err)
	}

	rounds, err := s.repo.ListRounds(ctx, db, gameID)
	if err != nil {
		return infra[*RoundInfo]("failed to list rounds", err)
	}
	if expectedRound != len(rounds) {
		return fail[*RoundInfo](fmt.Errorf("%w: expected round %d, game is at round %d", ErrStaleRound, expectedRound, len(rounds)))
	}
	if len(rounds) >= s.rules.MaxRounds {
		return fail[*RoundInfo](fmt.Errorf("%w: game already played %d rounds", ErrValidation, s.rules.MaxRounds))
	}

	candidates, err := s.repo.ListCandidateLocations(ctx, db, gamedb.LocationFilter{
		Level:         game.Level,
		Region:        game.Region,
		ExcludeGameID: gameID,
	})
	if err != nil {
		return infra[*RoundInfo]("failed to list candidate locations", err)
	}
	if len(candidates) == 0 {
		return fail[*RoundInfo](fmt.Errorf("%w: level %s, region %s", ErrNoLocationsAvailable, game.Level, game.Region))
	}
	location := candidates[s.random.IntN(len(candidates))]

	now := s.clock.Now()
	if err := s.closeOpenRound(ctx, db, cs, gameID, now); err != nil {
		return infra[*RoundInfo]("failed to close previous round", err)
	}

	round := &gamedb.RoundLocation{
		GameID:     gameID,
		LocationID: location.ID,
		Round:      len(rounds) + 1,
		CreatedAt:  now,
	}
	if err := s.repo.InsertRound(ctx, db, round); err != nil {
		if errors.Is(err, gamedb.ErrDuplicate) {
			return fail[*RoundInfo](fmt.Errorf("%w: round %d already exists", ErrStaleRound, round.Round))
		}
		return infra[*RoundInfo]("failed to insert round", err)
	}

	cs.insert(gamefeed.TableGameLocation, round)
	if s.metrics != nil {
		s.metrics.RecordRoundStarted(ctx, round.Round)
	}

	s.logger.InfoContext(ctx, "Round location selected",
		slog.String("game_id", gameID.String()),
		slog.Int("round", round.Round),
		slog.String("location_id", location.ID.String()),
	)

	info := toRoundInfo(*round, location.ImagePath)
	return succeed(&info)
}
