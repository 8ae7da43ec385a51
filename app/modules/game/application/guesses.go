package gameservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/scoring"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordGuess scores and stores a player's guess for a round.
func (s *GameService) RecordGuess(ctx context.Context, req RecordGuessRequest) (*GuessResult, error) {
	return execute(s, ctx, "RecordGuess", req.GameID.String(), func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[*GuessResult, error], error) {
		return s.recordGuessLogic(ctx, db, cs, req)
	})
}

func (s *GameService) recordGuessLogic(ctx context.Context, db bun.IDB, cs *changes, req RecordGuessRequest) (results.OperationResult[*GuessResult, error], error) {
	if req.PlayerID == uuid.Nil {
		return fail[*GuessResult](fmt.Errorf("%w: player is required", ErrValidation))
	}

	game, err := s.loadGame(ctx, db, req.GameID)
	if err != nil {
		return settle[*GuessResult]("failed to load game", err)
	}
	if err := requirePlayable(game); err != nil {
		return fail[*GuessResult](err)
	}

	round, err := s.repo.GetRoundByLocation(ctx, db, req.GameID, req.LocationID)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return fail[*GuessResult](fmt.Errorf("%w: location %s is not a round of game %s", ErrNotFound, req.LocationID, req.GameID))
		}
		return infra[*GuessResult]("failed to get round", err)
	}
	if round.EndedAt != nil {
		return fail[*GuessResult](fmt.Errorf("%w: round %d is closed", ErrValidation, round.Round))
	}

	members, err := s.repo.ListMembers(ctx, db, req.GameID)
	if err != nil {
		return infra[*GuessResult]("failed to list members", err)
	}
	if !isMember(members, req.PlayerID) {
		return fail[*GuessResult](fmt.Errorf("%w: %s is not a member of game %s", ErrPermissionDenied, req.PlayerID, req.GameID))
	}

	if _, err := s.repo.GetGuess(ctx, db, req.GameID, req.LocationID, req.PlayerID); err == nil {
		return fail[*GuessResult](ErrDuplicateGuess)
	} else if !errors.Is(err, gamedb.ErrNotFound) {
		return infra[*GuessResult]("failed to check for existing guess", err)
	}

	base, err := s.runningScore(ctx, db, req.GameID, req.PlayerID)
	if err != nil {
		return infra[*GuessResult]("failed to get running score", err)
	}
	if base <= 0 {
		return fail[*GuessResult](fmt.Errorf("%w: %s", ErrPlayerEliminated, req.PlayerID))
	}

	location, err := s.repo.GetLocation(ctx, db, req.LocationID)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return fail[*GuessResult](fmt.Errorf("%w: location %s", ErrNotFound, req.LocationID))
		}
		return infra[*GuessResult]("failed to get location", err)
	}

	level := gametypes.Difficulty(game.Level)
	guessed := gametypes.Point{Lat: req.Lat, Lng: req.Lng}
	actual := gametypes.Point{Lat: location.Lat, Lng: location.Lng}
	distance := scoring.Distance(guessed, actual)
	points := scoring.Score(distance, base, s.regionArea(ctx, game.Region), level)

	guess := &gamedb.Guess{
		GameID:     req.GameID,
		LocationID: req.LocationID,
		UserID:     req.PlayerID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Points:     points,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.InsertGuess(ctx, db, guess); err != nil {
		if errors.Is(err, gamedb.ErrDuplicate) {
			return fail[*GuessResult](ErrDuplicateGuess)
		}
		return infra[*GuessResult]("failed to insert guess", err)
	}
	cs.insert(gamefeed.TableGuesses, guess)
	if s.metrics != nil {
		s.metrics.RecordGuessPoints(ctx, game.Level, points)
	}

	var username string
	if players, err := s.repo.ListPlayers(ctx, db, []uuid.UUID{req.PlayerID}); err == nil && len(players) > 0 {
		username = players[0].Username
	}

	return succeed(&GuessResult{
		Guess: gametypes.PlayerGuess{
			GameID:     guess.GameID,
			LocationID: guess.LocationID,
			PlayerID:   guess.UserID,
			Username:   username,
			Round:      round.Round,
			Guess:      guessed,
			Location:   actual,
			Points:     points,
			CreatedAt:  guess.CreatedAt,
		},
		Distance:   distance,
		Eliminated: points == 0,
	})
}

// runningScore is the points of the player's latest guess, or the starting
// points before the first guess.
func (s *GameService) runningScore(ctx context.Context, db bun.IDB, gameID, playerID uuid.UUID) (int, error) {
	latest, err := s.repo.GetLatestGuess(ctx, db, gameID, playerID)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return s.rules.StartingPoints, nil
		}
		return 0, err
	}
	return latest.Points, nil
}

// GetPlayerPoints returns the player's running score.
func (s *GameService) GetPlayerPoints(ctx context.Context, gameID, playerID uuid.UUID) (int, error) {
	return query(s, ctx, "GetPlayerPoints", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[int, error], error) {
		points, err := s.runningScore(ctx, db, gameID, playerID)
		if err != nil {
			return infra[int]("failed to get running score", err)
		}
		return succeed(points)
	})
}

// GetCurrentGuess returns the player's guess for the latest round, or nil
// when the player has not guessed it yet.
func (s *GameService) GetCurrentGuess(ctx context.Context, gameID, playerID uuid.UUID) (*gametypes.PlayerGuess, error) {
	return query(s, ctx, "GetCurrentGuess", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[*gametypes.PlayerGuess, error], error) {
		rounds, err := s.repo.ListRounds(ctx, db, gameID)
		if err != nil {
			return infra[*gametypes.PlayerGuess]("failed to list rounds", err)
		}
		if len(rounds) == 0 {
			return succeed[*gametypes.PlayerGuess](nil)
		}
		current := rounds[len(rounds)-1]

		details, err := s.repo.ListGuessDetails(ctx, db, gameID, &current.LocationID)
		if err != nil {
			return infra[*gametypes.PlayerGuess]("failed to list guesses", err)
		}
		for _, d := range details {
			if d.UserID == playerID {
				g := toPlayerGuess(d)
				return succeed(&g)
			}
		}
		return succeed[*gametypes.PlayerGuess](nil)
	})
}

// GetAllPlayerGuesses returns the game's guesses ordered by round. A nil
// locationID returns every round.
func (s *GameService) GetAllPlayerGuesses(ctx context.Context, gameID uuid.UUID, locationID *uuid.UUID) ([]gametypes.PlayerGuess, error) {
	return query(s, ctx, "GetAllPlayerGuesses", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[[]gametypes.PlayerGuess, error], error) {
		details, err := s.repo.ListGuessDetails(ctx, db, gameID, locationID)
		if err != nil {
			return infra[[]gametypes.PlayerGuess]("failed to list guesses", err)
		}
		out := make([]gametypes.PlayerGuess, 0, len(details))
		for _, d := range details {
			out = append(out, toPlayerGuess(d))
		}
		return succeed(out)
	})
}
