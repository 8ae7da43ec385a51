package gameservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/election"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var domainErrors = []error{
	ErrValidation,
	ErrPermissionDenied,
	ErrInsufficientPlayers,
	ErrNoLocationsAvailable,
	ErrDuplicateGuess,
	ErrNotFound,
	ErrInvalidPassword,
	ErrGameFull,
	ErrGameAlreadyStarted,
	ErrGameNotStarted,
	ErrGameEnded,
	ErrPlayerEliminated,
	ErrStaleRound,
}

// IsDomainError reports whether err is an expected outcome rather than an
// infrastructure fault.
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// settle turns a helper error into a failure result or an infrastructure
// error.
func settle[S any](msg string, err error) (results.OperationResult[S, error], error) {
	if IsDomainError(err) {
		return fail[S](err)
	}
	return infra[S](msg, err)
}

func (s *GameService) loadGame(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
	game, err := s.repo.GetGame(ctx, db, gameID)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return nil, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// lockGame loads the game and holds its row lock for the rest of the
// transaction.
func (s *GameService) lockGame(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
	game, err := s.repo.GetGameForUpdate(ctx, db, gameID)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return nil, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
		}
		return nil, fmt.Errorf("failed to lock game: %w", err)
	}
	return game, nil
}

// authorize loads the members and checks that actorID may drive the game.
// Multiplayer games are driven by the leader of the present members only.
// Single-player games by their only member.
func (s *GameService) authorize(ctx context.Context, db bun.IDB, game *gamedb.Game, actorID uuid.UUID, present []uuid.UUID) ([]gamedb.Membership, error) {
	members, err := s.repo.ListMembers(ctx, db, game.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if game.IsMultiplayer {
		if !election.IsLeader(election.Active(electionMembers(members), present), actorID) {
			return nil, fmt.Errorf("%w: %s is not the leader of game %s", ErrPermissionDenied, actorID, game.ID)
		}
		return members, nil
	}
	if !isMember(members, actorID) {
		return nil, fmt.Errorf("%w: %s is not a member of game %s", ErrPermissionDenied, actorID, game.ID)
	}
	return members, nil
}

func requirePlayable(game *gamedb.Game) error {
	if !game.Started() {
		return fmt.Errorf("%w: game %s", ErrGameNotStarted, game.ID)
	}
	if game.Ended() {
		return fmt.Errorf("%w: game %s", ErrGameEnded, game.ID)
	}
	return nil
}

func isMember(members []gamedb.Membership, playerID uuid.UUID) bool {
	for _, m := range members {
		if m.UserID == playerID {
			return true
		}
	}
	return false
}

func electionMembers(members []gamedb.Membership) []election.Member {
	out := make([]election.Member, 0, len(members))
	for _, m := range members {
		out = append(out, election.Member{PlayerID: m.UserID, JoinedAt: m.JoinedAt})
	}
	return out
}
