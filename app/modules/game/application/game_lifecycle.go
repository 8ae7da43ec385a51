package gameservice

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateGame creates a game and makes the creator its first member.
// Single-player games start immediately.
func (s *GameService) CreateGame(ctx context.Context, req CreateGameRequest) (uuid.UUID, error) {
	return execute(s, ctx, "CreateGame", req.CreatorID.String(), func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[uuid.UUID, error], error) {
		return s.createGameLogic(ctx, db, cs, req)
	})
}

func (s *GameService) createGameLogic(ctx context.Context, db bun.IDB, cs *changes, req CreateGameRequest) (results.OperationResult[uuid.UUID, error], error) {
	if req.CreatorID == uuid.Nil {
		return fail[uuid.UUID](fmt.Errorf("%w: creator is required", ErrValidation))
	}

	level, err := gametypes.ParseDifficulty(req.Difficulty)
	if err != nil {
		return fail[uuid.UUID](fmt.Errorf("%w: %v", ErrValidation, err))
	}
	region, err := s.regions.Validate(req.Region)
	if err != nil {
		return fail[uuid.UUID](fmt.Errorf("%w: %v", ErrValidation, err))
	}

	name := strings.TrimSpace(req.Name)
	if req.Multiplayer && utf8.RuneCountInString(name) < gametypes.MinGameNameLength {
		return fail[uuid.UUID](fmt.Errorf("%w: name must be at least %d characters", ErrValidation, gametypes.MinGameNameLength))
	}

	var hash string
	if req.Multiplayer && req.Password != "" {
		if hash, err = s.hasher.Hash(req.Password); err != nil {
			return infra[uuid.UUID]("failed to hash room password", err)
		}
	}

	now := s.clock.Now()
	game := &gamedb.Game{
		ID:            uuid.New(),
		IsMultiplayer: req.Multiplayer,
		Region:        region,
		Level:         string(level),
		Name:          name,
		Password:      hash,
		CreatedAt:     now,
	}
	if !req.Multiplayer {
		game.StartedAt = &now
	}

	if err := s.repo.CreateGame(ctx, db, game); err != nil {
		return infra[uuid.UUID]("failed to create game", err)
	}

	member := &gamedb.Membership{GameID: game.ID, UserID: req.CreatorID, JoinedAt: now}
	if _, err := s.repo.AddMember(ctx, db, member); err != nil {
		return infra[uuid.UUID]("failed to add creator", err)
	}

	cs.insert(gamefeed.TableGames, game)
	cs.insert(gamefeed.TableUserGame, member)
	if s.metrics != nil {
		s.metrics.RecordGameCreated(ctx, req.Multiplayer)
	}
	return succeed(game.ID)
}

// JoinGame adds a player to a multiplayer lobby. Existing members rejoin
// without any check and keep their original join time.
func (s *GameService) JoinGame(ctx context.Context, gameID, playerID uuid.UUID, password string) error {
	_, err := execute(s, ctx, "JoinGame", gameID.String(), func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[bool, error], error) {
		return s.joinGameLogic(ctx, db, cs, gameID, playerID, password)
	})
	return err
}

func (s *GameService) joinGameLogic(ctx context.Context, db bun.IDB, cs *changes, gameID, playerID uuid.UUID, password string) (results.OperationResult[bool, error], error) {
	if playerID == uuid.Nil {
		return fail[bool](fmt.Errorf("%w: player is required", ErrValidation))
	}

	// Concurrent joins queue on the game row so the capacity check holds.
	game, err := s.lockGame(ctx, db, gameID)
	if err != nil {
		return settle[bool]("failed to load game", err)
	}

	members, err := s.repo.ListMembers(ctx, db, gameID)
	if err != nil {
		return infra[bool]("failed to list members", err)
	}
	if isMember(members, playerID) {
		return succeed(false)
	}

	if game.Started() || !game.IsMultiplayer {
		return fail[bool](fmt.Errorf("%w: game %s", ErrGameAlreadyStarted, gameID))
	}
	if game.Password != "" && !s.hasher.Verify(password, game.Password) {
		return fail[bool](ErrInvalidPassword)
	}
	if len(members) >= s.rules.RequiredPlayers {
		return fail[bool](fmt.Errorf("%w: %d of %d players", ErrGameFull, len(members), s.rules.RequiredPlayers))
	}

	member := &gamedb.Membership{GameID: gameID, UserID: playerID, JoinedAt: s.clock.Now()}
	inserted, err := s.repo.AddMember(ctx, db, member)
	if err != nil {
		return infra[bool]("failed to add member", err)
	}
	if inserted {
		cs.insert(gamefeed.TableUserGame, member)
	}
	return succeed(inserted)
}

// StartGame starts a multiplayer game once the leader asks for it, the
// quorum is reached and every member is present. Starting a started game
// is a no-op.
func (s *GameService) StartGame(ctx context.Context, gameID, actorID uuid.UUID, present []uuid.UUID) error {
	_, err := execute(s, ctx, "StartGame", gameID.String(), func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[bool, error], error) {
		return s.startGameLogic(ctx, db, cs, gameID, actorID, present)
	})
	return err
}

func (s *GameService) startGameLogic(ctx context.Context, db bun.IDB, cs *changes, gameID, actorID uuid.UUID, present []uuid.UUID) (results.OperationResult[bool, error], error) {
	game, err := s.loadGame(ctx, db, gameID)
	if err != nil {
		return settle[bool]("failed to load game", err)
	}
	if game.Started() {
		return succeed(false)
	}

	members, err := s.authorize(ctx, db, game, actorID, present)
	if err != nil {
		return settle[bool]("failed to authorize", err)
	}

	if game.IsMultiplayer {
		here := make(map[uuid.UUID]bool, len(present))
		for _, id := range present {
			here[id] = true
		}
		presentMembers := 0
		for _, m := range members {
			if here[m.UserID] {
				presentMembers++
			}
		}
		if len(members) < s.rules.RequiredPlayers || presentMembers != len(members) {
			return fail[bool](fmt.Errorf("%w: %d members, %d present, %d required",
				ErrInsufficientPlayers, len(members), presentMembers, s.rules.RequiredPlayers))
		}
	}

	before := *game
	now := s.clock.Now()
	changed, err := s.repo.MarkGameStarted(ctx, db, gameID, now)
	if err != nil {
		return infra[bool]("failed to start game", err)
	}
	if !changed {
		return succeed(false)
	}
	game.StartedAt = &now
	cs.update(gamefeed.TableGames, &before, game)
	return succeed(true)
}

// EndGame ends a started game and closes its open round. Ending an ended
// game is a no-op. present is the caller's presence view used to elect the
// leader.
func (s *GameService) EndGame(ctx context.Context, gameID, actorID uuid.UUID, present []uuid.UUID) error {
	_, err := execute(s, ctx, "EndGame", gameID.String(), func(ctx context.Context, db bun.IDB, cs *changes) (results.OperationResult[bool, error], error) {
		return s.endGameLogic(ctx, db, cs, gameID, actorID, present)
	})
	return err
}

func (s *GameService) endGameLogic(ctx context.Context, db bun.IDB, cs *changes, gameID, actorID uuid.UUID, present []uuid.UUID) (results.OperationResult[bool, error], error) {
	game, err := s.loadGame(ctx, db, gameID)
	if err != nil {
		return settle[bool]("failed to load game", err)
	}
	if game.Ended() {
		return succeed(false)
	}
	if !game.Started() {
		return fail[bool](fmt.Errorf("%w: game %s", ErrGameNotStarted, gameID))
	}
	if _, err := s.authorize(ctx, db, game, actorID, present); err != nil {
		return settle[bool]("failed to authorize", err)
	}

	now := s.clock.Now()
	if err := s.closeOpenRound(ctx, db, cs, gameID, now); err != nil {
		return infra[bool]("failed to close round", err)
	}

	before := *game
	changed, err := s.repo.MarkGameEnded(ctx, db, gameID, now)
	if err != nil {
		return infra[bool]("failed to end game", err)
	}
	if !changed {
		return succeed(false)
	}
	game.EndedAt = &now
	cs.update(gamefeed.TableGames, &before, game)
	if s.metrics != nil {
		s.metrics.RecordGameEnded(ctx)
	}
	return succeed(true)
}

// closeOpenRound closes the last round if it is still open.
func (s *GameService) closeOpenRound(ctx context.Context, db bun.IDB, cs *changes, gameID uuid.UUID, now time.Time) error {
	rounds, err := s.repo.ListRounds(ctx, db, gameID)
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		return nil
	}
	last := rounds[len(rounds)-1]
	if last.EndedAt != nil {
		return nil
	}
	if err := s.repo.CloseRound(ctx, db, gameID, last.Round, now); err != nil {
		return err
	}
	before := last
	last.EndedAt = &now
	cs.update(gamefeed.TableGameLocation, &before, &last)
	return nil
}
