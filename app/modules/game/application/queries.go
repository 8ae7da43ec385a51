package gameservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/election"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// GetGame returns a game by id.
func (s *GameService) GetGame(ctx context.Context, gameID uuid.UUID) (*GameInfo, error) {
	return query(s, ctx, "GetGame", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[*GameInfo, error], error) {
		game, err := s.loadGame(ctx, db, gameID)
		if err != nil {
			return settle[*GameInfo]("failed to load game", err)
		}
		return succeed(toGameInfo(game))
	})
}

// ListOpenLobbies returns a page of multiplayer games still waiting for
// players, newest first. A non-positive limit uses the default page size.
func (s *GameService) ListOpenLobbies(ctx context.Context, limit, offset int) ([]gametypes.Lobby, error) {
	if limit <= 0 {
		limit = s.rules.LobbyPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return query(s, ctx, "ListOpenLobbies", fmt.Sprintf("%d/%d", offset, limit), func(ctx context.Context, db bun.IDB) (results.OperationResult[[]gametypes.Lobby, error], error) {
		games, err := s.repo.ListOpenLobbies(ctx, db, limit, offset)
		if err != nil {
			return infra[[]gametypes.Lobby]("failed to list lobbies", err)
		}
		lobbies := make([]gametypes.Lobby, 0, len(games))
		if len(games) == 0 {
			return succeed(lobbies)
		}

		ids := make([]uuid.UUID, 0, len(games))
		for _, g := range games {
			ids = append(ids, g.ID)
		}
		memberships, err := s.repo.ListMembersForGames(ctx, db, ids)
		if err != nil {
			return infra[[]gametypes.Lobby]("failed to list lobby members", err)
		}
		byGame := make(map[uuid.UUID][]uuid.UUID, len(games))
		for _, m := range memberships {
			byGame[m.GameID] = append(byGame[m.GameID], m.UserID)
		}

		for _, g := range games {
			lobbies = append(lobbies, gametypes.Lobby{
				ID:               g.ID,
				Name:             g.Name,
				Region:           g.Region,
				Difficulty:       gametypes.Difficulty(g.Level),
				CreatedAt:        g.CreatedAt,
				MemberIDs:        byGame[g.ID],
				PasswordRequired: g.Password != "",
			})
		}
		return succeed(lobbies)
	})
}

// ListMembers returns a game's members in join order with their display
// names.
func (s *GameService) ListMembers(ctx context.Context, gameID uuid.UUID) ([]Member, error) {
	return query(s, ctx, "ListMembers", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[[]Member, error], error) {
		members, err := s.members(ctx, db, gameID)
		if err != nil {
			return infra[[]Member]("failed to list members", err)
		}
		return succeed(members)
	})
}

func (s *GameService) members(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]Member, error) {
	memberships, err := s.repo.ListMembers(ctx, db, gameID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UserID)
	}
	names, err := s.usernames(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, Member{PlayerID: m.UserID, Username: names[m.UserID], JoinedAt: m.JoinedAt})
	}
	return out, nil
}

func (s *GameService) usernames(ctx context.Context, db bun.IDB, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	players, err := s.repo.ListPlayers(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		names[p.ID] = p.Username
	}
	return names, nil
}

// GetLeader returns the member currently entitled to drive the session
// given who is present. An empty present set elects over all members.
func (s *GameService) GetLeader(ctx context.Context, gameID uuid.UUID, present []uuid.UUID) (uuid.UUID, error) {
	return query(s, ctx, "GetLeader", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[uuid.UUID, error], error) {
		memberships, err := s.repo.ListMembers(ctx, db, gameID)
		if err != nil {
			return infra[uuid.UUID]("failed to list members", err)
		}
		leader, ok := election.LeaderAmong(electionMembers(memberships), present)
		if !ok {
			return fail[uuid.UUID](fmt.Errorf("%w: game %s has no members", ErrNotFound, gameID))
		}
		return succeed(leader)
	})
}

// GetRoundHistory returns the game's rounds in order.
func (s *GameService) GetRoundHistory(ctx context.Context, gameID uuid.UUID) ([]RoundInfo, error) {
	return query(s, ctx, "GetRoundHistory", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[[]RoundInfo, error], error) {
		history, err := s.roundHistory(ctx, db, gameID)
		if err != nil {
			return infra[[]RoundInfo]("failed to load round history", err)
		}
		return succeed(history)
	})
}

func (s *GameService) roundHistory(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]RoundInfo, error) {
	rounds, err := s.repo.ListRounds(ctx, db, gameID)
	if err != nil {
		return nil, err
	}
	out := make([]RoundInfo, 0, len(rounds))
	for _, r := range rounds {
		var image string
		loc, err := s.repo.GetLocation(ctx, db, r.LocationID)
		switch {
		case err == nil:
			image = loc.ImagePath
		case !errors.Is(err, gamedb.ErrNotFound):
			return nil, err
		}
		out = append(out, toRoundInfo(r, image))
	}
	return out, nil
}

// GetCurrentLocation returns the latest round, or nil before the first one.
func (s *GameService) GetCurrentLocation(ctx context.Context, gameID uuid.UUID) (*RoundInfo, error) {
	return query(s, ctx, "GetCurrentLocation", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[*RoundInfo, error], error) {
		rounds, err := s.repo.ListRounds(ctx, db, gameID)
		if err != nil {
			return infra[*RoundInfo]("failed to list rounds", err)
		}
		if len(rounds) == 0 {
			return succeed[*RoundInfo](nil)
		}
		current := rounds[len(rounds)-1]

		var image string
		loc, err := s.repo.GetLocation(ctx, db, current.LocationID)
		switch {
		case err == nil:
			image = loc.ImagePath
		case !errors.Is(err, gamedb.ErrNotFound):
			return infra[*RoundInfo]("failed to get location", err)
		}
		info := toRoundInfo(current, image)
		return succeed(&info)
	})
}

// RegisterPlayer records or refreshes a player's display name.
func (s *GameService) RegisterPlayer(ctx context.Context, playerID uuid.UUID, username string) error {
	_, err := execute(s, ctx, "RegisterPlayer", playerID.String(), func(ctx context.Context, db bun.IDB, _ *changes) (results.OperationResult[bool, error], error) {
		name := strings.TrimSpace(username)
		if playerID == uuid.Nil || name == "" {
			return fail[bool](fmt.Errorf("%w: player id and username are required", ErrValidation))
		}
		if err := s.repo.UpsertPlayer(ctx, db, &gamedb.Player{ID: playerID, Username: name}); err != nil {
			return infra[bool]("failed to upsert player", err)
		}
		return succeed(true)
	})
	return err
}
