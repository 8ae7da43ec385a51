package gameservice

import (
	"context"

	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/scoreboard"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	"github.com/Black-And-White-Club/frolf-guesser/pkg/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// GetScoreboard builds the per-player totals and, for multiplayer games,
// the outcome.
func (s *GameService) GetScoreboard(ctx context.Context, gameID uuid.UUID) (*scoreboard.Board, error) {
	return query(s, ctx, "GetScoreboard", gameID.String(), func(ctx context.Context, db bun.IDB) (results.OperationResult[*scoreboard.Board, error], error) {
		game, err := s.loadGame(ctx, db, gameID)
		if err != nil {
			return settle[*scoreboard.Board]("failed to load game", err)
		}

		members, err := s.members(ctx, db, gameID)
		if err != nil {
			return infra[*scoreboard.Board]("failed to list members", err)
		}
		ids := make([]uuid.UUID, 0, len(members))
		names := make(map[uuid.UUID]string, len(members))
		for _, m := range members {
			ids = append(ids, m.PlayerID)
			names[m.PlayerID] = m.Username
		}

		details, err := s.repo.ListGuessDetails(ctx, db, gameID, nil)
		if err != nil {
			return infra[*scoreboard.Board]("failed to list guesses", err)
		}
		guesses := make([]gametypes.PlayerGuess, 0, len(details))
		for _, d := range details {
			guesses = append(guesses, toPlayerGuess(d))
		}

		board := scoreboard.Build(ids, names, guesses, game.IsMultiplayer)
		return succeed(&board)
	})
}
