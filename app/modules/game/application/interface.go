package gameservice

import (
	"context"

	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/scoreboard"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	"github.com/google/uuid"
)

// Service is the game session controller.
type Service interface {
	// Lifecycle
	CreateGame(ctx context.Context, req CreateGameRequest) (uuid.UUID, error)
	JoinGame(ctx context.Context, gameID, playerID uuid.UUID, password string) error
	StartGame(ctx context.Context, gameID, actorID uuid.UUID, present []uuid.UUID) error
	SelectNextLocation(ctx context.Context, gameID, actorID uuid.UUID, expectedRound int, present []uuid.UUID) (*RoundInfo, error)
	RecordGuess(ctx context.Context, req RecordGuessRequest) (*GuessResult, error)
	EndGame(ctx context.Context, gameID, actorID uuid.UUID, present []uuid.UUID) error

	// Reads
	GetGame(ctx context.Context, gameID uuid.UUID) (*GameInfo, error)
	ListOpenLobbies(ctx context.Context, limit, offset int) ([]gametypes.Lobby, error)
	ListMembers(ctx context.Context, gameID uuid.UUID) ([]Member, error)
	GetLeader(ctx context.Context, gameID uuid.UUID, present []uuid.UUID) (uuid.UUID, error)
	GetRoundHistory(ctx context.Context, gameID uuid.UUID) ([]RoundInfo, error)
	GetCurrentLocation(ctx context.Context, gameID uuid.UUID) (*RoundInfo, error)
	GetCurrentGuess(ctx context.Context, gameID, playerID uuid.UUID) (*gametypes.PlayerGuess, error)
	GetPlayerPoints(ctx context.Context, gameID, playerID uuid.UUID) (int, error)
	RegisterPlayer(ctx context.Context, playerID uuid.UUID, username string) error

	// Guess aggregation
	GetAllPlayerGuesses(ctx context.Context, gameID uuid.UUID, locationID *uuid.UUID) ([]gametypes.PlayerGuess, error)
	GetScoreboard(ctx context.Context, gameID uuid.UUID) (*scoreboard.Board, error)

	// Rules returns the rules the service enforces.
	Rules() Rules
}
