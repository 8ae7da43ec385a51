package gamedb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository defines the contract for game session persistence.
// Every method accepts a bun.IDB so it can run inside a caller's
// transaction. A nil db falls back to the repository's own connection.
type Repository interface {
	// --- Games ---

	// CreateGame inserts a new game. Returns ErrDuplicate if the id exists.
	CreateGame(ctx context.Context, db bun.IDB, game *Game) error

	// GetGame retrieves a game by id. Returns ErrNotFound if absent.
	GetGame(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*Game, error)

	// GetGameForUpdate retrieves a game and locks its row until the
	// surrounding transaction ends. Writers that check membership capacity
	// load the game this way.
	GetGameForUpdate(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*Game, error)

	// MarkGameStarted sets started_at if it is still unset. Reports whether
	// the row changed.
	MarkGameStarted(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error)

	// MarkGameEnded sets ended_at if it is still unset. Reports whether the
	// row changed.
	MarkGameEnded(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error)

	// ListOpenLobbies returns multiplayer games that have not started,
	// newest first.
	ListOpenLobbies(ctx context.Context, db bun.IDB, limit, offset int) ([]Game, error)

	// --- Locations ---

	// InsertLocations seeds reference locations.
	InsertLocations(ctx context.Context, db bun.IDB, locations []Location) error

	// GetLocation retrieves a location by id. Returns ErrNotFound if absent.
	GetLocation(ctx context.Context, db bun.IDB, locationID uuid.UUID) (*Location, error)

	// ListCandidateLocations returns the locations matching the filter.
	ListCandidateLocations(ctx context.Context, db bun.IDB, filter LocationFilter) ([]Location, error)

	// --- Players ---

	// UpsertPlayer creates a player or refreshes its username.
	UpsertPlayer(ctx context.Context, db bun.IDB, player *Player) error

	// ListPlayers returns the players with the given ids. Unknown ids are skipped.
	ListPlayers(ctx context.Context, db bun.IDB, playerIDs []uuid.UUID) ([]Player, error)

	// --- Memberships ---

	// AddMember inserts a membership. An existing membership is left
	// untouched, keeping its joined_at. Reports whether a row was inserted.
	AddMember(ctx context.Context, db bun.IDB, member *Membership) (bool, error)

	// ListMembers returns a game's members ordered by joined_at.
	ListMembers(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]Membership, error)

	// ListMembersForGames returns memberships for several games at once.
	ListMembersForGames(ctx context.Context, db bun.IDB, gameIDs []uuid.UUID) ([]Membership, error)

	// --- Rounds ---

	// InsertRound appends a round. Returns ErrDuplicate when the round
	// number or the location is already used by the game.
	InsertRound(ctx context.Context, db bun.IDB, round *RoundLocation) error

	// ListRounds returns a game's rounds ordered by round number.
	ListRounds(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]RoundLocation, error)

	// GetRoundByLocation returns the round that used a location. Returns
	// ErrNotFound if the game never used it.
	GetRoundByLocation(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*RoundLocation, error)

	// CloseRound sets ended_at on an open round. Closed rounds are left as is.
	CloseRound(ctx context.Context, db bun.IDB, gameID uuid.UUID, round int, at time.Time) error

	// --- Guesses ---

	// InsertGuess stores a guess. Returns ErrDuplicate if the player already
	// guessed this location in this game.
	InsertGuess(ctx context.Context, db bun.IDB, guess *Guess) error

	// GetGuess returns one guess. Returns ErrNotFound if absent.
	GetGuess(ctx context.Context, db bun.IDB, gameID, locationID, userID uuid.UUID) (*Guess, error)

	// GetLatestGuess returns the player's guess for the highest round.
	// Returns ErrNotFound if the player has not guessed yet.
	GetLatestGuess(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*Guess, error)

	// ListGuessDetails returns the game's guesses with round, true location
	// and username, ordered by round. A nil locationID selects every round.
	ListGuessDetails(ctx context.Context, db bun.IDB, gameID uuid.UUID, locationID *uuid.UUID) ([]GuessDetail, error)
}
