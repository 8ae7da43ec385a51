package gameservice

import (
	"context"
	"sync"
	"time"

	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ------------------------
// Fake Game Repo
// ------------------------

type FakeGameRepo struct {
	trace []string

	CreateGameFunc             func(ctx context.Context, db bun.IDB, game *gamedb.Game) error
	GetGameFunc                func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error)
	GetGameForUpdateFunc       func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error)
	MarkGameStartedFunc        func(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error)
	MarkGameEndedFunc          func(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error)
	ListOpenLobbiesFunc        func(ctx context.Context, db bun.IDB, limit, offset int) ([]gamedb.Game, error)
	InsertLocationsFunc        func(ctx context.Context, db bun.IDB, locations []gamedb.Location) error
	GetLocationFunc            func(ctx context.Context, db bun.IDB, locationID uuid.UUID) (*gamedb.Location, error)
	ListCandidateLocationsFunc func(ctx context.Context, db bun.IDB, filter gamedb.LocationFilter) ([]gamedb.Location, error)
	UpsertPlayerFunc           func(ctx context.Context, db bun.IDB, player *gamedb.Player) error
	ListPlayersFunc            func(ctx context.Context, db bun.IDB, playerIDs []uuid.UUID) ([]gamedb.Player, error)
	AddMemberFunc              func(ctx context.Context, db bun.IDB, member *gamedb.Membership) (bool, error)
	ListMembersFunc            func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error)
	ListMembersForGamesFunc    func(ctx context.Context, db bun.IDB, gameIDs []uuid.UUID) ([]gamedb.Membership, error)
	InsertRoundFunc            func(ctx context.Context, db bun.IDB, round *gamedb.RoundLocation) error
	ListRoundsFunc             func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.RoundLocation, error)
	GetRoundByLocationFunc     func(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*gamedb.RoundLocation, error)
	CloseRoundFunc             func(ctx context.Context, db bun.IDB, gameID uuid.UUID, round int, at time.Time) error
	InsertGuessFunc            func(ctx context.Context, db bun.IDB, guess *gamedb.Guess) error
	GetGuessFunc               func(ctx context.Context, db bun.IDB, gameID, locationID, userID uuid.UUID) (*gamedb.Guess, error)
	GetLatestGuessFunc         func(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*gamedb.Guess, error)
	ListGuessDetailsFunc       func(ctx context.Context, db bun.IDB, gameID uuid.UUID, locationID *uuid.UUID) ([]gamedb.GuessDetail, error)
}

func NewFakeGameRepo() *FakeGameRepo {
	return &FakeGameRepo{
		trace: []string{},
	}
}

func (f *FakeGameRepo) record(step string) {
	f.trace = append(f.trace, step)
}

// --- Repository Interface Implementation ---

func (f *FakeGameRepo) CreateGame(ctx context.Context, db bun.IDB, game *gamedb.Game) error {
	f.record("CreateGame")
	if f.CreateGameFunc != nil {
		return f.CreateGameFunc(ctx, db, game)
	}
	return nil
}

func (f *FakeGameRepo) GetGame(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
	f.record("GetGame")
	if f.GetGameFunc != nil {
		return f.GetGameFunc(ctx, db, gameID)
	}
	return nil, gamedb.ErrNotFound
}

// GetGameForUpdate falls back to GetGameFunc when no lock-specific
// behavior is configured.
func (f *FakeGameRepo) GetGameForUpdate(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
	f.record("GetGameForUpdate")
	if f.GetGameForUpdateFunc != nil {
		return f.GetGameForUpdateFunc(ctx, db, gameID)
	}
	if f.GetGameFunc != nil {
		return f.GetGameFunc(ctx, db, gameID)
	}
	return nil, gamedb.ErrNotFound
}

func (f *FakeGameRepo) MarkGameStarted(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error) {
	f.record("MarkGameStarted")
	if f.MarkGameStartedFunc != nil {
		return f.MarkGameStartedFunc(ctx, db, gameID, at)
	}
	return true, nil
}

func (f *FakeGameRepo) MarkGameEnded(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error) {
	f.record("MarkGameEnded")
	if f.MarkGameEndedFunc != nil {
		return f.MarkGameEndedFunc(ctx, db, gameID, at)
	}
	return true, nil
}

func (f *FakeGameRepo) ListOpenLobbies(ctx context.Context, db bun.IDB, limit, offset int) ([]gamedb.Game, error) {
	f.record("ListOpenLobbies")
	if f.ListOpenLobbiesFunc != nil {
		return f.ListOpenLobbiesFunc(ctx, db, limit, offset)
	}
	return nil, nil
}

func (f *FakeGameRepo) InsertLocations(ctx context.Context, db bun.IDB, locations []gamedb.Location) error {
	f.record("InsertLocations")
	if f.InsertLocationsFunc != nil {
		return f.InsertLocationsFunc(ctx, db, locations)
	}
	return nil
}

func (f *FakeGameRepo) GetLocation(ctx context.Context, db bun.IDB, locationID uuid.UUID) (*gamedb.Location, error) {
	f.record("GetLocation")
	if f.GetLocationFunc != nil {
		return f.GetLocationFunc(ctx, db, locationID)
	}
	return nil, gamedb.ErrNotFound
}

func (f *FakeGameRepo) ListCandidateLocations(ctx context.Context, db bun.IDB, filter gamedb.LocationFilter) ([]gamedb.Location, error) {
	f.record("ListCandidateLocations")
	if f.ListCandidateLocationsFunc != nil {
		return f.ListCandidateLocationsFunc(ctx, db, filter)
	}
	return nil, nil
}

func (f *FakeGameRepo) UpsertPlayer(ctx context.Context, db bun.IDB, player *gamedb.Player) error {
	f.record("UpsertPlayer")
	if f.UpsertPlayerFunc != nil {
		return f.UpsertPlayerFunc(ctx, db, player)
	}
	return nil
}

func (f *FakeGameRepo) ListPlayers(ctx context.Context, db bun.IDB, playerIDs []uuid.UUID) ([]gamedb.Player, error) {
	f.record("ListPlayers")
	if f.ListPlayersFunc != nil {
		return f.ListPlayersFunc(ctx, db, playerIDs)
	}
	return nil, nil
}

func (f *FakeGameRepo) AddMember(ctx context.Context, db bun.IDB, member *gamedb.Membership) (bool, error) {
	f.record("AddMember")
	if f.AddMemberFunc != nil {
		return f.AddMemberFunc(ctx, db, member)
	}
	return true, nil
}

func (f *FakeGameRepo) ListMembers(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
	f.record("ListMembers")
	if f.ListMembersFunc != nil {
		return f.ListMembersFunc(ctx, db, gameID)
	}
	return nil, nil
}

func (f *FakeGameRepo) ListMembersForGames(ctx context.Context, db bun.IDB, gameIDs []uuid.UUID) ([]gamedb.Membership, error) {
	f.record("ListMembersForGames")
	if f.ListMembersForGamesFunc != nil {
		return f.ListMembersForGamesFunc(ctx, db, gameIDs)
	}
	return nil, nil
}

func (f *FakeGameRepo) InsertRound(ctx context.Context, db bun.IDB, round *gamedb.RoundLocation) error {
	f.record("InsertRound")
	if f.InsertRoundFunc != nil {
		return f.InsertRoundFunc(ctx, db, round)
	}
	return nil
}

func (f *FakeGameRepo) ListRounds(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.RoundLocation, error) {
	f.record("ListRounds")
	if f.ListRoundsFunc != nil {
		return f.ListRoundsFunc(ctx, db, gameID)
	}
	return nil, nil
}

func (f *FakeGameRepo) GetRoundByLocation(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*gamedb.RoundLocation, error) {
	f.record("GetRoundByLocation")
	if f.GetRoundByLocationFunc != nil {
		return f.GetRoundByLocationFunc(ctx, db, gameID, locationID)
	}
	return nil, gamedb.ErrNotFound
}

func (f *FakeGameRepo) CloseRound(ctx context.Context, db bun.IDB, gameID uuid.UUID, round int, at time.Time) error {
	f.record("CloseRound")
	if f.CloseRoundFunc != nil {
		return f.CloseRoundFunc(ctx, db, gameID, round, at)
	}
	return nil
}

func (f *FakeGameRepo) InsertGuess(ctx context.Context, db bun.IDB, guess *gamedb.Guess) error {
	f.record("InsertGuess")
	if f.InsertGuessFunc != nil {
		return f.InsertGuessFunc(ctx, db, guess)
	}
	return nil
}

func (f *FakeGameRepo) GetGuess(ctx context.Context, db bun.IDB, gameID, locationID, userID uuid.UUID) (*gamedb.Guess, error) {
	f.record("GetGuess")
	if f.GetGuessFunc != nil {
		return f.GetGuessFunc(ctx, db, gameID, locationID, userID)
	}
	return nil, gamedb.ErrNotFound
}

func (f *FakeGameRepo) GetLatestGuess(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*gamedb.Guess, error) {
	f.record("GetLatestGuess")
	if f.GetLatestGuessFunc != nil {
		return f.GetLatestGuessFunc(ctx, db, gameID, userID)
	}
	return nil, gamedb.ErrNotFound
}

func (f *FakeGameRepo) ListGuessDetails(ctx context.Context, db bun.IDB, gameID uuid.UUID, locationID *uuid.UUID) ([]gamedb.GuessDetail, error) {
	f.record("ListGuessDetails")
	if f.ListGuessDetailsFunc != nil {
		return f.ListGuessDetailsFunc(ctx, db, gameID, locationID)
	}
	return []gamedb.GuessDetail{}, nil
}

// --- Accessors for assertions ---

func (f *FakeGameRepo) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

// Ensure the fake actually satisfies the interface
var _ gamedb.Repository = (*FakeGameRepo)(nil)

// ------------------------
// Fake Feed
// ------------------------

type publishedEvent struct {
	Table gamefeed.Table
	Type  gamefeed.EventType
	Old   any
	New   any
}

type FakeFeed struct {
	mu     sync.Mutex
	events []publishedEvent

	PublishFunc func(ctx context.Context, table gamefeed.Table, typ gamefeed.EventType, oldRow, newRow any) error
}

func (f *FakeFeed) Publish(ctx context.Context, table gamefeed.Table, typ gamefeed.EventType, oldRow, newRow any) error {
	f.mu.Lock()
	f.events = append(f.events, publishedEvent{Table: table, Type: typ, Old: oldRow, New: newRow})
	f.mu.Unlock()
	if f.PublishFunc != nil {
		return f.PublishFunc(ctx, table, typ, oldRow, newRow)
	}
	return nil
}

func (f *FakeFeed) Events() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedEvent, len(f.events))
	copy(out, f.events)
	return out
}

var _ gamefeed.Publisher = (*FakeFeed)(nil)

// ------------------------
// Fake ports
// ------------------------

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type firstPick struct{}

func (firstPick) IntN(int) int { return 0 }

// plainHasher stores passwords as is to keep tests fast.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error)      { return "plain:" + p, nil }
func (plainHasher) Verify(candidate, hash string) bool { return hash == "plain:"+candidate }
