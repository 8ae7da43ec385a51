package gameservice

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamemetrics "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/metrics"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace/noop"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo gamedb.Repository, feed gamefeed.Publisher) *GameService {
	return NewGameService(
		repo,
		feed,
		plainHasher{},
		nil,
		slog.Default(),
		gamemetrics.NewNoop(),
		noop.NewTracerProvider().Tracer("test"),
		nil,
		WithClock(fixedClock{t: testNow}),
		WithRandomizer(firstPick{}),
	)
}

func startedGame(multiplayer bool) *gamedb.Game {
	started := testNow.Add(-time.Hour)
	return &gamedb.Game{
		ID:            uuid.New(),
		IsMultiplayer: multiplayer,
		Region:        "all",
		Level:         "easy",
		Name:          "room",
		CreatedAt:     started,
		StartedAt:     &started,
	}
}

func membersOf(gameID uuid.UUID, ids ...uuid.UUID) []gamedb.Membership {
	out := make([]gamedb.Membership, 0, len(ids))
	for i, id := range ids {
		out = append(out, gamedb.Membership{GameID: gameID, UserID: id, JoinedAt: testNow.Add(time.Duration(i-10) * time.Minute)})
	}
	return out
}

func TestCreateGame(t *testing.T) {
	creator := uuid.New()

	tests := []struct {
		name        string
		req         CreateGameRequest
		setupRepo   func(*FakeGameRepo)
		wantErrType error
		check       func(t *testing.T, f *FakeGameRepo, created []*gamedb.Game, feed *FakeFeed)
	}{
		{
			name: "single player starts immediately with defaults",
			req:  CreateGameRequest{CreatorID: creator},
			check: func(t *testing.T, f *FakeGameRepo, created []*gamedb.Game, feed *FakeFeed) {
				require.Len(t, created, 1)
				g := created[0]
				assert.False(t, g.IsMultiplayer)
				assert.Equal(t, "all", g.Region)
				assert.Equal(t, "easy", g.Level)
				require.NotNil(t, g.StartedAt)
				assert.Equal(t, testNow, *g.StartedAt)
				assert.Equal(t, []string{"CreateGame", "AddMember"}, f.Trace())

				events := feed.Events()
				require.Len(t, events, 2)
				assert.Equal(t, gamefeed.TableGames, events[0].Table)
				assert.Equal(t, gamefeed.TableUserGame, events[1].Table)
			},
		},
		{
			name: "multiplayer lobby hashes the password",
			req: CreateGameRequest{
				CreatorID:   creator,
				Multiplayer: true,
				Name:        "  friday night  ",
				Password:    "secret",
				Region:      "north_west",
				Difficulty:  "hard",
			},
			check: func(t *testing.T, _ *FakeGameRepo, created []*gamedb.Game, _ *FakeFeed) {
				require.Len(t, created, 1)
				g := created[0]
				assert.True(t, g.IsMultiplayer)
				assert.Nil(t, g.StartedAt)
				assert.Equal(t, "friday night", g.Name)
				assert.Equal(t, "plain:secret", g.Password)
				assert.Equal(t, "north_west", g.Region)
				assert.Equal(t, "hard", g.Level)
			},
		},
		{
			name:        "multiplayer name too short",
			req:         CreateGameRequest{CreatorID: creator, Multiplayer: true, Name: " a "},
			wantErrType: ErrValidation,
		},
		{
			name:        "unknown difficulty",
			req:         CreateGameRequest{CreatorID: creator, Difficulty: "nightmare"},
			wantErrType: ErrValidation,
		},
		{
			name:        "unknown region",
			req:         CreateGameRequest{CreatorID: creator, Region: "atlantis"},
			wantErrType: ErrValidation,
		},
		{
			name:        "missing creator",
			req:         CreateGameRequest{},
			wantErrType: ErrValidation,
		},
		{
			name: "store failure",
			req:  CreateGameRequest{CreatorID: creator},
			setupRepo: func(f *FakeGameRepo) {
				f.CreateGameFunc = func(ctx context.Context, db bun.IDB, game *gamedb.Game) error {
					return errors.New("connection reset")
				}
			},
			wantErrType: ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeRepo := NewFakeGameRepo()
			var created []*gamedb.Game
			fakeRepo.CreateGameFunc = func(ctx context.Context, db bun.IDB, game *gamedb.Game) error {
				created = append(created, game)
				return nil
			}
			if tt.setupRepo != nil {
				tt.setupRepo(fakeRepo)
			}
			feed := &FakeFeed{}
			svc := newTestService(fakeRepo, feed)

			id, err := svc.CreateGame(context.Background(), tt.req)

			if tt.wantErrType != nil {
				assert.ErrorIs(t, err, tt.wantErrType)
				assert.Empty(t, feed.Events())
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, created)
			assert.Equal(t, created[0].ID, id)
			if tt.check != nil {
				tt.check(t, fakeRepo, created, feed)
			}
		})
	}
}

func TestJoinGame(t *testing.T) {
	host, guest := uuid.New(), uuid.New()

	lobby := func(password string) *gamedb.Game {
		return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true, Region: "all", Level: "easy", Name: "room", Password: password}
	}

	tests := []struct {
		name        string
		game        *gamedb.Game
		members     func(g *gamedb.Game) []gamedb.Membership
		player      uuid.UUID
		password    string
		wantErrType error
		wantInsert  bool
	}{
		{
			name:       "joins open lobby",
			game:       lobby(""),
			members:    func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host) },
			player:     guest,
			wantInsert: true,
		},
		{
			name:       "correct password",
			game:       lobby("plain:pw"),
			members:    func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host) },
			player:     guest,
			password:   "pw",
			wantInsert: true,
		},
		{
			name:        "wrong password",
			game:        lobby("plain:pw"),
			members:     func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host) },
			player:      guest,
			password:    "nope",
			wantErrType: ErrInvalidPassword,
		},
		{
			name:        "full lobby",
			game:        lobby(""),
			members:     func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host, uuid.New()) },
			player:      guest,
			wantErrType: ErrGameFull,
		},
		{
			name:    "existing member rejoins a full started game",
			game:    startedGame(true),
			members: func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host, guest) },
			player:  guest,
		},
		{
			name:        "started game rejects newcomers",
			game:        startedGame(true),
			members:     func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host) },
			player:      guest,
			wantErrType: ErrGameAlreadyStarted,
		},
		{
			name:        "single player game cannot be joined",
			game:        startedGame(false),
			members:     func(g *gamedb.Game) []gamedb.Membership { return membersOf(g.ID, host) },
			player:      guest,
			wantErrType: ErrGameAlreadyStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeRepo := NewFakeGameRepo()
			fakeRepo.GetGameFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
				return tt.game, nil
			}
			fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
				return tt.members(tt.game), nil
			}
			feed := &FakeFeed{}
			svc := newTestService(fakeRepo, feed)

			err := svc.JoinGame(context.Background(), tt.game.ID, tt.player, tt.password)

			assert.Contains(t, fakeRepo.Trace(), "GetGameForUpdate", "join locks the game row")
			if tt.wantErrType != nil {
				assert.ErrorIs(t, err, tt.wantErrType)
				assert.NotContains(t, fakeRepo.Trace(), "AddMember")
				return
			}
			require.NoError(t, err)
			if tt.wantInsert {
				assert.Contains(t, fakeRepo.Trace(), "AddMember")
				require.Len(t, feed.Events(), 1)
				assert.Equal(t, gamefeed.TableUserGame, feed.Events()[0].Table)
			} else {
				assert.NotContains(t, fakeRepo.Trace(), "AddMember")
				assert.Empty(t, feed.Events())
			}
		})
	}
}

func TestJoinGameUnknownGame(t *testing.T) {
	svc := newTestService(NewFakeGameRepo(), &FakeFeed{})
	err := svc.JoinGame(context.Background(), uuid.New(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartGame(t *testing.T) {
	host, guest := uuid.New(), uuid.New()

	tests := []struct {
		name        string
		game        func() *gamedb.Game
		members     []uuid.UUID
		actor       uuid.UUID
		present     []uuid.UUID
		wantErrType error
		wantStarted bool
	}{
		{
			name:        "leader starts with everyone present",
			game:        func() *gamedb.Game { return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true} },
			members:     []uuid.UUID{host, guest},
			actor:       host,
			present:     []uuid.UUID{guest, host, uuid.New()},
			wantStarted: true,
		},
		{
			name:        "non leader",
			game:        func() *gamedb.Game { return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true} },
			members:     []uuid.UUID{host, guest},
			actor:       guest,
			present:     []uuid.UUID{host, guest},
			wantErrType: ErrPermissionDenied,
		},
		{
			name:        "member missing from presence",
			game:        func() *gamedb.Game { return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true} },
			members:     []uuid.UUID{host, guest},
			actor:       host,
			present:     []uuid.UUID{host},
			wantErrType: ErrInsufficientPlayers,
		},
		{
			name:        "alone in the lobby",
			game:        func() *gamedb.Game { return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true} },
			members:     []uuid.UUID{host},
			actor:       host,
			present:     []uuid.UUID{host},
			wantErrType: ErrInsufficientPlayers,
		},
		{
			name:    "already started is a no-op",
			game:    func() *gamedb.Game { return startedGame(true) },
			members: []uuid.UUID{host, guest},
			actor:   guest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := tt.game()
			fakeRepo := NewFakeGameRepo()
			fakeRepo.GetGameFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
				return game, nil
			}
			fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
				return membersOf(game.ID, tt.members...), nil
			}
			feed := &FakeFeed{}
			svc := newTestService(fakeRepo, feed)

			err := svc.StartGame(context.Background(), game.ID, tt.actor, tt.present)

			if tt.wantErrType != nil {
				assert.ErrorIs(t, err, tt.wantErrType)
				assert.NotContains(t, fakeRepo.Trace(), "MarkGameStarted")
				return
			}
			require.NoError(t, err)
			if tt.wantStarted {
				assert.Contains(t, fakeRepo.Trace(), "MarkGameStarted")
				events := feed.Events()
				require.Len(t, events, 1)
				assert.Equal(t, gamefeed.TableGames, events[0].Table)
				assert.Equal(t, gamefeed.Update, events[0].Type)
			} else {
				assert.NotContains(t, fakeRepo.Trace(), "MarkGameStarted")
			}
		})
	}
}

func TestSelectNextLocation(t *testing.T) {
	host, guest := uuid.New(), uuid.New()
	candidate := gamedb.Location{ID: uuid.New(), ImagePath: "img/1.webp", Level: "easy", Region: "north_west"}

	tests := []struct {
		name          string
		game          func() *gamedb.Game
		rounds        int
		actor         uuid.UUID
		expectedRound int
		present       []uuid.UUID
		setupRepo     func(*FakeGameRepo)
		wantErrType   error
		wantRound     int
	}{
		{
			name:          "first round",
			game:          func() *gamedb.Game { return startedGame(true) },
			actor:         host,
			expectedRound: 0,
			wantRound:     1,
		},
		{
			name:          "next round closes the previous one",
			game:          func() *gamedb.Game { return startedGame(true) },
			rounds:        2,
			actor:         host,
			expectedRound: 2,
			wantRound:     3,
		},
		{
			name:          "stale expected round",
			game:          func() *gamedb.Game { return startedGame(true) },
			rounds:        2,
			actor:         host,
			expectedRound: 1,
			wantErrType:   ErrStaleRound,
		},
		{
			name:          "non leader",
			game:          func() *gamedb.Game { return startedGame(true) },
			actor:         guest,
			expectedRound: 0,
			present:       []uuid.UUID{host, guest},
			wantErrType:   ErrPermissionDenied,
		},
		{
			name:          "guest leads once the host left",
			game:          func() *gamedb.Game { return startedGame(true) },
			actor:         guest,
			expectedRound: 0,
			present:       []uuid.UUID{guest},
			wantRound:     1,
		},
		{
			name:          "absent host no longer leads",
			game:          func() *gamedb.Game { return startedGame(true) },
			actor:         host,
			expectedRound: 0,
			present:       []uuid.UUID{guest},
			wantErrType:   ErrPermissionDenied,
		},
		{
			name:          "round limit",
			game:          func() *gamedb.Game { return startedGame(true) },
			rounds:        5,
			actor:         host,
			expectedRound: 5,
			wantErrType:   ErrValidation,
		},
		{
			name: "lobby not started",
			game: func() *gamedb.Game {
				return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true}
			},
			actor:       host,
			wantErrType: ErrGameNotStarted,
		},
		{
			name: "ended game",
			game: func() *gamedb.Game {
				g := startedGame(true)
				g.EndedAt = &testNow
				return g
			},
			actor:       host,
			wantErrType: ErrGameEnded,
		},
		{
			name:          "locations exhausted",
			game:          func() *gamedb.Game { return startedGame(true) },
			actor:         host,
			expectedRound: 0,
			setupRepo: func(f *FakeGameRepo) {
				f.ListCandidateLocationsFunc = func(ctx context.Context, db bun.IDB, filter gamedb.LocationFilter) ([]gamedb.Location, error) {
					return nil, nil
				}
			},
			wantErrType: ErrNoLocationsAvailable,
		},
		{
			name:          "racing writer inserted the round",
			game:          func() *gamedb.Game { return startedGame(true) },
			actor:         host,
			expectedRound: 0,
			setupRepo: func(f *FakeGameRepo) {
				f.InsertRoundFunc = func(ctx context.Context, db bun.IDB, round *gamedb.RoundLocation) error {
					return gamedb.ErrDuplicate
				}
			},
			wantErrType: ErrStaleRound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := tt.game()
			rounds := make([]gamedb.RoundLocation, 0, tt.rounds)
			for i := 1; i <= tt.rounds; i++ {
				r := gamedb.RoundLocation{GameID: game.ID, LocationID: uuid.New(), Round: i, CreatedAt: testNow}
				if i < tt.rounds {
					r.EndedAt = &testNow
				}
				rounds = append(rounds, r)
			}

			fakeRepo := NewFakeGameRepo()
			fakeRepo.GetGameFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
				return game, nil
			}
			fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
				return membersOf(game.ID, host, guest), nil
			}
			fakeRepo.ListRoundsFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.RoundLocation, error) {
				return rounds, nil
			}
			var filter gamedb.LocationFilter
			fakeRepo.ListCandidateLocationsFunc = func(ctx context.Context, db bun.IDB, f gamedb.LocationFilter) ([]gamedb.Location, error) {
				filter = f
				return []gamedb.Location{candidate}, nil
			}
			var closed []int
			fakeRepo.CloseRoundFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID, round int, at time.Time) error {
				closed = append(closed, round)
				return nil
			}
			if tt.setupRepo != nil {
				tt.setupRepo(fakeRepo)
			}
			feed := &FakeFeed{}
			svc := newTestService(fakeRepo, feed)

			info, err := svc.SelectNextLocation(context.Background(), game.ID, tt.actor, tt.expectedRound, tt.present)

			if tt.wantErrType != nil {
				assert.ErrorIs(t, err, tt.wantErrType)
				assert.Nil(t, info)
				assert.Empty(t, feed.Events())
				return
			}
			require.NoError(t, err)
			require.NotNil(t, info)
			assert.Equal(t, tt.wantRound, info.Round)
			assert.Equal(t, candidate.ID, info.LocationID)
			assert.Equal(t, candidate.ImagePath, info.ImagePath)
			assert.Equal(t, game.ID, filter.ExcludeGameID)
			assert.Equal(t, game.Level, filter.Level)

			if tt.rounds > 0 {
				assert.Equal(t, []int{tt.rounds}, closed)
			} else {
				assert.Empty(t, closed)
			}

			events := feed.Events()
			require.NotEmpty(t, events)
			last := events[len(events)-1]
			assert.Equal(t, gamefeed.TableGameLocation, last.Table)
			assert.Equal(t, gamefeed.Insert, last.Type)
		})
	}
}

func TestRecordGuess(t *testing.T) {
	player := uuid.New()
	location := &gamedb.Location{ID: uuid.New(), Lat: 1000, Lng: 1000, Level: "easy", Region: "north_west"}

	tests := []struct {
		name        string
		req         func(gameID uuid.UUID) RecordGuessRequest
		setupRepo   func(*FakeGameRepo)
		wantErrType error
		wantPoints  int
		wantElim    bool
	}{
		{
			name: "perfect guess keeps the starting points",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player, Lat: 1100, Lng: 1000}
			},
			wantPoints: 5000,
		},
		{
			name: "running score is the base",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player, Lat: 1000, Lng: 1000}
			},
			setupRepo: func(f *FakeGameRepo) {
				f.GetLatestGuessFunc = func(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*gamedb.Guess, error) {
					return &gamedb.Guess{Points: 3210}, nil
				}
			},
			wantPoints: 3210,
		},
		{
			name: "eliminated player",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player}
			},
			setupRepo: func(f *FakeGameRepo) {
				f.GetLatestGuessFunc = func(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*gamedb.Guess, error) {
					return &gamedb.Guess{Points: 0}, nil
				}
			},
			wantErrType: ErrPlayerEliminated,
		},
		{
			name: "already guessed",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player}
			},
			setupRepo: func(f *FakeGameRepo) {
				f.GetGuessFunc = func(ctx context.Context, db bun.IDB, gameID, locationID, userID uuid.UUID) (*gamedb.Guess, error) {
					return &gamedb.Guess{}, nil
				}
			},
			wantErrType: ErrDuplicateGuess,
		},
		{
			name: "store uniqueness",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player}
			},
			setupRepo: func(f *FakeGameRepo) {
				f.InsertGuessFunc = func(ctx context.Context, db bun.IDB, guess *gamedb.Guess) error {
					return gamedb.ErrDuplicate
				}
			},
			wantErrType: ErrDuplicateGuess,
		},
		{
			name: "location not in game",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: uuid.New(), PlayerID: player}
			},
			wantErrType: ErrNotFound,
		},
		{
			name: "not a member",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: uuid.New()}
			},
			wantErrType: ErrPermissionDenied,
		},
		{
			name: "closed round",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player}
			},
			setupRepo: func(f *FakeGameRepo) {
				f.GetRoundByLocationFunc = func(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*gamedb.RoundLocation, error) {
					return &gamedb.RoundLocation{GameID: gameID, LocationID: locationID, Round: 1, EndedAt: &testNow}, nil
				}
			},
			wantErrType: ErrValidation,
		},
		{
			name: "store failure",
			req: func(gameID uuid.UUID) RecordGuessRequest {
				return RecordGuessRequest{GameID: gameID, LocationID: location.ID, PlayerID: player}
			},
			setupRepo: func(f *FakeGameRepo) {
				f.GetLatestGuessFunc = func(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*gamedb.Guess, error) {
					return nil, errors.New("disk full")
				}
			},
			wantErrType: ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := startedGame(false)
			fakeRepo := NewFakeGameRepo()
			fakeRepo.GetGameFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
				return game, nil
			}
			fakeRepo.GetRoundByLocationFunc = func(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*gamedb.RoundLocation, error) {
				if locationID != location.ID {
					return nil, gamedb.ErrNotFound
				}
				return &gamedb.RoundLocation{GameID: gameID, LocationID: locationID, Round: 1, CreatedAt: testNow}, nil
			}
			fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
				return membersOf(gameID, player), nil
			}
			fakeRepo.GetLocationFunc = func(ctx context.Context, db bun.IDB, locationID uuid.UUID) (*gamedb.Location, error) {
				return location, nil
			}
			fakeRepo.ListPlayersFunc = func(ctx context.Context, db bun.IDB, ids []uuid.UUID) ([]gamedb.Player, error) {
				return []gamedb.Player{{ID: player, Username: "sam"}}, nil
			}
			if tt.setupRepo != nil {
				tt.setupRepo(fakeRepo)
			}
			feed := &FakeFeed{}
			svc := newTestService(fakeRepo, feed)

			res, err := svc.RecordGuess(context.Background(), tt.req(game.ID))

			if tt.wantErrType != nil {
				assert.ErrorIs(t, err, tt.wantErrType)
				assert.Empty(t, feed.Events())
				return
			}
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, tt.wantPoints, res.Guess.Points)
			assert.Equal(t, tt.wantElim, res.Eliminated)
			assert.Equal(t, "sam", res.Guess.Username)
			assert.Equal(t, 1, res.Guess.Round)
			require.Len(t, feed.Events(), 1)
			assert.Equal(t, gamefeed.TableGuesses, feed.Events()[0].Table)
		})
	}
}

func TestRecordGuessFarAwayEliminates(t *testing.T) {
	player := uuid.New()
	game := startedGame(false)
	game.Level = "hard"
	game.Region = "north_west"
	location := &gamedb.Location{ID: uuid.New(), Lat: 0, Lng: 0}

	fakeRepo := NewFakeGameRepo()
	fakeRepo.GetGameFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
		return game, nil
	}
	fakeRepo.GetRoundByLocationFunc = func(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*gamedb.RoundLocation, error) {
		return &gamedb.RoundLocation{GameID: gameID, LocationID: locationID, Round: 2}, nil
	}
	fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
		return membersOf(gameID, player), nil
	}
	fakeRepo.GetLocationFunc = func(ctx context.Context, db bun.IDB, locationID uuid.UUID) (*gamedb.Location, error) {
		return location, nil
	}
	fakeRepo.GetLatestGuessFunc = func(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*gamedb.Guess, error) {
		return &gamedb.Guess{Points: 12}, nil
	}

	svc := newTestService(fakeRepo, &FakeFeed{})
	res, err := svc.RecordGuess(context.Background(), RecordGuessRequest{
		GameID: game.ID, LocationID: location.ID, PlayerID: player, Lat: 1e6, Lng: 1e6,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Guess.Points)
	assert.True(t, res.Eliminated)
}

func TestEndGame(t *testing.T) {
	host, guest := uuid.New(), uuid.New()

	tests := []struct {
		name        string
		game        func() *gamedb.Game
		actor       uuid.UUID
		present     []uuid.UUID
		wantErrType error
		wantEnded   bool
	}{
		{
			name:      "leader ends the game",
			game:      func() *gamedb.Game { return startedGame(true) },
			actor:     host,
			wantEnded: true,
		},
		{
			name:        "non leader",
			game:        func() *gamedb.Game { return startedGame(true) },
			actor:       guest,
			present:     []uuid.UUID{guest, host},
			wantErrType: ErrPermissionDenied,
		},
		{
			name:      "guest ends the game after the host left",
			game:      func() *gamedb.Game { return startedGame(true) },
			actor:     guest,
			present:   []uuid.UUID{guest},
			wantEnded: true,
		},
		{
			name:        "not started",
			game:        func() *gamedb.Game { return &gamedb.Game{ID: uuid.New(), IsMultiplayer: true} },
			actor:       host,
			wantErrType: ErrGameNotStarted,
		},
		{
			name: "already ended is a no-op",
			game: func() *gamedb.Game {
				g := startedGame(true)
				g.EndedAt = &testNow
				return g
			},
			actor: guest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := tt.game()
			fakeRepo := NewFakeGameRepo()
			fakeRepo.GetGameFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*gamedb.Game, error) {
				return game, nil
			}
			fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.Membership, error) {
				return membersOf(game.ID, host, guest), nil
			}
			fakeRepo.ListRoundsFunc = func(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]gamedb.RoundLocation, error) {
				return []gamedb.RoundLocation{{GameID: game.ID, LocationID: uuid.New(), Round: 1}}, nil
			}
			feed := &FakeFeed{}
			svc := newTestService(fakeRepo, feed)

			err := svc.EndGame(context.Background(), game.ID, tt.actor, tt.present)

			if tt.wantErrType != nil {
				assert.ErrorIs(t, err, tt.wantErrType)
				assert.NotContains(t, fakeRepo.Trace(), "MarkGameEnded")
				return
			}
			require.NoError(t, err)
			if !tt.wantEnded {
				assert.NotContains(t, fakeRepo.Trace(), "MarkGameEnded")
				assert.Empty(t, feed.Events())
				return
			}
			assert.Contains(t, fakeRepo.Trace(), "CloseRound")
			assert.Contains(t, fakeRepo.Trace(), "MarkGameEnded")
			events := feed.Events()
			require.Len(t, events, 2)
			assert.Equal(t, gamefeed.TableGameLocation, events[0].Table)
			assert.Equal(t, gamefeed.TableGames, events[1].Table)
		})
	}
}

func TestGetLeader(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	gameID := uuid.New()

	fakeRepo := NewFakeGameRepo()
	fakeRepo.ListMembersFunc = func(ctx context.Context, db bun.IDB, id uuid.UUID) ([]gamedb.Membership, error) {
		// Order of the store result does not matter.
		return []gamedb.Membership{
			{GameID: gameID, UserID: second, JoinedAt: testNow},
			{GameID: gameID, UserID: first, JoinedAt: testNow.Add(-time.Second)},
		}, nil
	}
	svc := newTestService(fakeRepo, nil)

	leader, err := svc.GetLeader(context.Background(), gameID, nil)
	require.NoError(t, err)
	assert.Equal(t, first, leader)

	leader, err = svc.GetLeader(context.Background(), gameID, []uuid.UUID{second})
	require.NoError(t, err)
	assert.Equal(t, second, leader, "leadership passes to the earliest present member")

	empty := newTestService(NewFakeGameRepo(), nil)
	_, err = empty.GetLeader(context.Background(), gameID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetCurrentGuess(t *testing.T) {
	gameID, player := uuid.New(), uuid.New()
	current := gamedb.RoundLocation{GameID: gameID, LocationID: uuid.New(), Round: 2}

	fakeRepo := NewFakeGameRepo()
	svc := newTestService(fakeRepo, nil)

	got, err := svc.GetCurrentGuess(context.Background(), gameID, player)
	require.NoError(t, err)
	assert.Nil(t, got, "no rounds yet")

	fakeRepo.ListRoundsFunc = func(ctx context.Context, db bun.IDB, id uuid.UUID) ([]gamedb.RoundLocation, error) {
		return []gamedb.RoundLocation{{GameID: gameID, LocationID: uuid.New(), Round: 1}, current}, nil
	}
	fakeRepo.ListGuessDetailsFunc = func(ctx context.Context, db bun.IDB, id uuid.UUID, locationID *uuid.UUID) ([]gamedb.GuessDetail, error) {
		require.NotNil(t, locationID)
		assert.Equal(t, current.LocationID, *locationID)
		return []gamedb.GuessDetail{{GameID: gameID, LocationID: current.LocationID, UserID: player, Points: 4100, Round: 2}}, nil
	}

	got, err = svc.GetCurrentGuess(context.Background(), gameID, player)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4100, got.Points)

	got, err = svc.GetCurrentGuess(context.Background(), gameID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListOpenLobbies(t *testing.T) {
	open, locked := uuid.New(), uuid.New()
	host := uuid.New()

	fakeRepo := NewFakeGameRepo()
	var gotLimit int
	fakeRepo.ListOpenLobbiesFunc = func(ctx context.Context, db bun.IDB, limit, offset int) ([]gamedb.Game, error) {
		gotLimit = limit
		return []gamedb.Game{
			{ID: open, IsMultiplayer: true, Name: "open", Region: "all", Level: "easy"},
			{ID: locked, IsMultiplayer: true, Name: "locked", Region: "all", Level: "medium", Password: "plain:x"},
		}, nil
	}
	fakeRepo.ListMembersForGamesFunc = func(ctx context.Context, db bun.IDB, ids []uuid.UUID) ([]gamedb.Membership, error) {
		return []gamedb.Membership{{GameID: open, UserID: host}, {GameID: locked, UserID: host}, {GameID: locked, UserID: uuid.New()}}, nil
	}
	svc := newTestService(fakeRepo, nil)

	lobbies, err := svc.ListOpenLobbies(context.Background(), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 20, gotLimit)
	require.Len(t, lobbies, 2)
	assert.False(t, lobbies[0].PasswordRequired)
	assert.False(t, lobbies[0].Full())
	assert.True(t, lobbies[1].PasswordRequired)
	assert.True(t, lobbies[1].Full())
}

func TestPublishFailureDoesNotFailTheOperation(t *testing.T) {
	feed := &FakeFeed{
		PublishFunc: func(ctx context.Context, table gamefeed.Table, typ gamefeed.EventType, oldRow, newRow any) error {
			return errors.New("broker unavailable")
		},
	}
	svc := newTestService(NewFakeGameRepo(), feed)

	_, err := svc.CreateGame(context.Background(), CreateGameRequest{CreatorID: uuid.New()})
	require.NoError(t, err)
	assert.Len(t, feed.Events(), 2)
}

func TestRegisterPlayer(t *testing.T) {
	fakeRepo := NewFakeGameRepo()
	var stored *gamedb.Player
	fakeRepo.UpsertPlayerFunc = func(ctx context.Context, db bun.IDB, player *gamedb.Player) error {
		stored = player
		return nil
	}
	svc := newTestService(fakeRepo, nil)

	id := uuid.New()
	require.NoError(t, svc.RegisterPlayer(context.Background(), id, "  robin "))
	require.NotNil(t, stored)
	assert.Equal(t, "robin", stored.Username)

	assert.ErrorIs(t, svc.RegisterPlayer(context.Background(), id, "   "), ErrValidation)
}
