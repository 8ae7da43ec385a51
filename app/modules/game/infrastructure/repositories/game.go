package gamedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new game repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

// resolveDB returns the provided db handle, falling back to the repository's
// default connection if db is nil.
func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// --- Games ---

func (r *Impl) CreateGame(ctx context.Context, db bun.IDB, game *Game) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(game).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (r *Impl) GetGame(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*Game, error) {
	db = r.resolveDB(db)
	game := new(Game)
	err := db.NewSelect().
		Model(game).
		Where("g.id = ?", gameID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

func (r *Impl) GetGameForUpdate(ctx context.Context, db bun.IDB, gameID uuid.UUID) (*Game, error) {
	db = r.resolveDB(db)
	game := new(Game)
	q := db.NewSelect().
		Model(game).
		Where("g.id = ?", gameID)
	// SQLite has no row locks; its writers are serialized per database.
	if db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game for update: %w", err)
	}
	return game, nil
}

func (r *Impl) MarkGameStarted(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error) {
	db = r.resolveDB(db)
	result, err := db.NewUpdate().
		Model((*Game)(nil)).
		Set("started_at = ?", at).
		Where("id = ?", gameID).
		Where("started_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark game started: %w", err)
	}
	return changed(result)
}

func (r *Impl) MarkGameEnded(ctx context.Context, db bun.IDB, gameID uuid.UUID, at time.Time) (bool, error) {
	db = r.resolveDB(db)
	result, err := db.NewUpdate().
		Model((*Game)(nil)).
		Set("ended_at = ?", at).
		Where("id = ?", gameID).
		Where("ended_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark game ended: %w", err)
	}
	return changed(result)
}

func (r *Impl) ListOpenLobbies(ctx context.Context, db bun.IDB, limit, offset int) ([]Game, error) {
	db = r.resolveDB(db)
	var games []Game
	err := db.NewSelect().
		Model(&games).
		Where("g.is_multiplayer = ?", true).
		Where("g.started_at IS NULL").
		OrderExpr("g.created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lobbies: %w", err)
	}
	return games, nil
}

// --- Locations ---

func (r *Impl) InsertLocations(ctx context.Context, db bun.IDB, locations []Location) error {
	if len(locations) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(&locations).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert locations: %w", err)
	}
	return nil
}

func (r *Impl) GetLocation(ctx context.Context, db bun.IDB, locationID uuid.UUID) (*Location, error) {
	db = r.resolveDB(db)
	loc := new(Location)
	err := db.NewSelect().
		Model(loc).
		Where("l.id = ?", locationID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return loc, nil
}

func (r *Impl) ListCandidateLocations(ctx context.Context, db bun.IDB, filter LocationFilter) ([]Location, error) {
	db = r.resolveDB(db)
	var locations []Location
	q := db.NewSelect().
		Model(&locations).
		Where("l.level = ?", filter.Level)
	if filter.Region != "" && filter.Region != gametypes.RegionAll {
		q = q.Where("l.region = ?", filter.Region)
	}
	if filter.ExcludeGameID != uuid.Nil {
		used := db.NewSelect().
			Model((*RoundLocation)(nil)).
			Column("location_id").
			Where("game_id = ?", filter.ExcludeGameID)
		q = q.Where("l.id NOT IN (?)", used)
	}
	if err := q.OrderExpr("l.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list candidate locations: %w", err)
	}
	return locations, nil
}

// --- Players ---

func (r *Impl) UpsertPlayer(ctx context.Context, db bun.IDB, player *Player) error {
	db = r.resolveDB(db)
	_, err := db.NewInsert().
		Model(player).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

func (r *Impl) ListPlayers(ctx context.Context, db bun.IDB, playerIDs []uuid.UUID) ([]Player, error) {
	if len(playerIDs) == 0 {
		return []Player{}, nil
	}
	db = r.resolveDB(db)
	var players []Player
	err := db.NewSelect().
		Model(&players).
		Where("p.id IN (?)", bun.In(playerIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

// --- Memberships ---

func (r *Impl) AddMember(ctx context.Context, db bun.IDB, member *Membership) (bool, error) {
	db = r.resolveDB(db)
	result, err := db.NewInsert().
		Model(member).
		On("CONFLICT (game_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}
	return changed(result)
}

func (r *Impl) ListMembers(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]Membership, error) {
	db = r.resolveDB(db)
	var members []Membership
	err := db.NewSelect().
		Model(&members).
		Where("ug.game_id = ?", gameID).
		OrderExpr("ug.joined_at ASC, ug.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (r *Impl) ListMembersForGames(ctx context.Context, db bun.IDB, gameIDs []uuid.UUID) ([]Membership, error) {
	if len(gameIDs) == 0 {
		return []Membership{}, nil
	}
	db = r.resolveDB(db)
	var members []Membership
	err := db.NewSelect().
		Model(&members).
		Where("ug.game_id IN (?)", bun.In(gameIDs)).
		OrderExpr("ug.joined_at ASC, ug.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members for games: %w", err)
	}
	return members, nil
}

// --- Rounds ---

func (r *Impl) InsertRound(ctx context.Context, db bun.IDB, round *RoundLocation) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(round).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func (r *Impl) ListRounds(ctx context.Context, db bun.IDB, gameID uuid.UUID) ([]RoundLocation, error) {
	db = r.resolveDB(db)
	var rounds []RoundLocation
	err := db.NewSelect().
		Model(&rounds).
		Where("gl.game_id = ?", gameID).
		OrderExpr("gl.round ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

func (r *Impl) GetRoundByLocation(ctx context.Context, db bun.IDB, gameID, locationID uuid.UUID) (*RoundLocation, error) {
	db = r.resolveDB(db)
	round := new(RoundLocation)
	err := db.NewSelect().
		Model(round).
		Where("gl.game_id = ?", gameID).
		Where("gl.location_id = ?", locationID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

func (r *Impl) CloseRound(ctx context.Context, db bun.IDB, gameID uuid.UUID, round int, at time.Time) error {
	db = r.resolveDB(db)
	_, err := db.NewUpdate().
		Model((*RoundLocation)(nil)).
		Set("ended_at = ?", at).
		Where("game_id = ?", gameID).
		Where("round = ?", round).
		Where("ended_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to close round: %w", err)
	}
	return nil
}

// --- Guesses ---

func (r *Impl) InsertGuess(ctx context.Context, db bun.IDB, guess *Guess) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(guess).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert guess: %w", err)
	}
	return nil
}

func (r *Impl) GetGuess(ctx context.Context, db bun.IDB, gameID, locationID, userID uuid.UUID) (*Guess, error) {
	db = r.resolveDB(db)
	guess := new(Guess)
	err := db.NewSelect().
		Model(guess).
		Where("gs.game_id = ?", gameID).
		Where("gs.location_id = ?", locationID).
		Where("gs.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get guess: %w", err)
	}
	return guess, nil
}

func (r *Impl) GetLatestGuess(ctx context.Context, db bun.IDB, gameID, userID uuid.UUID) (*Guess, error) {
	db = r.resolveDB(db)
	guess := new(Guess)
	err := db.NewSelect().
		Model(guess).
		Join("JOIN game_location AS gl ON gl.game_id = gs.game_id AND gl.location_id = gs.location_id").
		Where("gs.game_id = ?", gameID).
		Where("gs.user_id = ?", userID).
		OrderExpr("gl.round DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest guess: %w", err)
	}
	return guess, nil
}

func (r *Impl) ListGuessDetails(ctx context.Context, db bun.IDB, gameID uuid.UUID, locationID *uuid.UUID) ([]GuessDetail, error) {
	db = r.resolveDB(db)
	rows := []GuessDetail{}
	q := db.NewSelect().
		TableExpr("guesses AS gs").
		ColumnExpr("gs.game_id, gs.location_id, gs.user_id, gs.lat, gs.lng, gs.points, gs.created_at").
		ColumnExpr("gl.round").
		ColumnExpr("l.lat AS location_lat, l.lng AS location_lng").
		ColumnExpr("COALESCE(p.username, '') AS username").
		Join("JOIN game_location AS gl ON gl.game_id = gs.game_id AND gl.location_id = gs.location_id").
		Join("JOIN locations AS l ON l.id = gs.location_id").
		Join("LEFT JOIN players AS p ON p.id = gs.user_id").
		Where("gs.game_id = ?", gameID)
	if locationID != nil {
		q = q.Where("gs.location_id = ?", *locationID)
	}
	if err := q.OrderExpr("gl.round ASC, gs.created_at ASC").Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list guesses: %w", err)
	}
	return rows, nil
}

func changed(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
