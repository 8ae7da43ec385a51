package gamedb

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Game is a single play-through, solo or multiplayer.
type Game struct {
	bun.BaseModel `bun:"table:games,alias:g"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	IsMultiplayer bool       `bun:"is_multiplayer,notnull" json:"is_multiplayer"`
	Region        string     `bun:"region,notnull" json:"region"`
	Level         string     `bun:"level,notnull" json:"level"`
	Name          string     `bun:"name,notnull" json:"name"`
	Password      string     `bun:"password,notnull" json:"-"` // bcrypt hash, empty when open
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	StartedAt     *time.Time `bun:"started_at" json:"started_at"`
	EndedAt       *time.Time `bun:"ended_at" json:"ended_at"`
}

func (g *Game) Started() bool { return g.StartedAt != nil }
func (g *Game) Ended() bool   { return g.EndedAt != nil }

// Location is a reference image pinned to a map coordinate.
type Location struct {
	bun.BaseModel `bun:"table:locations,alias:l"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Lat           float64   `bun:"lat,notnull" json:"lat"`
	Lng           float64   `bun:"lng,notnull" json:"lng"`
	ImagePath     string    `bun:"image_path,notnull" json:"image_path"`
	Level         string    `bun:"level,notnull" json:"level"`
	Region        string    `bun:"region,notnull" json:"region"`
}

// Player is the display-name projection of an authenticated user.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Username      string    `bun:"username,notnull" json:"username"`
}

// Membership links a player to a game. JoinedAt drives leader election.
type Membership struct {
	bun.BaseModel `bun:"table:user_game,alias:ug"`
	GameID        uuid.UUID `bun:"game_id,pk,type:uuid" json:"game_id"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	JoinedAt      time.Time `bun:"joined_at,notnull" json:"joined_at"`
}

// RoundLocation assigns a location to a round of a game. Round is 1-based.
type RoundLocation struct {
	bun.BaseModel `bun:"table:game_location,alias:gl"`
	GameID        uuid.UUID  `bun:"game_id,pk,type:uuid" json:"game_id"`
	LocationID    uuid.UUID  `bun:"location_id,pk,type:uuid" json:"location_id"`
	Round         int        `bun:"round,notnull" json:"round"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	EndedAt       *time.Time `bun:"ended_at" json:"ended_at"`
}

// Guess is one player's answer for one round.
type Guess struct {
	bun.BaseModel `bun:"table:guesses,alias:gs"`
	GameID        uuid.UUID `bun:"game_id,pk,type:uuid" json:"game_id"`
	LocationID    uuid.UUID `bun:"location_id,pk,type:uuid" json:"location_id"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	Lat           float64   `bun:"lat,notnull" json:"lat"`
	Lng           float64   `bun:"lng,notnull" json:"lng"`
	Points        int       `bun:"points,notnull" json:"points"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// GuessDetail is a guess joined with its round, the true location and the
// player's display name.
type GuessDetail struct {
	GameID      uuid.UUID `bun:"game_id"`
	LocationID  uuid.UUID `bun:"location_id"`
	UserID      uuid.UUID `bun:"user_id"`
	Lat         float64   `bun:"lat"`
	Lng         float64   `bun:"lng"`
	Points      int       `bun:"points"`
	CreatedAt   time.Time `bun:"created_at"`
	Round       int       `bun:"round"`
	LocationLat float64   `bun:"location_lat"`
	LocationLng float64   `bun:"location_lng"`
	Username    string    `bun:"username"`
}

// LocationFilter selects candidate locations for the next round.
type LocationFilter struct {
	Level string
	// Region restricts the draw. Empty or "all" disables the restriction.
	Region string
	// ExcludeGameID skips locations already used by this game.
	ExcludeGameID uuid.UUID
}
