package gametypes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Difficulty is the level a game and its locations are played at.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the selectable levels in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty validates a level name. An empty value selects easy.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DifficultyEasy, nil
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

// RegionAll is the pseudo region that draws locations from every region.
const RegionAll = "all"

const (
	// MaxRounds is the number of rounds in a full game.
	MaxRounds = 5
	// RequiredPlayerCount is both the quorum to start and the lobby capacity.
	RequiredPlayerCount = 2
	// StartingPoints is every player's running score before the first guess.
	StartingPoints = 5000
	// MinGameNameLength applies to multiplayer lobby names.
	MinGameNameLength = 2
	// DefaultLobbyPageSize is the page size of the open lobby listing.
	DefaultLobbyPageSize = 20
)

// Point is a coordinate on the flat game map.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Lobby is one row of the open multiplayer game listing.
type Lobby struct {
	ID               uuid.UUID   `json:"id"`
	Name             string      `json:"name"`
	Region           string      `json:"region"`
	Difficulty       Difficulty  `json:"level"`
	CreatedAt        time.Time   `json:"created_at"`
	MemberIDs        []uuid.UUID `json:"users"`
	PasswordRequired bool        `json:"password_required"`
}

// Full reports whether the lobby reached capacity.
func (l Lobby) Full() bool {
	return len(l.MemberIDs) >= RequiredPlayerCount
}

// PlayerGuess is a stored guess joined with the player's display name and
// the true coordinates of the location.
type PlayerGuess struct {
	GameID     uuid.UUID `json:"game_id"`
	LocationID uuid.UUID `json:"location_id"`
	PlayerID   uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	Round      int       `json:"round"`
	Guess      Point     `json:"guess"`
	Location   Point     `json:"location"`
	Points     int       `json:"points"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key identifies the guess tuple for presentation lists.
func (g PlayerGuess) Key() string {
	return g.LocationID.String() + g.PlayerID.String()
}

// UserChar is the first letter of the username used as map marker label.
func (g PlayerGuess) UserChar() string {
	for _, r := range g.Username {
		return string(r)
	}
	return ""
}
