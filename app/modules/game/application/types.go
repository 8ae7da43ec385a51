package gameservice

import (
	"time"

	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/google/uuid"
)

// Rules are the tunable game constants.
type Rules struct {
	MaxRounds       int
	StartingPoints  int
	RequiredPlayers int
	AllRegionArea   float64
	LobbyPageSize   int
}

// DefaultRules returns the standard game rules.
func DefaultRules() Rules {
	return Rules{
		MaxRounds:       gametypes.MaxRounds,
		StartingPoints:  gametypes.StartingPoints,
		RequiredPlayers: gametypes.RequiredPlayerCount,
		AllRegionArea:   2147483647,
		LobbyPageSize:   gametypes.DefaultLobbyPageSize,
	}
}

// CreateGameRequest carries the game creation form.
type CreateGameRequest struct {
	CreatorID   uuid.UUID
	Multiplayer bool
	Name        string
	Password    string
	Region      string
	Difficulty  string
}

// RecordGuessRequest carries one guess.
type RecordGuessRequest struct {
	GameID     uuid.UUID
	LocationID uuid.UUID
	PlayerID   uuid.UUID
	Lat        float64
	Lng        float64
}

// GameInfo is the public view of a game.
type GameInfo struct {
	ID               uuid.UUID            `json:"id"`
	IsMultiplayer    bool                 `json:"is_multiplayer"`
	Name             string               `json:"name"`
	Region           string               `json:"region"`
	Difficulty       gametypes.Difficulty `json:"level"`
	PasswordRequired bool                 `json:"password_required"`
	CreatedAt        time.Time            `json:"created_at"`
	StartedAt        *time.Time           `json:"started_at"`
	EndedAt          *time.Time           `json:"ended_at"`
}

func (g GameInfo) Started() bool { return g.StartedAt != nil }
func (g GameInfo) Ended() bool   { return g.EndedAt != nil }

// Member is a player in a game with its display name.
type Member struct {
	PlayerID uuid.UUID `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoundInfo describes a round without revealing the true coordinates.
type RoundInfo struct {
	GameID     uuid.UUID  `json:"game_id"`
	Round      int        `json:"round"`
	LocationID uuid.UUID  `json:"location_id"`
	ImagePath  string     `json:"image_path"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at"`
}

// GuessResult is returned after a guess is stored.
type GuessResult struct {
	Guess    gametypes.PlayerGuess `json:"guess"`
	Distance float64               `json:"distance"`
	// Eliminated is set when the guess scored zero, which ends the game.
	Eliminated bool `json:"eliminated"`
}

func toGameInfo(g *gamedb.Game) *GameInfo {
	return &GameInfo{
		ID:               g.ID,
		IsMultiplayer:    g.IsMultiplayer,
		Name:             g.Name,
		Region:           g.Region,
		Difficulty:       gametypes.Difficulty(g.Level),
		PasswordRequired: g.Password != "",
		CreatedAt:        g.CreatedAt,
		StartedAt:        g.StartedAt,
		EndedAt:          g.EndedAt,
	}
}

func toRoundInfo(r gamedb.RoundLocation, imagePath string) RoundInfo {
	return RoundInfo{
		GameID:     r.GameID,
		Round:      r.Round,
		LocationID: r.LocationID,
		ImagePath:  imagePath,
		CreatedAt:  r.CreatedAt,
		EndedAt:    r.EndedAt,
	}
}

func toPlayerGuess(d gamedb.GuessDetail) gametypes.PlayerGuess {
	return gametypes.PlayerGuess{
		GameID:     d.GameID,
		LocationID: d.LocationID,
		PlayerID:   d.UserID,
		Username:   d.Username,
		Round:      d.Round,
		Guess:      gametypes.Point{Lat: d.Lat, Lng: d.Lng},
		Location:   gametypes.Point{Lat: d.LocationLat, Lng: d.LocationLng},
		Points:     d.Points,
		CreatedAt:  d.CreatedAt,
	}
}
