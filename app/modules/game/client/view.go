package gameclient

import (
	gameservice "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/application"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	"github.com/google/uuid"
)

// ViewState is what the player should be looking at.
type ViewState int

const (
	ViewLobby ViewState = iota
	ViewAwaitingRound
	ViewGuessing
	ViewWaitingForPlayers
	ViewRoundResults
	ViewGameOver
)

func (v ViewState) String() string {
	switch v {
	case ViewLobby:
		return "lobby"
	case ViewAwaitingRound:
		return "awaiting_round"
	case ViewGuessing:
		return "guessing"
	case ViewWaitingForPlayers:
		return "waiting_for_players"
	case ViewRoundResults:
		return "round_results"
	case ViewGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the session state. It is safe to keep.
type Snapshot struct {
	Version  int
	Game     gameservice.GameInfo
	Members  []gameservice.Member
	Present  []uuid.UUID
	Leader   uuid.UUID
	IsLeader bool

	// Round is the number of rounds observed so far. Current is the last one.
	Round   int
	Current *gameservice.RoundInfo

	HasGuessed bool
	// Guesses holds the guesses of the current round.
	Guesses []gametypes.PlayerGuess
	Points  int

	View ViewState
}

// Active returns the members that are present, or every member while none
// of them is.
func (s Snapshot) Active() []gameservice.Member {
	here := make(map[uuid.UUID]bool, len(s.Present))
	for _, id := range s.Present {
		here[id] = true
	}
	out := make([]gameservice.Member, 0, len(s.Members))
	for _, m := range s.Members {
		if here[m.PlayerID] {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return s.Members
	}
	return out
}

// AllGuessed reports whether every active member guessed the current round.
// A member who disconnected does not hold the round open.
func (s Snapshot) AllGuessed() bool {
	if s.Current == nil || len(s.Members) == 0 {
		return false
	}
	guessed := make(map[uuid.UUID]bool, len(s.Guesses))
	for _, g := range s.Guesses {
		guessed[g.PlayerID] = true
	}
	for _, m := range s.Active() {
		if !guessed[m.PlayerID] {
			return false
		}
	}
	return true
}

func deriveView(s Snapshot) ViewState {
	switch {
	case s.Game.Ended():
		return ViewGameOver
	case !s.Game.Started():
		return ViewLobby
	case s.Current == nil:
		return ViewAwaitingRound
	case !s.HasGuessed:
		return ViewGuessing
	case !s.AllGuessed():
		return ViewWaitingForPlayers
	default:
		return ViewRoundResults
	}
}
