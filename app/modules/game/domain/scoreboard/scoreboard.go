// Package scoreboard decides the outcome of a finished game.
package scoreboard

import (
	"sort"

	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	"github.com/google/uuid"
)

// Row is one player's line on the scoreboard.
type Row struct {
	PlayerID   uuid.UUID               `json:"user_id"`
	Username   string                  `json:"username"`
	Guesses    []gametypes.PlayerGuess `json:"guesses"`
	Total      int                     `json:"total"`
	Eliminated bool                    `json:"eliminated"`
}

// Outcome is the result of a multiplayer game. Decided is false for
// single-player games and for boards without any guess.
type Outcome struct {
	Decided bool      `json:"decided"`
	Draw    bool      `json:"draw"`
	Winner  uuid.UUID `json:"winner"`
}

// Board is the per-player summary plus the outcome.
type Board struct {
	Rows    []Row   `json:"rows"`
	Outcome Outcome `json:"outcome"`
}

// Build groups guesses by player. Every member gets a row, in member order,
// even without guesses. Guesses from non-members are ignored.
func Build(members []uuid.UUID, usernames map[uuid.UUID]string, guesses []gametypes.PlayerGuess, multiplayer bool) Board {
	idx := make(map[uuid.UUID]int, len(members))
	rows := make([]Row, 0, len(members))
	for _, id := range members {
		idx[id] = len(rows)
		rows = append(rows, Row{PlayerID: id, Username: usernames[id], Guesses: []gametypes.PlayerGuess{}})
	}

	for _, g := range guesses {
		i, ok := idx[g.PlayerID]
		if !ok {
			continue
		}
		rows[i].Guesses = append(rows[i].Guesses, g)
		rows[i].Total += g.Points
		if rows[i].Username == "" {
			rows[i].Username = g.Username
		}
	}

	for i := range rows {
		gs := rows[i].Guesses
		sort.SliceStable(gs, func(a, b int) bool { return gs[a].Round < gs[b].Round })
		if n := len(gs); n > 0 && gs[n-1].Points == 0 {
			rows[i].Eliminated = true
		}
	}

	b := Board{Rows: rows}
	if multiplayer {
		b.Outcome = Decide(rows)
	}
	return b
}

// Decide applies the winner rule. A player whose latest guess scored zero
// loses regardless of the totals. Among the remaining players the highest
// total wins and equal totals are a draw. When everyone is eliminated the
// totals decide between all of them.
func Decide(rows []Row) Outcome {
	played := false
	for _, r := range rows {
		if len(r.Guesses) > 0 {
			played = true
			break
		}
	}
	if !played || len(rows) < 2 {
		return Outcome{}
	}

	candidates := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !r.Eliminated {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		candidates = rows
	}

	best := candidates[0]
	draw := false
	for _, r := range candidates[1:] {
		switch {
		case r.Total > best.Total:
			best = r
			draw = false
		case r.Total == best.Total:
			draw = true
		}
	}
	if draw {
		return Outcome{Decided: true, Draw: true}
	}
	return Outcome{Decided: true, Winner: best.PlayerID}
}
