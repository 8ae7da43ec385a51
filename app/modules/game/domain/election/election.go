// Package election picks the session leader from a membership snapshot.
//
// Leadership is never stored. Every client recomputes it from the same
// membership and presence snapshot and reaches the same answer, so it
// changes hands implicitly when the leader disconnects.
package election

import (
	"time"

	"github.com/google/uuid"
)

// Member is the part of a membership row the election looks at.
type Member struct {
	PlayerID uuid.UUID
	JoinedAt time.Time
}

// Leader returns the member who joined earliest. Equal join times are broken
// by the lexical order of the player id string. It reports false for an
// empty snapshot.
func Leader(members []Member) (uuid.UUID, bool) {
	if len(members) == 0 {
		return uuid.Nil, false
	}

	best := members[0]
	for _, m := range members[1:] {
		if before(m, best) {
			best = m
		}
	}
	return best.PlayerID, true
}

// Active narrows members to those in present. While none of them is
// present the full membership is returned.
func Active(members []Member, present []uuid.UUID) []Member {
	here := make(map[uuid.UUID]bool, len(present))
	for _, id := range present {
		here[id] = true
	}
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if here[m.PlayerID] {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return members
	}
	return out
}

// LeaderAmong returns the leader of the members that are present.
func LeaderAmong(members []Member, present []uuid.UUID) (uuid.UUID, bool) {
	return Leader(Active(members, present))
}

// IsLeader reports whether playerID leads the snapshot.
func IsLeader(members []Member, playerID uuid.UUID) bool {
	leader, ok := Leader(members)
	return ok && leader == playerID
}

func before(a, b Member) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.PlayerID.String() < b.PlayerID.String()
}
