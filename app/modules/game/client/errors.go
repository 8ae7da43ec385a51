package gameclient

import "errors"

var (
	// ErrRoundInProgress indicates an advance before every member guessed.
	ErrRoundInProgress = errors.New("round in progress")

	// ErrNoActiveRound indicates a guess while no round is open.
	ErrNoActiveRound = errors.New("no active round")

	// ErrSessionClosed indicates the session loop has stopped.
	ErrSessionClosed = errors.New("session closed")
)
