package gameservice

import "errors"

// Domain errors for the game service.
// These are expected outcomes of a request, returned to the caller as is.
// Storage and transport faults are wrapped with ErrTransport instead.
var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied indicates the actor may not perform the operation,
	// usually because it is not the session leader.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInsufficientPlayers indicates the quorum to start is not met.
	ErrInsufficientPlayers = errors.New("insufficient players")

	// ErrNoLocationsAvailable indicates every matching location was used.
	ErrNoLocationsAvailable = errors.New("no locations available")

	// ErrDuplicateGuess indicates the player already guessed this round.
	ErrDuplicateGuess = errors.New("duplicate guess")

	// ErrNotFound indicates the game, round or location does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransport wraps store and feed failures.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidPassword indicates a wrong room password.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrGameFull indicates the lobby reached capacity.
	ErrGameFull = errors.New("game is full")

	// ErrGameAlreadyStarted indicates the game no longer accepts members.
	ErrGameAlreadyStarted = errors.New("game already started")

	// ErrGameNotStarted indicates the operation needs a started game.
	ErrGameNotStarted = errors.New("game not started")

	// ErrGameEnded indicates the game is over.
	ErrGameEnded = errors.New("game ended")

	// ErrPlayerEliminated indicates the player's running score is zero.
	ErrPlayerEliminated = errors.New("player eliminated")

	// ErrStaleRound indicates a round advance based on an outdated round
	// number. Another writer advanced first.
	ErrStaleRound = errors.New("stale round")
)
