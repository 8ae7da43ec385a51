package gamedb

import "errors"

// Sentinel errors for the game repository layer.
// These describe storage outcomes only. The service layer maps them to
// domain errors.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("game record not found")

	// ErrDuplicate indicates an insert collided with a unique key.
	ErrDuplicate = errors.New("game record already exists")
)
