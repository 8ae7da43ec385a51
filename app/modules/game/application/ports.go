package gameservice

import (
	"math/rand/v2"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Randomizer picks the next location.
type Randomizer interface {
	// IntN returns a uniform value in [0, n).
	IntN(n int) int
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type systemRandom struct{}

func (systemRandom) IntN(n int) int { return rand.IntN(n) }
