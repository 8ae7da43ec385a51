// Package scoring turns guess error into points.
//
// Distances are measured on the flat map plane the game is played on, not on
// a sphere. Scores decay with a Gaussian whose width grows with the size of
// the region being played and shrinks with difficulty.
package scoring

import (
	"fmt"
	"math"

	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
)

const (
	// PerfectRadius is the distance up to which a guess keeps all base points.
	PerfectRadius = 200.0

	// AreaDivisor scales a region area down to a Gaussian sigma.
	AreaDivisor = 7500.0

	// AllRegionArea is the area used when a game draws from every region. It
	// is large enough that distance barely reduces the score.
	AllRegionArea = math.MaxInt32
)

var difficultyModifiers = map[gametypes.Difficulty]float64{
	gametypes.DifficultyEasy:   0.9,
	gametypes.DifficultyMedium: 0.8,
	gametypes.DifficultyHard:   0.7,
}

// Modifier returns the sigma multiplier for a difficulty, 1 for unknown levels.
func Modifier(d gametypes.Difficulty) float64 {
	if m, ok := difficultyModifiers[d]; ok {
		return m
	}
	return 1
}

// Distance is the euclidean distance between two map points.
func Distance(a, b gametypes.Point) float64 {
	dLng := a.Lng - b.Lng
	dLat := a.Lat - b.Lat
	return math.Sqrt(dLng*dLng + dLat*dLat)
}

// Sigma is the Gaussian scale for a region area and difficulty.
func Sigma(regionArea float64, d gametypes.Difficulty) float64 {
	return math.Floor((regionArea / AreaDivisor) * Modifier(d))
}

// Score computes the points kept from basePoints for a guess that missed by
// distance.
func Score(distance float64, basePoints int, regionArea float64, d gametypes.Difficulty) int {
	if basePoints <= 0 {
		return 0
	}
	if distance <= PerfectRadius {
		return basePoints
	}

	sigma := Sigma(regionArea, d)
	if sigma <= 0 {
		return 0
	}
	ratio := distance / sigma
	return int(math.Floor(float64(basePoints) * math.Exp(-0.5*ratio*ratio)))
}

// RegionArea applies the shoelace formula to a closed or open ring of [x, y]
// vertices. The result is a scale factor for scoring, not a physical area.
func RegionArea(vertices [][2]float64) float64 {
	n := len(vertices)
	if n < 3 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += vertices[i][0] * vertices[j][1]
		sum -= vertices[j][0] * vertices[i][1]
	}
	return math.Floor(math.Abs(sum / 2))
}

// FormatDistance renders a distance for display, meters below 1000 and
// kilometers with one decimal above.
func FormatDistance(d float64) string {
	meters := int(math.Floor(d))
	if meters < 1000 {
		return fmt.Sprintf("%dm", meters)
	}
	return fmt.Sprintf("%.1fkm", float64(meters)/1000)
}
