package testutils

import (
	"time"

	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// TestDataGenerator provides methods to create test data for integration tests
type TestDataGenerator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewTestDataGenerator creates a new test data generator with optional seed
func NewTestDataGenerator(seed ...int64) *TestDataGenerator {
	var s int64
	if len(seed) > 0 {
		s = seed[0]
	} else {
		s = time.Now().UnixNano()
	}

	return &TestDataGenerator{
		faker: gofakeit.New(uint64(s)),
		seed:  s,
	}
}

// Seed returns the seed the generator was built with.
func (g *TestDataGenerator) Seed() int64 { return g.seed }

// GeneratePlayers creates players with unique usernames.
func (g *TestDataGenerator) GeneratePlayers(count int) []gamedb.Player {
	players := make([]gamedb.Player, count)
	for i := range players {
		players[i] = gamedb.Player{
			ID:       uuid.New(),
			Username: g.faker.Username() + g.faker.Numerify("###"),
		}
	}
	return players
}

// GenerateLocations creates locations spread over the bounds of a quadrant
// region. The map is 8192 units wide; each quadrant spans 4096.
func (g *TestDataGenerator) GenerateLocations(count int, level, region string) []gamedb.Location {
	minLat, minLng := 0.0, 0.0
	switch region {
	case "north_west":
		minLat = 4096
	case "north_east":
		minLat, minLng = 4096, 4096
	case "south_east":
		minLng = 4096
	}

	locations := make([]gamedb.Location, count)
	for i := range locations {
		locations[i] = gamedb.Location{
			ID:        uuid.New(),
			Lat:       g.faker.Float64Range(minLat+100, minLat+3996),
			Lng:       g.faker.Float64Range(minLng+100, minLng+3996),
			ImagePath: "locations/" + g.faker.UUID() + ".webp",
			Level:     level,
			Region:    region,
		}
	}
	return locations
}
