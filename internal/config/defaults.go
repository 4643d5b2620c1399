package config

import "time"

// Persistence intervals
const (
	// RedisFlushInterval defines how often finished receiver levels are pushed to Redis
	RedisFlushInterval = 5 * time.Second

	// PostgresFlushInterval defines how often all levels are saved to PostgreSQL
	PostgresFlushInterval = 30 * time.Second

	// ProgressLogInterval defines how often a running evaluation logs its progress
	ProgressLogInterval = 10 * time.Second
)

// DefaultPropagation returns the options used when nothing is configured
func DefaultPropagation() Propagation {
	return Propagation{
		DiffractionOrder:      1,
		ReflectionOrder:       1,
		VerticalDiffraction:   true,
		HeightField:           "height",
		DEMTable:              "dem",
		DEMResolution:         0,
		MaxSourceDistance:     750,
		MaxReflectionDistance: 400,
		GroundFactor:          0,
		Temperature:           15,
		Humidity:              70,
		CellSize:              1000,
		LineSourceStep:        5,
		Workers:               4,
		CellWorkers:           2,
		WallAbsorption:        0.1,
	}
}
