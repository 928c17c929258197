package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates an independent deterministic stream for one unit of work.
	// The same (stage, key, index, baseSeed) always yields the same sequence, so
	// results do not depend on how work is scheduled across goroutines.
	Stream(ctx context.Context, stageName, key string, index int, baseSeed int64) (*rand.Rand, error)
}
