// Package rng implements ports.RNGPort on top of math/rand/v2 PCG streams.
package rng

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// PCGAdapter derives one PCG stream per unit of work. The base seed fills the
// first PCG word and a hash of the stream name the second, which splits a single
// user seed into independent streams.
type PCGAdapter struct{}

// NewPCGAdapter creates a new RNG adapter
func NewPCGAdapter() *PCGAdapter {
	return &PCGAdapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *PCGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(uint64(seed), xxhash.Sum64String(name))), nil
}

// Stream creates an independent stream for (stage, key, index)
func (a *PCGAdapter) Stream(ctx context.Context, stageName, key string, index int, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(uint64(baseSeed), StreamHash(stageName, key, index))), nil
}

// StreamHash hashes a stream name into the second PCG seed word.
func StreamHash(stageName, key string, index int) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(stageName)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(key)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(index))
	return d.Sum64()
}
