package testkit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"burstscan/adapters/rng"
	"burstscan/domain/events"
	"burstscan/internal/permutation"
	"burstscan/internal/significance"
	"burstscan/internal/sitescore"
	"burstscan/ports"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// TestKit provides engines and fixtures wired the way the CLI wires them
type TestKit struct {
	rngPort ports.RNGPort
	logger  *zap.Logger
	workers int

	mu     sync.Mutex
	caches []*ristretto.Cache
}

// NewTestKit creates a new test kit backed by the PCG adapter
func NewTestKit(logger *zap.Logger) *TestKit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestKit{rngPort: rng.NewPCGAdapter(), logger: logger, workers: 4}
}

// WithRNG swaps the RNG port, e.g. for a FailingRNGAdapter.
func (t *TestKit) WithRNG(rngPort ports.RNGPort) *TestKit {
	t.rngPort = rngPort
	return t
}

// RNGAdapter returns the RNG port engines are built with
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rngPort
}

// Logger returns the kit logger.
func (t *TestKit) Logger() *zap.Logger {
	return t.logger
}

// PermutationEngine builds a permutation engine
func (t *TestKit) PermutationEngine(replicas int, seed int64) *permutation.Engine {
	return permutation.NewEngine(t.rngPort, replicas, t.workers, seed, t.logger)
}

// SignificanceEngine builds a cached significance engine
func (t *TestKit) SignificanceEngine(replicas int, seed int64, alpha, maxInterEventTime float64) (*significance.Engine, error) {
	cache, err := significance.NewCache(1 << 24)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.caches = append(t.caches, cache)
	t.mu.Unlock()
	return significance.NewEngine(t.PermutationEngine(replicas, seed), alpha, maxInterEventTime, cache, t.logger), nil
}

// Scorer builds a site scorer with the default bin count
func (t *TestKit) Scorer() *sitescore.Scorer {
	return sitescore.NewScorer(sitescore.DefaultBins, t.logger)
}

// Close releases caches created by the kit.
func (t *TestKit) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.caches {
		c.Close()
	}
	t.caches = nil
}

// ScenarioRecords is the worked example: one experiment E1 of length 100 with site
// S1 at [10, 12, 13, 90].
func ScenarioRecords() []events.Record {
	times := []float64{10, 12, 13, 90}
	records := make([]events.Record, len(times))
	for i, v := range times {
		records[i] = events.Record{ExperimentName: "E1", TotalTime: 100, SiteID: "S1", Time: v}
	}
	return records
}

// ScenarioCatalog loads ScenarioRecords.
func ScenarioCatalog() (*events.Catalog, error) {
	return events.LoadCatalog(ScenarioRecords())
}

// FailingRNGAdapter wraps an RNG port and fails every stream whose key contains
// one of the configured substrings
type FailingRNGAdapter struct {
	next    ports.RNGPort
	failing []string
}

// NewFailingRNGAdapter creates a failing adapter in front of the PCG adapter
func NewFailingRNGAdapter(failing ...string) *FailingRNGAdapter {
	return &FailingRNGAdapter{next: rng.NewPCGAdapter(), failing: failing}
}

// SeededStream delegates to the wrapped port
func (r *FailingRNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if r.fails(name) {
		return nil, fmt.Errorf("rng stream %q unavailable", name)
	}
	return r.next.SeededStream(ctx, name, seed)
}

// Stream fails for configured keys and delegates otherwise
func (r *FailingRNGAdapter) Stream(ctx context.Context, stageName, key string, index int, baseSeed int64) (*rand.Rand, error) {
	if r.fails(key) {
		return nil, fmt.Errorf("rng stream %s/%s/%d unavailable", stageName, key, index)
	}
	return r.next.Stream(ctx, stageName, key, index, baseSeed)
}

func (r *FailingRNGAdapter) fails(key string) bool {
	for _, f := range r.failing {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}
