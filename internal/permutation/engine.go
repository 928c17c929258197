// Package permutation builds randomized replicas of sites and experiments and the
// null distributions of maximal cluster scores derived from them.
package permutation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"burstscan/domain/events"
	"burstscan/internal/clustering"
	"burstscan/ports"

	"go.uber.org/zap"
)

const stageName = "permutation"

// Engine draws replicas by redrawing every event time uniformly over [0, totalTime).
// Replica i of a site always comes from the same RNG stream, so replicas and null
// distributions are reproducible for a given seed regardless of worker count.
type Engine struct {
	rngPort  ports.RNGPort
	replicas int
	workers  int
	seed     int64
	logger   *zap.Logger
}

// NewEngine creates a permutation engine producing the given number of replicas
func NewEngine(rngPort ports.RNGPort, replicas, workers int, seed int64, logger *zap.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rngPort:  rngPort,
		replicas: replicas,
		workers:  workers,
		seed:     seed,
		logger:   logger,
	}
}

// Replicas returns the number of replicas per null distribution.
func (e *Engine) Replicas() int { return e.replicas }

// Seed returns the base seed all replica streams are split from.
func (e *Engine) Seed() int64 { return e.seed }

// Replica returns replica i of the site: same identity and event count, new times.
func (e *Engine) Replica(ctx context.Context, site *events.Site, i int) (*events.Site, error) {
	times := make([]float64, site.Len())
	if err := e.replicaTimes(ctx, site, i, times); err != nil {
		return nil, err
	}
	return site.WithTimes(times), nil
}

// AllReplicas materializes every replica of the site.
func (e *Engine) AllReplicas(ctx context.Context, site *events.Site) ([]*events.Site, error) {
	out := make([]*events.Site, e.replicas)
	for i := range out {
		r, err := e.Replica(ctx, site, i)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// ReplicateExperiment returns replica i of the experiment, made of replica i of
// each of its sites.
func (e *Engine) ReplicateExperiment(ctx context.Context, exp *events.Experiment, i int) (*events.Experiment, error) {
	replica := &events.Experiment{
		Name:      exp.Name,
		TotalTime: exp.TotalTime,
		Sites:     make([]*events.Site, len(exp.Sites)),
	}
	for j, site := range exp.Sites {
		s, err := e.Replica(ctx, site, i)
		if err != nil {
			return nil, err
		}
		replica.Sites[j] = s
	}
	return replica, nil
}

// replicaTimes fills dst (len == site.Len()) with the sorted times of replica i.
func (e *Engine) replicaTimes(ctx context.Context, site *events.Site, i int, dst []float64) error {
	if site.Len() == 0 {
		// Times reports the empty-site invariant with the site key.
		_, err := site.Times()
		return err
	}
	rng, err := e.rngPort.Stream(ctx, stageName, site.Key().String(), i, e.seed)
	if err != nil {
		return fmt.Errorf("replica %d of %s: %w", i, site.Key(), err)
	}
	for j := range dst {
		dst[j] = rng.Float64() * site.TotalTime
	}
	sort.Float64s(dst)
	return nil
}

type replicaResult struct {
	index  int
	scores []float64
	err    error
}

// SiteNull computes, for every replica of the site and every size 2..n, the best
// window score. Replicas are spread over a worker pool.
func (e *Engine) SiteNull(ctx context.Context, site *events.Site) (*NullDistribution, error) {
	if site.Len() == 0 {
		_, err := site.Times()
		return nil, err
	}
	start := time.Now()
	null := newNullDistribution(site.Key().String(), e.replicas, site.Len())

	numWorkers := e.workers
	if e.replicas < 100 {
		numWorkers = 1
	}

	workChan := make(chan int, e.replicas)
	resultChan := make(chan replicaResult, e.replicas)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.siteWorker(ctx, site, null.MaxSize, workChan, resultChan)
		}()
	}

	go func() {
		for i := 0; i < e.replicas; i++ {
			workChan <- i
		}
		close(workChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstErr error
	received := 0
	for result := range resultChan {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
			}
			continue
		}
		for k := 2; k <= null.MaxSize; k++ {
			null.Maxima[k][result.index] = result.scores[k]
		}
		received++
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if received != e.replicas {
		return nil, fmt.Errorf("site null for %s: got %d of %d replicas", site.Key(), received, e.replicas)
	}

	e.logger.Debug("site null distribution computed",
		zap.String("site", site.Key().String()),
		zap.Int("events", site.Len()),
		zap.Int("replicas", e.replicas),
		zap.Duration("elapsed", time.Since(start)))
	return null, nil
}

// siteWorker performs replica scoring work in a goroutine
func (e *Engine) siteWorker(ctx context.Context, site *events.Site, maxSize int, workChan <-chan int, resultChan chan<- replicaResult) {
	times := make([]float64, site.Len())
	for index := range workChan {
		select {
		case <-ctx.Done():
			return
		default:
			if err := e.replicaTimes(ctx, site, index, times); err != nil {
				resultChan <- replicaResult{index: index, err: err}
				continue
			}
			scores := make([]float64, maxSize+1)
			clustering.MaxWindowScores(times, scores)
			resultChan <- replicaResult{index: index, scores: scores}
		}
	}
}

// ExperimentNull computes every site null and combines them.
func (e *Engine) ExperimentNull(ctx context.Context, exp *events.Experiment) (*NullDistribution, error) {
	nulls := make([]*NullDistribution, 0, len(exp.Sites))
	for _, site := range exp.Sites {
		null, err := e.SiteNull(ctx, site)
		if err != nil {
			return nil, err
		}
		nulls = append(nulls, null)
	}
	return CombineNulls(exp.Name.String(), nulls)
}
