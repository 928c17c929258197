package significance

import (
	"context"
	"fmt"
	"math"

	"burstscan/domain/burst"
	"burstscan/domain/events"
	"burstscan/internal/permutation"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine computes cutoff tables at site and experiment scope and memoises them,
// together with the null distributions they come from. Cache keys carry the
// replica count, seed and alpha, so changing any of them forces a recomputation.
type Engine struct {
	permuter          *permutation.Engine
	alpha             float64
	maxInterEventTime float64
	cache             *ristretto.Cache
	group             singleflight.Group
	logger            *zap.Logger
}

// NewCache creates the ristretto cache shared by null distributions and cutoff
// tables. maxCost is expressed in float64 slots.
func NewCache(maxCost int64) (*ristretto.Cache, error) {
	return ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
}

// NewEngine creates a significance engine. cache may be nil to disable memoisation.
func NewEngine(permuter *permutation.Engine, alpha, maxInterEventTime float64, cache *ristretto.Cache, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		permuter:          permuter,
		alpha:             alpha,
		maxInterEventTime: maxInterEventTime,
		cache:             cache,
		logger:            logger,
	}
}

// SiteNull returns the memoised null distribution of one site.
func (e *Engine) SiteNull(ctx context.Context, site *events.Site) (*permutation.NullDistribution, error) {
	key := e.key("null", burst.ScopeSite, site.Key().String(), siteFingerprint(site))
	v, err := e.memo(key, func() (interface{}, int64, error) {
		null, err := e.permuter.SiteNull(ctx, site)
		if err != nil {
			return nil, 0, err
		}
		return null, null.Cost(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*permutation.NullDistribution), nil
}

// ExperimentNull combines the memoised site nulls of the experiment.
func (e *Engine) ExperimentNull(ctx context.Context, exp *events.Experiment) (*permutation.NullDistribution, error) {
	key := e.key("null", burst.ScopeExperiment, exp.Name.String(), experimentFingerprint(exp))
	v, err := e.memo(key, func() (interface{}, int64, error) {
		nulls := make([]*permutation.NullDistribution, 0, len(exp.Sites))
		for _, site := range exp.Sites {
			null, err := e.SiteNull(ctx, site)
			if err != nil {
				return nil, 0, err
			}
			nulls = append(nulls, null)
		}
		combined, err := permutation.CombineNulls(exp.Name.String(), nulls)
		if err != nil {
			return nil, 0, err
		}
		return combined, combined.Cost(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*permutation.NullDistribution), nil
}

// SiteCutoffs returns the site-wide cutoff table.
func (e *Engine) SiteCutoffs(ctx context.Context, site *events.Site) (*burst.CutoffTable, error) {
	key := e.key("cutoffs", burst.ScopeSite, site.Key().String(), siteFingerprint(site))
	return e.cutoffs(key, burst.ScopeSite, func() (*permutation.NullDistribution, error) {
		return e.SiteNull(ctx, site)
	})
}

// ExperimentCutoffs returns the experiment-wide cutoff table.
func (e *Engine) ExperimentCutoffs(ctx context.Context, exp *events.Experiment) (*burst.CutoffTable, error) {
	key := e.key("cutoffs", burst.ScopeExperiment, exp.Name.String(), experimentFingerprint(exp))
	return e.cutoffs(key, burst.ScopeExperiment, func() (*permutation.NullDistribution, error) {
		return e.ExperimentNull(ctx, exp)
	})
}

// Cutoffs returns the table for the requested scope.
func (e *Engine) Cutoffs(ctx context.Context, exp *events.Experiment, site *events.Site, scope burst.Scope) (*burst.CutoffTable, error) {
	switch scope {
	case burst.ScopeSite:
		return e.SiteCutoffs(ctx, site)
	case burst.ScopeExperiment:
		return e.ExperimentCutoffs(ctx, exp)
	default:
		return nil, fmt.Errorf("unknown significance scope %q", scope)
	}
}

// Significant returns the collapsed significant clusters of a site under one scope.
func (e *Engine) Significant(ctx context.Context, exp *events.Experiment, site *events.Site, scope burst.Scope) ([]burst.SignificantCluster, error) {
	table, err := e.Cutoffs(ctx, exp, site, scope)
	if err != nil {
		return nil, err
	}
	return Extract(site, table, e.maxInterEventTime)
}

func (e *Engine) cutoffs(key string, scope burst.Scope, null func() (*permutation.NullDistribution, error)) (*burst.CutoffTable, error) {
	v, err := e.memo(key, func() (interface{}, int64, error) {
		n, err := null()
		if err != nil {
			return nil, 0, err
		}
		table, err := CutoffsFromNull(n, e.alpha, scope)
		if err != nil {
			return nil, 0, err
		}
		return table, int64(len(table.Cutoffs)) + 1, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*burst.CutoffTable), nil
}

// memo serves key from the cache, computing it at most once at a time.
func (e *Engine) memo(key string, compute func() (interface{}, int64, error)) (interface{}, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v, nil
		}
	}
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		value, cost, err := compute()
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			if !e.cache.Set(key, value, cost) {
				e.logger.Debug("cache rejected entry", zap.String("key", key), zap.Int64("cost", cost))
			}
			e.cache.Wait()
		}
		return value, nil
	})
	return v, err
}

func (e *Engine) key(kind string, scope burst.Scope, owner string, fingerprint uint64) string {
	return fmt.Sprintf("%s|%s|%s|r%d|s%d|a%g|%x",
		kind, scope, owner, e.permuter.Replicas(), e.permuter.Seed(), e.alpha, fingerprint)
}

func siteFingerprint(site *events.Site) uint64 {
	d := xxhash.New()
	writeSite(d, site)
	return d.Sum64()
}

func experimentFingerprint(exp *events.Experiment) uint64 {
	d := xxhash.New()
	writeFloat(d, exp.TotalTime)
	for _, site := range exp.Sites {
		writeSite(d, site)
	}
	return d.Sum64()
}

func writeSite(d *xxhash.Digest, site *events.Site) {
	_, _ = d.WriteString(site.Key().String())
	writeFloat(d, site.TotalTime)
	for _, ev := range site.Events {
		writeFloat(d, ev.Time)
	}
}

func writeFloat(d *xxhash.Digest, v float64) {
	var buf [8]byte
	bits := math.Float64bits(v)
	for i := range buf {
		buf[i] = byte(bits >> (8 * i))
	}
	_, _ = d.Write(buf[:])
}
