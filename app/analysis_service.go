package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"burstscan/domain/burst"
	"burstscan/domain/core"
	"burstscan/domain/events"
	"burstscan/internal/clustering"
	"burstscan/internal/errors"
	"burstscan/internal/significance"
	"burstscan/internal/sitescore"
	"burstscan/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stage names recorded on skipped sites.
const (
	StageClusters     = "clusters"
	StageSignificance = "significance"
	StageScore        = "score"
)

// AnalysisService runs clustering, significance testing and site scoring over a
// catalog of experiments
type AnalysisService struct {
	significance *significance.Engine
	scorer       *sitescore.Scorer
	params       burst.Parameters
	workers      int
	logger       *zap.Logger
}

// NewAnalysisService creates an analysis service. Experiments are processed by at
// most workers goroutines.
func NewAnalysisService(sig *significance.Engine, scorer *sitescore.Scorer, params burst.Parameters, workers int, logger *zap.Logger) *AnalysisService {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(params.Scopes) == 0 {
		params.Scopes = []burst.Scope{burst.ScopeSite, burst.ScopeExperiment}
	}
	return &AnalysisService{
		significance: sig,
		scorer:       scorer,
		params:       params,
		workers:      workers,
		logger:       logger.Named("analysis"),
	}
}

// Parameters returns the run parameters reports are stamped with.
func (s *AnalysisService) Parameters() burst.Parameters {
	return s.params
}

// experimentResult holds what one experiment contributes to a report.
type experimentResult struct {
	clusters    []burst.EventCluster
	significant map[burst.Scope][]burst.SignificantCluster
	scores      []burst.SiteScore
	skipped     []burst.SkippedSite
}

// task selects which stages run for each site.
type task struct {
	clusters    bool
	significant bool
	scores      bool
}

var (
	fullTask    = task{clusters: true, significant: true, scores: true}
	clusterTask = task{clusters: true}
	scoreTask   = task{scores: true}
)

// Analyze runs every stage over the catalog
func (s *AnalysisService) Analyze(ctx context.Context, catalog *events.Catalog) (*burst.Report, error) {
	return s.run(ctx, catalog, fullTask)
}

// Clusters runs contiguous clustering only
func (s *AnalysisService) Clusters(ctx context.Context, catalog *events.Catalog) (*burst.Report, error) {
	return s.run(ctx, catalog, clusterTask)
}

// Scores runs the goodness-of-fit site score only
func (s *AnalysisService) Scores(ctx context.Context, catalog *events.Catalog) (*burst.Report, error) {
	return s.run(ctx, catalog, scoreTask)
}

// Run reads records from source, analyzes them with the selected mode and hands the
// report to every sink.
func (s *AnalysisService) Run(ctx context.Context, mode string, source ports.EventSource, sinks ...ports.ReportSink) (*burst.Report, error) {
	records, err := source.ReadRecords(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read events")
	}
	catalog, err := LoadCatalog(records)
	if err != nil {
		return nil, err
	}

	var report *burst.Report
	switch mode {
	case "analyze", "":
		report, err = s.Analyze(ctx, catalog)
	case "clusters":
		report, err = s.Clusters(ctx, catalog)
	case "score":
		report, err = s.Scores(ctx, catalog)
	default:
		return nil, errors.InvalidInputf("unknown analysis mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	for _, sink := range sinks {
		if err := sink.WriteReport(ctx, report); err != nil {
			return nil, errors.Wrap(err, "failed to write report")
		}
	}
	return report, nil
}

// LoadCatalog builds the catalog and tags loader failures as invalid input.
func LoadCatalog(records []events.Record) (*events.Catalog, error) {
	catalog, err := events.LoadCatalog(records)
	if err != nil {
		if core.IsInvariantViolation(err) {
			return nil, err
		}
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return catalog, nil
}

func (s *AnalysisService) run(ctx context.Context, catalog *events.Catalog, t task) (*burst.Report, error) {
	if t.significant && s.significance == nil {
		return nil, errors.InternalError("significance engine is not configured")
	}
	if t.scores && s.scorer == nil {
		return nil, errors.InternalError("site scorer is not configured")
	}

	start := time.Now()
	runID := core.NewRunID()
	logger := s.logger.With(zap.String("run_id", runID.String()))
	logger.Info("analysis started",
		zap.Int("experiments", len(catalog.Experiments)),
		zap.Int("sites", catalog.SiteCount()),
		zap.Float64("alpha", s.params.Alpha),
		zap.Int("replicas", s.params.NumRandomPermutations))

	results := make([]experimentResult, len(catalog.Experiments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, exp := range catalog.Experiments {
		g.Go(func() error {
			res, err := s.analyzeExperiment(gctx, exp, t, logger)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Experiments are already sorted, so concatenating per-experiment results keeps
	// the report order independent of scheduling.
	report := burst.NewReport(runID, s.params)
	for _, res := range results {
		report.Clusters = append(report.Clusters, res.clusters...)
		for scope, sc := range res.significant {
			report.Significant[scope] = append(report.Significant[scope], sc...)
		}
		report.SiteScores = append(report.SiteScores, res.scores...)
		report.Skipped = append(report.Skipped, res.skipped...)
	}
	if t.significant {
		for _, scope := range s.params.Scopes {
			if _, ok := report.Significant[scope]; !ok {
				report.Significant[scope] = []burst.SignificantCluster{}
			}
		}
	}

	logger.Info("analysis finished",
		zap.Int("clusters", len(report.Clusters)),
		zap.Int("site_scores", len(report.SiteScores)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

func (s *AnalysisService) analyzeExperiment(ctx context.Context, exp *events.Experiment, t task, logger *zap.Logger) (experimentResult, error) {
	res := experimentResult{significant: make(map[burst.Scope][]burst.SignificantCluster)}
	logger = logger.With(zap.String("experiment", exp.Name.String()))

	for _, site := range exp.Sites {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if t.clusters {
			clusters, err := clustering.Contiguous(site, s.params.MaxInterEventTime)
			if err != nil {
				if skipErr := s.skip(&res, site, StageClusters, err, logger); skipErr != nil {
					return res, skipErr
				}
			} else {
				res.clusters = append(res.clusters, clusters...)
			}
		}

		if t.significant {
			for _, scope := range s.params.Scopes {
				sig, err := s.significance.Significant(ctx, exp, site, scope)
				if err != nil {
					stage := fmt.Sprintf("%s/%s", StageSignificance, scope)
					if skipErr := s.skip(&res, site, stage, err, logger); skipErr != nil {
						return res, skipErr
					}
					continue
				}
				res.significant[scope] = append(res.significant[scope], sig...)
			}
		}

		if t.scores {
			score, err := s.scorer.Score(site)
			if err != nil {
				if skipErr := s.skip(&res, site, StageScore, err, logger); skipErr != nil {
					return res, skipErr
				}
			} else {
				res.scores = append(res.scores, score)
			}
		}
	}
	return res, nil
}

// skip records a per-site failure so the batch can continue. Invariant violations
// and cancellation are returned instead.
func (s *AnalysisService) skip(res *experimentResult, site *events.Site, stage string, err error, logger *zap.Logger) error {
	if core.IsInvariantViolation(err) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Warn("site skipped",
		zap.String("site", site.ID.String()),
		zap.String("stage", stage),
		zap.Error(err))
	res.skipped = append(res.skipped, burst.SkippedSite{
		Experiment: site.Experiment,
		Site:       site.ID,
		Stage:      stage,
		Reason:     err.Error(),
	})
	return nil
}
