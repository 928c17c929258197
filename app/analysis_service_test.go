package app

import (
	"context"
	stderrors "errors"
	"testing"

	"burstscan/domain/burst"
	"burstscan/domain/core"
	"burstscan/domain/events"
	"burstscan/internal/errors"
	"burstscan/internal/testkit"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T, kit *testkit.TestKit, replicas int, scopes []burst.Scope, workers int) *AnalysisService {
	t.Helper()
	params := burst.Parameters{
		Alpha:                 0.05,
		MaxInterEventTime:     5,
		NumRandomPermutations: replicas,
		Seed:                  1,
		Scopes:                scopes,
	}
	sig, err := kit.SignificanceEngine(replicas, params.Seed, params.Alpha, params.MaxInterEventTime)
	require.NoError(t, err)
	t.Cleanup(kit.Close)
	return NewAnalysisService(sig, kit.Scorer(), params, workers, kit.Logger())
}

func bothScopes() []burst.Scope {
	return []burst.Scope{burst.ScopeSite, burst.ScopeExperiment}
}

func TestAnalyzeScenario(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t))
	service := newService(t, kit, 1000, bothScopes(), 2)

	catalog, err := testkit.ScenarioCatalog()
	require.NoError(t, err)

	report, err := service.Analyze(context.Background(), catalog)
	require.NoError(t, err)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []float64{10, 12, 13}, report.Clusters[0].Times())

	for _, scope := range bothScopes() {
		sig := report.Significant[scope]
		require.Len(t, sig, 1, "scope %s", scope)
		assert.Equal(t, []float64{10, 12, 13}, sig[0].Cluster.Times())
		assert.Equal(t, scope, sig[0].Scope)
		assert.Less(t, sig[0].Cutoff, sig[0].Cluster.Score())
	}

	require.Len(t, report.SiteScores, 1)
	score := report.SiteScores[0]
	assert.Equal(t, 4, score.EventCount)
	assert.GreaterOrEqual(t, score.PValue, 0.0)
	assert.LessOrEqual(t, score.PValue, 1.0)
	assert.Empty(t, report.Skipped)
	assert.NotEmpty(t, report.RunID.String())
}

func TestAnalyzeSkipsFailingSiteAndContinues(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t)).WithRNG(testkit.NewFailingRNGAdapter("E1/S2"))
	service := newService(t, kit, 100, []burst.Scope{burst.ScopeSite}, 1)

	catalog, err := events.LoadCatalog([]events.Record{
		{ExperimentName: "E1", TotalTime: 100, SiteID: "S1", Time: 10},
		{ExperimentName: "E1", TotalTime: 100, SiteID: "S1", Time: 11},
		{ExperimentName: "E1", TotalTime: 100, SiteID: "S2", Time: 50},
		{ExperimentName: "E1", TotalTime: 100, SiteID: "S2", Time: 52},
	})
	require.NoError(t, err)

	report, err := service.Analyze(context.Background(), catalog)
	require.NoError(t, err)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, core.SiteID("S2"), report.Skipped[0].Site)
	assert.Equal(t, StageSignificance+"/site", report.Skipped[0].Stage)

	// The failing site still gets its clusters and score.
	assert.Len(t, report.Clusters, 2)
	assert.Len(t, report.SiteScores, 2)
}

func TestAnalyzePropagatesInvariantViolation(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t))
	service := newService(t, kit, 10, bothScopes(), 1)

	catalog := &events.Catalog{Experiments: []*events.Experiment{{
		Name:      "E1",
		TotalTime: 100,
		Sites:     []*events.Site{events.NewSite("E1", "S1", 100, nil)},
	}}}

	_, err := service.Analyze(context.Background(), catalog)
	require.Error(t, err)
	assert.True(t, core.IsInvariantViolation(err))
	assert.True(t, stderrors.Is(err, core.ErrEmptySite))
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t))
	service := newService(t, kit, 100, bothScopes(), 1)

	catalog, err := testkit.ScenarioCatalog()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = service.Analyze(ctx, catalog)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestAnalyzeIsDeterministicAcrossWorkerCounts(t *testing.T) {
	records, _, err := testkit.NewEventGenerator(testkit.DefaultGeneratorConfig(), testkit.NewTestKit(nil).RNGAdapter()).Generate(context.Background())
	require.NoError(t, err)
	catalog, err := events.LoadCatalog(records)
	require.NoError(t, err)

	one := newService(t, testkit.NewTestKit(zaptest.NewLogger(t)), 200, bothScopes(), 1)
	many := newService(t, testkit.NewTestKit(zaptest.NewLogger(t)), 200, bothScopes(), 4)

	a, err := one.Analyze(context.Background(), catalog)
	require.NoError(t, err)
	b, err := many.Analyze(context.Background(), catalog)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Clusters, b.Clusters); diff != "" {
		t.Errorf("clusters differ (-one +many):\n%s", diff)
	}
	if diff := cmp.Diff(a.Significant, b.Significant); diff != "" {
		t.Errorf("significant clusters differ (-one +many):\n%s", diff)
	}
	if diff := cmp.Diff(a.SiteScores, b.SiteScores, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("site scores differ (-one +many):\n%s", diff)
	}
}

func TestAnalyzeFindsInjectedBursts(t *testing.T) {
	config := testkit.DefaultGeneratorConfig()
	records, bursts, err := testkit.NewEventGenerator(config, testkit.NewTestKit(nil).RNGAdapter()).Generate(context.Background())
	require.NoError(t, err)
	catalog, err := events.LoadCatalog(records)
	require.NoError(t, err)

	service := newService(t, testkit.NewTestKit(zaptest.NewLogger(t)), 200, []burst.Scope{burst.ScopeSite}, 2)
	report, err := service.Analyze(context.Background(), catalog)
	require.NoError(t, err)

	for _, b := range bursts {
		found := false
		for _, sc := range report.Significant[burst.ScopeSite] {
			c := sc.Cluster
			if string(c.Experiment) != b.Experiment || string(c.Site) != b.Site {
				continue
			}
			times := c.Times()
			if times[0] <= b.End && times[len(times)-1] >= b.Start {
				found = true
			}
		}
		assert.True(t, found, "burst in %s/%s at [%v, %v] not detected", b.Experiment, b.Site, b.Start, b.End)
	}
}

func TestClustersAndScoresModes(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t))
	service := newService(t, kit, 10, bothScopes(), 1)
	catalog, err := testkit.ScenarioCatalog()
	require.NoError(t, err)

	report, err := service.Clusters(context.Background(), catalog)
	require.NoError(t, err)
	assert.Len(t, report.Clusters, 1)
	assert.Empty(t, report.Significant)
	assert.Empty(t, report.SiteScores)

	report, err = service.Scores(context.Background(), catalog)
	require.NoError(t, err)
	assert.Empty(t, report.Clusters)
	assert.Len(t, report.SiteScores, 1)
}

type recordSource struct {
	records []events.Record
}

func (s recordSource) ReadRecords(ctx context.Context) ([]events.Record, error) {
	return s.records, nil
}

type captureSink struct {
	reports []*burst.Report
}

func (s *captureSink) WriteReport(ctx context.Context, report *burst.Report) error {
	s.reports = append(s.reports, report)
	return nil
}

func TestRunWritesToEverySink(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t))
	service := newService(t, kit, 50, bothScopes(), 1)

	first, second := &captureSink{}, &captureSink{}
	report, err := service.Run(context.Background(), "analyze", recordSource{testkit.ScenarioRecords()}, first, second)
	require.NoError(t, err)
	require.Len(t, first.reports, 1)
	require.Len(t, second.reports, 1)
	assert.Same(t, report, first.reports[0])
}

func TestRunRejectsBadInput(t *testing.T) {
	kit := testkit.NewTestKit(zaptest.NewLogger(t))
	service := newService(t, kit, 10, bothScopes(), 1)

	_, err := service.Run(context.Background(), "explode", recordSource{testkit.ScenarioRecords()})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	bad := []events.Record{{ExperimentName: "E1", TotalTime: 100, SiteID: "S1", Time: 150}}
	_, err = service.Run(context.Background(), "analyze", recordSource{bad})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.True(t, stderrors.Is(err, core.ErrEventOutOfRange))
}
