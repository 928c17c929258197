package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"burstscan/adapters/rng"
	"burstscan/adapters/table"
	"burstscan/app"
	"burstscan/domain/burst"
	"burstscan/internal/config"
	"burstscan/internal/errors"
	"burstscan/internal/permutation"
	"burstscan/internal/significance"
	"burstscan/internal/sitescore"
	"burstscan/ports"

	"github.com/dgraph-io/ristretto"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// options carries flag values. Only flags the user set override the configuration.
type options struct {
	configPath string
	verbose    bool

	input        string
	outputDir    string
	workbook     string
	alpha        float64
	maxGap       float64
	permutations int
	scope        string
	seed         int64
	workers      int
	bins         int
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errors.GetCode(err), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "burstscan",
		Short:         "Detect statistically significant bursts of events at sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Development logging at debug level")

	rootCmd.AddCommand(
		newRunCmd(opts, "analyze", "Cluster, test significance and score every site",
			`Run the full analysis: contiguous clusters, significant clusters under the
site-wide and/or experiment-wide permutation null, and goodness-of-fit site scores.

Example: burstscan analyze --input events.tsv --max-gap 5 --permutations 10000 --out results`),
		newRunCmd(opts, "clusters", "Contiguous clustering by maximum inter-event time only",
			`Group each site's events into runs whose consecutive gaps do not exceed --max-gap.

Example: burstscan clusters --input events.tsv --max-gap 5 --out results`),
		newRunCmd(opts, "score", "Goodness-of-fit site score only",
			`Score each site's inter-event gaps against an exponential waiting-time model.

Example: burstscan score --input events.xlsx --bins 10 --out results`),
	)
	return rootCmd
}

func newRunCmd(opts *options, mode, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, mode)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Event table (.tsv, .txt, .csv or .xlsx)")
	cmd.Flags().StringVarP(&opts.outputDir, "out", "o", "", "Directory for the TSV result tables")
	cmd.Flags().StringVar(&opts.workbook, "xlsx", "", "Also write all result tables into this workbook")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0.05, "Significance level")
	cmd.Flags().Float64Var(&opts.maxGap, "max-gap", 0, "Maximum inter-event time inside a cluster")
	cmd.Flags().IntVar(&opts.permutations, "permutations", 10000, "Number of random permutations")
	cmd.Flags().StringVar(&opts.scope, "scope", "both", "Significance scope: site, experiment or both")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "Random seed for deterministic operations")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Worker goroutines (default: number of CPUs)")
	cmd.Flags().IntVar(&opts.bins, "bins", 10, "Histogram bins of the goodness-of-fit score")
	return cmd
}

func run(cmd *cobra.Command, opts *options, mode string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)
	if mode == "score" && cfg.Analysis.MaxInterEventTime == 0 {
		// The site score does not use the cluster gap.
		cfg.Analysis.MaxInterEventTime = math.Inf(1)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Paths.InputFile == "" {
		return errors.InvalidInput("an input file is required (--input or BURSTSCAN_INPUT)")
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "failed to build logger")
	}
	defer func() { _ = logger.Sync() }()

	service, cleanup, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sinks := []ports.ReportSink{table.NewTSVWriter(cfg.Paths.OutputDir, logger)}
	if cfg.Paths.Workbook != "" {
		sinks = append(sinks, table.NewXLSXWriter(cfg.Paths.Workbook, logger))
	}

	report, err := service.Run(cmd.Context(), mode, table.NewReader(cfg.Paths.InputFile, logger), sinks...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d clusters", report.RunID, len(report.Clusters))
	for _, scope := range report.Parameters.Scopes {
		if sig, ok := report.Significant[scope]; ok {
			fmt.Fprintf(out, ", %d %s-significant", len(sig), scope)
		}
	}
	fmt.Fprintf(out, ", %d site scores, %d skipped sites\n", len(report.SiteScores), len(report.Skipped))
	fmt.Fprintf(out, "results written to %s\n", cfg.Paths.OutputDir)
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Paths.InputFile = opts.input
	}
	if flags.Changed("out") {
		cfg.Paths.OutputDir = opts.outputDir
	}
	if flags.Changed("xlsx") {
		cfg.Paths.Workbook = opts.workbook
	}
	if flags.Changed("alpha") {
		cfg.Analysis.Alpha = opts.alpha
	}
	if flags.Changed("max-gap") {
		cfg.Analysis.MaxInterEventTime = opts.maxGap
	}
	if flags.Changed("permutations") {
		cfg.Analysis.NumRandomPermutations = opts.permutations
	}
	if flags.Changed("scope") {
		cfg.Analysis.Scope = opts.scope
	}
	if flags.Changed("seed") {
		cfg.Analysis.Seed = opts.seed
	}
	if flags.Changed("workers") {
		cfg.Analysis.Workers = opts.workers
	}
	if flags.Changed("bins") {
		cfg.Analysis.HistogramBins = opts.bins
	}
	if opts.verbose {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// buildService wires the RNG port, engines and cache into an analysis service.
func buildService(cfg *config.Config, logger *zap.Logger) (*app.AnalysisService, func(), error) {
	scopes, err := cfg.Scopes()
	if err != nil {
		return nil, nil, err
	}

	var cache *ristretto.Cache
	cleanup := func() {}
	if cfg.Analysis.CacheMaxCost > 0 {
		c, err := significance.NewCache(cfg.Analysis.CacheMaxCost)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create cache")
		}
		cache = c
		cleanup = c.Close
	}

	a := cfg.Analysis
	permuter := permutation.NewEngine(rng.NewPCGAdapter(), a.NumRandomPermutations, a.Workers, a.Seed, logger)
	sig := significance.NewEngine(permuter, a.Alpha, a.MaxInterEventTime, cache, logger)
	scorer := sitescore.NewScorer(a.HistogramBins, logger)

	params := burst.Parameters{
		Alpha:                 a.Alpha,
		MaxInterEventTime:     a.MaxInterEventTime,
		NumRandomPermutations: a.NumRandomPermutations,
		Seed:                  a.Seed,
		Scopes:                scopes,
	}
	return app.NewAnalysisService(sig, scorer, params, a.Workers, logger), cleanup, nil
}
