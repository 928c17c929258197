package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"burstscan/domain/burst"
	"burstscan/internal/errors"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig `toml:"analysis" validate:"required"`
	Paths    PathConfig     `toml:"paths"`
	Logging  LoggingConfig  `toml:"logging"`
}

// AnalysisConfig holds the statistical parameters of a run
type AnalysisConfig struct {
	Alpha                 float64 `toml:"alpha" validate:"gt=0,lt=1"`
	MaxInterEventTime     float64 `toml:"max_inter_event_time" validate:"gt=0"`
	NumRandomPermutations int     `toml:"num_random_permutations" validate:"gte=1"`
	Scope                 string  `toml:"scope" validate:"oneof=site experiment both"`
	Seed                  int64   `toml:"seed"`
	Workers               int     `toml:"workers" validate:"gte=1"`
	HistogramBins         int     `toml:"histogram_bins" validate:"gte=3"`
	CacheMaxCost          int64   `toml:"cache_max_cost" validate:"gte=0"`
}

// PathConfig holds file system paths
type PathConfig struct {
	InputFile string `toml:"input_file"`
	OutputDir string `toml:"output_dir"`
	Workbook  string `toml:"workbook"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

// Default returns the configuration used when nothing overrides it.
// MaxInterEventTime has no meaningful default and must be supplied.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Alpha:                 0.05,
			NumRandomPermutations: 10000,
			Scope:                 "both",
			Seed:                  1,
			Workers:               runtime.NumCPU(),
			HistogramBins:         10,
			CacheMaxCost:          1 << 28,
		},
		Paths: PathConfig{
			OutputDir: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// BURSTSCAN_* environment variables, in that order. It does not validate: callers
// apply their own overrides and then call Validate.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read configuration file %s", path)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, errors.Wrap(err, "failed to apply environment overrides")
	}

	return config, nil
}

// Scopes returns the parsed significance scopes.
func (c *Config) Scopes() ([]burst.Scope, error) {
	scopes, err := burst.ParseScopes(c.Analysis.Scope)
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	return scopes, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field before any computation begins.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.ConfigInvalid(strings.Join(msgs, "; "))
		}
		return errors.Wrap(errors.ConfigInvalid(err.Error()), "configuration validation failed")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Namespace(), fe.Param(), fe.Value())
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	default:
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
}

func applyEnvOverrides(c *Config) error {
	var err error
	if c.Analysis.Alpha, err = getEnvFloatOrDefault("BURSTSCAN_ALPHA", c.Analysis.Alpha); err != nil {
		return err
	}
	if c.Analysis.MaxInterEventTime, err = getEnvFloatOrDefault("BURSTSCAN_MAX_INTER_EVENT_TIME", c.Analysis.MaxInterEventTime); err != nil {
		return err
	}
	if c.Analysis.NumRandomPermutations, err = getEnvIntOrDefault("BURSTSCAN_PERMUTATIONS", c.Analysis.NumRandomPermutations); err != nil {
		return err
	}
	if c.Analysis.Workers, err = getEnvIntOrDefault("BURSTSCAN_WORKERS", c.Analysis.Workers); err != nil {
		return err
	}
	if c.Analysis.HistogramBins, err = getEnvIntOrDefault("BURSTSCAN_HISTOGRAM_BINS", c.Analysis.HistogramBins); err != nil {
		return err
	}
	seed, err := getEnvIntOrDefault("BURSTSCAN_SEED", int(c.Analysis.Seed))
	if err != nil {
		return err
	}
	c.Analysis.Seed = int64(seed)
	c.Analysis.Scope = getEnvOrDefault("BURSTSCAN_SCOPE", c.Analysis.Scope)

	c.Paths.InputFile = getEnvOrDefault("BURSTSCAN_INPUT", c.Paths.InputFile)
	c.Paths.OutputDir = getEnvOrDefault("BURSTSCAN_OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.Workbook = getEnvOrDefault("BURSTSCAN_WORKBOOK", c.Paths.Workbook)

	c.Logging.Level = getEnvOrDefault("BURSTSCAN_LOG_LEVEL", c.Logging.Level)
	if c.Logging.Development, err = getEnvBoolOrDefault("BURSTSCAN_LOG_DEVELOPMENT", c.Logging.Development); err != nil {
		return err
	}
	return nil
}

// Helper functions for environment variable parsing. Unlike silent fallbacks, a
// value that is set but unparsable is a configuration error.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s must be an integer, got %q", key, value))
	}
	return intValue, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s must be a number, got %q", key, value))
	}
	return floatValue, nil
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.ConfigInvalid(fmt.Sprintf("%s must be a boolean, got %q", key, value))
	}
	return boolValue, nil
}
