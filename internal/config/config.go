package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/evaluator"
	"github.com/lox/chinesepoker/internal/scoring"
)

// Config is the complete engine configuration
type Config struct {
	LogLevel    string
	Scoring     scoring.Rules
	Evaluator   EvaluatorConfig
	Enumerator  EnumeratorConfig
	Estimator   EstimatorConfig
	Equilibrium EquilibriumConfig
	Server      ServerConfig
	Store       StoreConfig
}

// EvaluatorConfig selects the lookup table behind the hand evaluator
type EvaluatorConfig struct {
	Table string `hcl:"table,optional"`
}

// EnumeratorConfig controls the arrangement cache
type EnumeratorConfig struct {
	CacheSize int    `hcl:"cache_size,optional"`
	Encoding  string `hcl:"encoding,optional"`
}

// EstimatorConfig controls Monte Carlo EV estimation
type EstimatorConfig struct {
	Samples        int    `hcl:"samples,optional"`
	Opponents      int    `hcl:"opponents,optional"`
	Workers        int    `hcl:"workers,optional"`
	Policy         string `hcl:"policy,optional"`
	PruneDominated bool   `hcl:"prune_dominated,optional"`
	Seed           int64  `hcl:"seed,optional"`
}

// EquilibriumConfig controls the best-response search
type EquilibriumConfig struct {
	MaxIterations        int     `hcl:"max_iterations,optional"`
	Tolerance            float64 `hcl:"tolerance,optional"`
	OscillationTolerance float64 `hcl:"oscillation_tolerance,optional"`
	TimeBudget           string  `hcl:"time_budget,optional"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `hcl:"address,optional"`
}

// StoreConfig contains the result store connection. An empty DSN falls
// back to DATABASE_URL, and no store is used when both are empty.
type StoreConfig struct {
	DSN string `hcl:"dsn,optional"`
}

// block captures a block body so it can be decoded over the defaults.
type block struct {
	Body hcl.Body `hcl:",remain"`
}

type file struct {
	LogLevel    string `hcl:"log_level,optional"`
	Scoring     *block `hcl:"scoring,block"`
	Evaluator   *block `hcl:"evaluator,block"`
	Enumerator  *block `hcl:"enumerator,block"`
	Estimator   *block `hcl:"estimator,block"`
	Equilibrium *block `hcl:"equilibrium,block"`
	Server      *block `hcl:"server,block"`
	Store       *block `hcl:"store,block"`
}

// Default returns the default configuration
func Default() *Config {
	solve := estimator.DefaultSolveConfig()
	return &Config{
		LogLevel:  "info",
		Scoring:   scoring.DefaultRules(),
		Evaluator: EvaluatorConfig{Table: evaluator.TablePerfect},
		Enumerator: EnumeratorConfig{
			CacheSize: 4096,
			Encoding:  string(arrange.EncodingExact),
		},
		Estimator: EstimatorConfig{
			Samples:        400,
			Opponents:      3,
			Policy:         estimator.PolicyMaxProduct,
			PruneDominated: true,
		},
		Equilibrium: EquilibriumConfig{
			MaxIterations:        solve.MaxIterations,
			Tolerance:            solve.Tolerance,
			OscillationTolerance: solve.OscillationTolerance,
			TimeBudget:           "30s",
		},
		Server: ServerConfig{Address: "localhost:8080"},
	}
}

// Load reads an HCL configuration file. Attributes missing from the file
// keep their defaults, and a missing file yields Default().
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}
	return decode(f.Body)
}

// Parse decodes configuration from HCL source.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return decode(f.Body)
}

func decode(body hcl.Body) (*Config, error) {
	cfg := Default()
	raw := file{LogLevel: cfg.LogLevel}
	if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	cfg.LogLevel = raw.LogLevel

	blocks := []struct {
		b      *block
		target any
	}{
		{raw.Scoring, &cfg.Scoring},
		{raw.Evaluator, &cfg.Evaluator},
		{raw.Enumerator, &cfg.Enumerator},
		{raw.Estimator, &cfg.Estimator},
		{raw.Equilibrium, &cfg.Equilibrium},
		{raw.Server, &cfg.Server},
		{raw.Store, &cfg.Store},
	}
	for _, blk := range blocks {
		if blk.b == nil {
			continue
		}
		if diags := gohcl.DecodeBody(blk.b.Body, nil, blk.target); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and joins the problems found
func (c *Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	switch c.Evaluator.Table {
	case evaluator.TablePerfect, evaluator.TableMap, evaluator.TableNone:
	default:
		errs = append(errs, fmt.Errorf("evaluator: unknown table %q", c.Evaluator.Table))
	}
	if c.Enumerator.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("enumerator: cache_size must be non-negative, got %d", c.Enumerator.CacheSize))
	}
	if _, err := arrange.ParseEncoding(c.Enumerator.Encoding); err != nil {
		errs = append(errs, fmt.Errorf("enumerator: %w", err))
	}
	if c.Estimator.Samples < 1 {
		errs = append(errs, fmt.Errorf("estimator: samples must be positive, got %d", c.Estimator.Samples))
	}
	if c.Estimator.Opponents < 1 || c.Estimator.Opponents > estimator.MaxPlayers-1 {
		errs = append(errs, fmt.Errorf("estimator: opponents must be 1-%d, got %d", estimator.MaxPlayers-1, c.Estimator.Opponents))
	}
	if c.Estimator.Workers < 0 {
		errs = append(errs, fmt.Errorf("estimator: workers must be non-negative, got %d", c.Estimator.Workers))
	}
	if _, err := estimator.ParsePolicy(c.Estimator.Policy); err != nil {
		errs = append(errs, fmt.Errorf("estimator: %w", err))
	}
	if _, err := c.SolveConfig(); err != nil {
		errs = append(errs, fmt.Errorf("equilibrium: %w", err))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server: address must be set"))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// NewLogger returns a logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           c.Level(),
		ReportTimestamp: true,
	})
}

// StoreDSN returns the configured DSN, falling back to DATABASE_URL.
func (c *Config) StoreDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	return os.Getenv("DATABASE_URL")
}

// SolveConfig converts the equilibrium section. An empty time_budget means
// no budget.
func (c *Config) SolveConfig() (estimator.SolveConfig, error) {
	solve := estimator.SolveConfig{
		MaxIterations:        c.Equilibrium.MaxIterations,
		Tolerance:            c.Equilibrium.Tolerance,
		OscillationTolerance: c.Equilibrium.OscillationTolerance,
	}
	if c.Equilibrium.TimeBudget != "" {
		d, err := time.ParseDuration(c.Equilibrium.TimeBudget)
		if err != nil {
			return solve, fmt.Errorf("invalid time_budget: %w", err)
		}
		solve.TimeBudget = d
	}
	return solve, solve.Validate()
}

// NewEnumerator builds the evaluator and enumerator the config describes.
func (c *Config) NewEnumerator(logger *log.Logger) (*arrange.Enumerator, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	table, err := evaluator.BuildTable(c.Evaluator.Table)
	if err != nil {
		return nil, err
	}
	return arrange.NewEnumerator(arrange.Config{
		Evaluator: evaluator.New(table),
		Logger:    logger,
		CacheSize: c.Enumerator.CacheSize,
		Encoding:  arrange.Encoding(c.Enumerator.Encoding),
		Workers:   c.Estimator.Workers,
	})
}

// NewEstimator builds an estimator over enumerator.
func (c *Config) NewEstimator(enumerator *arrange.Enumerator, logger *log.Logger) (*estimator.Estimator, error) {
	return estimator.New(estimator.Config{
		Rules:          c.Scoring,
		Enumerator:     enumerator,
		Workers:        c.Estimator.Workers,
		Seed:           c.Estimator.Seed,
		PruneDominated: c.Estimator.PruneDominated,
		Logger:         logger,
	})
}

// NewOpponents builds the random opponent model.
func (c *Config) NewOpponents(enumerator *arrange.Enumerator) (*estimator.RandomOpponents, error) {
	policy, err := estimator.ParsePolicy(c.Estimator.Policy)
	if err != nil {
		return nil, err
	}
	return estimator.NewRandomOpponents(c.Estimator.Opponents, c.Estimator.Samples, policy, enumerator)
}
