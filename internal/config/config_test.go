package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/scoring"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, scoring.DefaultRules(), cfg.Scoring)
	assert.Equal(t, log.InfoLevel, cfg.Level())

	solve, err := cfg.SolveConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, solve.TimeBudget)
	assert.Equal(t, 100, solve.MaxIterations)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "chinesepoker.hcl")
	src := `
log_level = "debug"

scoring {
  front_trips = 5
  overall_per_opponent = 0
}

enumerator {
  encoding = "suit-normalized"
}

estimator {
  samples = 50
  prune_dominated = false
}

equilibrium {
  time_budget = "2s"
}

server {
  address = ":9090"
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, log.DebugLevel, cfg.Level())
	assert.Equal(t, 5, cfg.Scoring.FrontTrips)
	assert.Equal(t, 0, cfg.Scoring.OverallPerOpponent)
	// Unset attributes keep their defaults.
	assert.Equal(t, scoring.DefaultRules().ScoopPerOpponent, cfg.Scoring.ScoopPerOpponent)
	assert.Equal(t, 4096, cfg.Enumerator.CacheSize)
	assert.Equal(t, string(arrange.EncodingSuitNormalized), cfg.Enumerator.Encoding)
	assert.Equal(t, 50, cfg.Estimator.Samples)
	assert.Equal(t, 3, cfg.Estimator.Opponents)
	assert.False(t, cfg.Estimator.PruneDominated)
	assert.Equal(t, estimator.PolicyMaxProduct, cfg.Estimator.Policy)
	assert.Equal(t, ":9090", cfg.Server.Address)

	solve, err := cfg.SolveConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, solve.TimeBudget)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `scoring {`, "failed to parse HCL"},
		{"unknown attribute", `colour = "red"`, "failed to decode HCL"},
		{"unknown block attribute", `scoring { jokers = 2 }`, "failed to decode HCL"},
		{"negative bonus", `scoring { sweep = -1 }`, "scoring"},
		{"bad table", `evaluator { table = "btree" }`, "unknown table"},
		{"bad encoding", `enumerator { encoding = "zip" }`, "enumerator"},
		{"too many opponents", `estimator { opponents = 4 }`, "opponents must be 1-3"},
		{"bad policy", `estimator { policy = "random" }`, "estimator"},
		{"bad duration", `equilibrium { time_budget = "soon" }`, "invalid time_budget"},
		{"bad level", `log_level = "loud"`, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.src), "test.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildComponents(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
evaluator { table = "map" }
enumerator { cache_size = 16 }
estimator {
  samples = 4
  opponents = 1
  policy = "strongest-back"
}
`), "test.hcl")
	require.NoError(t, err)

	enum, err := cfg.NewEnumerator(nil)
	require.NoError(t, err)
	require.NotNil(t, enum.Cache())

	opps, err := cfg.NewOpponents(enum)
	require.NoError(t, err)
	assert.Equal(t, 4, opps.Len())

	est, err := cfg.NewEstimator(enum, nil)
	require.NoError(t, err)
	require.NotNil(t, est)
}

func TestStoreDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg := Default()
	assert.Equal(t, "postgres://env/db", cfg.StoreDSN())

	cfg.Store.DSN = "postgres://file/db"
	assert.Equal(t, "postgres://file/db", cfg.StoreDSN())
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "seat", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "seat=2")
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join("..", "..", "chinesepoker.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
