package main

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chinesepoker/internal/config"
	"github.com/lox/chinesepoker/internal/estimator"
)

func TestServerConfigWithoutStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://unused")

	cfg := config.Default()
	cfg.Estimator.Policy = estimator.PolicyStrongestBack
	cli := CLI{NoStore: true}

	srvCfg, closeStore, err := cli.serverConfig(context.Background(), cfg, log.New(io.Discard))
	require.NoError(t, err)
	defer closeStore()

	assert.Nil(t, srvCfg.Store)
	assert.Equal(t, cfg.Scoring, srvCfg.Rules)
	assert.Equal(t, estimator.PolicyStrongestBack, srvCfg.Policy.Name())
	assert.Equal(t, cfg.Estimator.Samples, srvCfg.Samples)
	require.NotNil(t, srvCfg.Enumerator)
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cli := CLI{Config: t.TempDir() + "/missing.hcl", LogLevel: "loud"}
	assert.Error(t, cli.Run(context.Background()))
}
