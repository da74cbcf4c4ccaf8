package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/lox/chinesepoker/internal/config"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/server"
	"github.com/lox/chinesepoker/internal/store"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Config   string           `short:"c" default:"chinesepoker.hcl" help:"HCL configuration file"`
	Addr     string           `help:"Override the configured listen address"`
	LogLevel string           `help:"Override the configured log level"`
	NoStore  bool             `help:"Do not persist solved games even when a DSN is configured"`
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("cpoker-server"),
		kong.Description("HTTP and websocket API for Chinese poker arrangements and equilibria"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(cli.Run(ctx))
}

func (c *CLI) Run(ctx context.Context) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	srvCfg, closeStore, err := c.serverConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.Server.Address)
}

func (c *CLI) serverConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (server.Config, func(), error) {
	noop := func() {}

	enum, err := cfg.NewEnumerator(logger)
	if err != nil {
		return server.Config{}, noop, err
	}
	solve, err := cfg.SolveConfig()
	if err != nil {
		return server.Config{}, noop, err
	}
	policy, err := estimator.ParsePolicy(cfg.Estimator.Policy)
	if err != nil {
		return server.Config{}, noop, err
	}

	srvCfg := server.Config{
		Rules:          cfg.Scoring,
		Enumerator:     enum,
		Solve:          solve,
		PruneDominated: cfg.Estimator.PruneDominated,
		Samples:        cfg.Estimator.Samples,
		Opponents:      cfg.Estimator.Opponents,
		Policy:         policy,
		Workers:        cfg.Estimator.Workers,
		Logger:         logger,
	}

	dsn := cfg.StoreDSN()
	if c.NoStore || dsn == "" {
		logger.Info("Running without a result store")
		return srvCfg, noop, nil
	}
	db, err := store.Open(ctx, dsn)
	if err != nil {
		return server.Config{}, noop, fmt.Errorf("opening store: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return server.Config{}, noop, fmt.Errorf("connecting to store: %w", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return server.Config{}, noop, fmt.Errorf("migrating store: %w", err)
	}
	logger.Info("Persisting solved games to the store")
	srvCfg.Store = db
	return srvCfg, db.Close, nil
}
