package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/joho/godotenv"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/config"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/fileutil"
	"github.com/lox/chinesepoker/internal/gameid"
	"github.com/lox/chinesepoker/internal/report"
	"github.com/lox/chinesepoker/internal/simulator"
	"github.com/lox/chinesepoker/internal/store"
	"github.com/lox/chinesepoker/poker"
)

type CLI struct {
	Hands    []string `arg:"" optional:"" help:"Hands to solve, one quoted 13-card hand per player. Dealt when omitted"`
	Config   string   `short:"c" default:"chinesepoker.hcl" help:"HCL configuration file"`
	LogLevel string   `help:"Override the configured log level"`
	Players  int      `short:"p" default:"4" help:"Players to deal when no hands are given (2-4)"`
	Seed     *int64   `help:"Random seed for reproducible results"`
	Games    int      `short:"g" help:"Simulate this many dealt games instead of solving one"`
	Workers  int      `short:"w" help:"Parallel games when simulating (0 for GOMAXPROCS)"`
	Save     bool     `help:"Persist solved games to the store (store.dsn or DATABASE_URL)"`
	JSON     bool     `help:"Print JSON records instead of tables"`
	Output   string   `short:"o" type:"path" help:"Also write the game records to this JSON file"`
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	statusStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	winStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("equilibrium"),
		kong.Description("Search for a pure equilibrium of Chinese poker arrangements"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(cli.Run(ctx, os.Stdout))
}

func (c *CLI) Run(ctx context.Context, w io.Writer) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if c.Workers > 0 {
		cfg.Estimator.Workers = c.Workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	seed := time.Now().UnixNano()
	if c.Seed != nil {
		seed = *c.Seed
	}

	var db *store.DB
	if c.Save {
		dsn := cfg.StoreDSN()
		if dsn == "" {
			return errors.New("--save needs store.dsn or DATABASE_URL")
		}
		if db, err = store.Open(ctx, dsn); err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
	}

	enum, err := cfg.NewEnumerator(logger)
	if err != nil {
		return err
	}
	solve, err := cfg.SolveConfig()
	if err != nil {
		return err
	}

	var games []report.GameRecord
	if c.Games > 0 {
		if len(c.Hands) > 0 {
			return errors.New("hands cannot be combined with --games")
		}
		games, err = c.simulate(ctx, w, cfg, enum, solve, seed, logger)
	} else {
		games, err = c.solveOne(ctx, w, cfg, enum, solve, seed, logger)
	}
	if err != nil {
		return err
	}

	if c.Output != "" {
		if err := fileutil.WriteJSON(c.Output, games); err != nil {
			return err
		}
		logger.Info("Wrote games", "file", c.Output, "count", len(games))
	}
	if db != nil {
		for _, g := range games {
			if err := db.SaveGame(ctx, g); err != nil {
				return fmt.Errorf("saving game %s: %w", g.ID, err)
			}
		}
		logger.Info("Saved games", "count", len(games))
	}
	return nil
}

func (c *CLI) solveOne(ctx context.Context, w io.Writer, cfg *config.Config, enum *arrange.Enumerator, solve estimator.SolveConfig, seed int64, logger *log.Logger) ([]report.GameRecord, error) {
	hands, err := c.deal(seed)
	if err != nil {
		return nil, err
	}

	game, err := estimator.NewGame(ctx, hands, estimator.GameConfig{
		Rules:          cfg.Scoring,
		Enumerator:     enum,
		PruneDominated: cfg.Estimator.PruneDominated,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	for i := range game.Players() {
		logger.Debug("Candidates", "seat", i, "count", len(game.Candidates(i)))
	}

	solve.Seed = seed
	res, err := game.Solve(ctx, solve, func(state estimator.EquilibriumState) {
		logger.Debug("Iteration", "n", state.Iteration, "payoffs", state.Payoffs)
	})
	if err != nil {
		return nil, err
	}
	if res.Status == estimator.Canceled {
		return nil, ctx.Err()
	}

	rec := report.NewGameRecord(gameid.Generate(), seed, game, res, cfg.Scoring, time.Now())
	if c.JSON {
		return []report.GameRecord{rec}, writeJSON(w, rec)
	}
	renderGame(w, rec)
	return []report.GameRecord{rec}, nil
}

func (c *CLI) simulate(ctx context.Context, w io.Writer, cfg *config.Config, enum *arrange.Enumerator, solve estimator.SolveConfig, seed int64, logger *log.Logger) ([]report.GameRecord, error) {
	step := max(c.Games/10, 1)
	sim, err := simulator.New(simulator.Config{
		Games:          c.Games,
		Players:        c.Players,
		Seed:           seed,
		Workers:        cfg.Estimator.Workers,
		Rules:          cfg.Scoring,
		Solve:          solve,
		PruneDominated: cfg.Estimator.PruneDominated,
		Enumerator:     enum,
		Clock:          quartz.NewReal(),
		Logger:         logger,
		OnGame: func(done, total int) {
			if done%step == 0 || done == total {
				logger.Info("Progress", "games", done, "total", total)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Simulating", "games", c.Games, "players", c.Players, "seed", seed)

	res, err := sim.Run(ctx)
	if err != nil {
		return nil, err
	}
	if c.JSON {
		return res.Games, writeJSON(w, res.Games)
	}
	simulator.PrintSummary(w, res)
	return res.Games, nil
}

// deal parses the given hands, or deals Players hands from seed.
func (c *CLI) deal(seed int64) ([][]poker.Card, error) {
	if len(c.Hands) == 0 {
		if c.Players < estimator.MinPlayers || c.Players > estimator.MaxPlayers {
			return nil, fmt.Errorf("players must be %d-%d, got %d", estimator.MinPlayers, estimator.MaxPlayers, c.Players)
		}
		deck := poker.NewDeck()
		deck.Shuffle(seed)
		return deck.DealHands(c.Players, arrange.HandSize)
	}
	return parseHands(c.Hands)
}

func parseHands(hands []string) ([][]poker.Card, error) {
	out := make([][]poker.Card, len(hands))
	for i, h := range hands {
		cards, err := poker.ParseHand(h, arrange.HandSize)
		if err != nil {
			return nil, fmt.Errorf("hand %d: %w", i+1, err)
		}
		out[i] = cards
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderGame(w io.Writer, rec report.GameRecord) {
	fmt.Fprintf(w, "%s %s after %d iterations (%dms), seed %d\n\n",
		headerStyle.Render("Status:"), statusStyle.Render(rec.Status), rec.Iterations, rec.ElapsedMS, rec.Seed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEAT\tFRONT\tMIDDLE\tBACK\tCANDIDATES\tPAYOFF\tSCORE")
	for i, p := range rec.Players {
		a := p.Arrangement
		score := rec.Round.Totals[i]
		style := winStyle
		if score < 0 {
			style = lossStyle
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%+.2f\t%s\n",
			p.Seat,
			strings.Join(a.Front, " "),
			strings.Join(a.Middle, " "),
			strings.Join(a.Back, " "),
			p.Candidates,
			p.Payoff,
			style.Render(fmt.Sprintf("%+d", score)))
	}
	_ = tw.Flush()

	if rec.Cycle != nil {
		fmt.Fprintf(w, "\n%s length %d from iteration %d, %d distinct profiles\n",
			headerStyle.Render("Cycle:"), rec.Cycle.Length, rec.Cycle.Start, rec.Cycle.Profiles)
		for i, p := range rec.Cycle.Players {
			fmt.Fprintf(w, "  seat %d: mean %+.2f range [%+.2f, %+.2f] variance %.2f\n", i, p.Mean, p.Min, p.Max, p.Variance)
		}
	}
	fmt.Fprintf(w, "\n%s %d entries, %d hits, %d misses\n",
		headerStyle.Render("Payoff cache:"), rec.Cache.Entries, rec.Cache.Hits, rec.Cache.Misses)
}
