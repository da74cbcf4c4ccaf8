package simulator

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/gameid"
	"github.com/lox/chinesepoker/internal/randutil"
	"github.com/lox/chinesepoker/internal/report"
	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/internal/statistics"
	"github.com/lox/chinesepoker/poker"
)

// Config holds configuration for running simulations
type Config struct {
	Games          int
	Players        int
	Seed           int64
	Workers        int
	Rules          scoring.Rules
	Solve          estimator.SolveConfig
	PruneDominated bool
	Enumerator     *arrange.Enumerator
	Clock          quartz.Clock
	Logger         *log.Logger

	// OnGame, when set, is called after each game finishes, always from the
	// same goroutine.
	OnGame func(done, total int)
}

// Simulator deals and solves a series of games
type Simulator struct {
	config Config
	ids    *gameid.Generator
	logger *log.Logger
}

// New creates a new simulator with the given configuration
func New(config Config) (*Simulator, error) {
	if config.Games < 1 {
		return nil, fmt.Errorf("games must be positive, got %d", config.Games)
	}
	if config.Players == 0 {
		config.Players = estimator.MaxPlayers
	}
	if config.Players < estimator.MinPlayers || config.Players > estimator.MaxPlayers {
		return nil, fmt.Errorf("players must be %d-%d, got %d", estimator.MinPlayers, estimator.MaxPlayers, config.Players)
	}
	if err := config.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if err := config.Solve.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solve config: %w", err)
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard)
	}
	if config.Enumerator == nil {
		e, err := arrange.NewEnumerator(arrange.Config{Logger: config.Logger})
		if err != nil {
			return nil, err
		}
		config.Enumerator = e
	}
	return &Simulator{
		config: config,
		ids:    gameid.NewGenerator(config.Clock, randutil.New(config.Seed)),
		logger: config.Logger.WithPrefix("simulator"),
	}, nil
}

// Result is the outcome of a simulation run
type Result struct {
	Stats    *statistics.Statistics
	Seats    []*statistics.Statistics
	Games    []report.GameRecord
	Statuses map[string]int
	Elapsed  time.Duration
}

type played struct {
	seed  int64
	game  *estimator.Game
	solve *estimator.Result
	round scoring.RoundResult
}

// Run deals every game, solves it and accumulates the per-seat results.
// Game i is dealt from randutil.Derive(Seed, i), so the outcome does not
// depend on the worker count.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	cfg := s.config
	start := cfg.Clock.Now()
	games := make([]played, cfg.Games)

	var done int
	progress := make(chan struct{}, cfg.Games)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for range progress {
			done++
			if cfg.OnGame != nil {
				cfg.OnGame(done, cfg.Games)
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range games {
		g.Go(func() error {
			p, err := s.play(ctx, randutil.Derive(cfg.Seed, i))
			if err != nil {
				return fmt.Errorf("game %d: %w", i, err)
			}
			games[i] = p
			progress <- struct{}{}
			return nil
		})
	}
	err := g.Wait()
	close(progress)
	<-finished
	if err != nil {
		return nil, err
	}

	res := &Result{
		Stats:    &statistics.Statistics{},
		Seats:    make([]*statistics.Statistics, cfg.Players),
		Games:    make([]report.GameRecord, len(games)),
		Statuses: make(map[string]int),
	}
	for i := range res.Seats {
		res.Seats[i] = &statistics.Statistics{}
	}
	for i, p := range games {
		for seat := range cfg.Players {
			r := statistics.FromRound(p.round, p.solve.Arrangements, seat, p.seed)
			res.Stats.Add(r)
			res.Seats[seat].Add(r)
		}
		res.Statuses[p.solve.Status.String()]++
		res.Games[i] = report.NewGameRecord(s.ids.Generate(), p.seed, p.game, p.solve, cfg.Rules, cfg.Clock.Now())
	}
	res.Elapsed = cfg.Clock.Since(start)

	if err := res.Stats.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}
	s.logger.Info("simulation finished", "games", cfg.Games, "players", cfg.Players, "elapsed", res.Elapsed)
	return res, nil
}

func (s *Simulator) play(ctx context.Context, seed int64) (played, error) {
	cfg := s.config
	deck := poker.NewDeck()
	deck.Shuffle(seed)
	hands, err := deck.DealHands(cfg.Players, arrange.HandSize)
	if err != nil {
		return played{}, err
	}

	game, err := estimator.NewGame(ctx, hands, estimator.GameConfig{
		Rules:          cfg.Rules,
		Enumerator:     cfg.Enumerator,
		PruneDominated: cfg.PruneDominated,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return played{}, err
	}

	solve := cfg.Solve
	solve.Seed = seed
	solve.Clock = cfg.Clock
	res, err := game.Solve(ctx, solve, nil)
	if err != nil {
		return played{}, err
	}
	if res.Status == estimator.Canceled {
		return played{}, ctx.Err()
	}
	s.logger.Debug("game solved", "seed", seed, "status", res.Status, "iterations", res.Iterations)

	return played{
		seed:  seed,
		game:  game,
		solve: res,
		round: cfg.Rules.Settle(res.Arrangements),
	}, nil
}

// PrintSummary writes a summary of simulation results
func PrintSummary(w io.Writer, res *Result) {
	stats := res.Stats
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== FINAL RESULTS (%d games, %d players) ===\n", stats.Games/len(res.Seats), len(res.Seats))
	fmt.Fprintf(w, "Elapsed: %s\n", res.Elapsed.Round(time.Millisecond))

	statuses := make([]string, 0, len(res.Statuses))
	for s := range res.Statuses {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %s: %d\n", s, res.Statuses[s])
	}

	fmt.Fprintf(w, "\n=== STATISTICAL RESULTS (per player-game) ===\n")
	fmt.Fprintf(w, "Mean: %.4f points\n", stats.Mean())
	fmt.Fprintf(w, "Median: %.4f points\n", stats.Median())
	fmt.Fprintf(w, "Std Dev: %.4f points\n", stats.StdDev())
	fmt.Fprintf(w, "95%% CI: [%.4f, %.4f]\n", low, high)
	fmt.Fprintf(w, "Percentiles: P5=%.1f, P25=%.1f, P75=%.1f, P95=%.1f\n",
		stats.Percentile(0.05), stats.Percentile(0.25), stats.Percentile(0.75), stats.Percentile(0.95))
	fmt.Fprintf(w, "Best: %+d, Worst: %+d\n", stats.BestScore, stats.WorstScore)

	fmt.Fprintf(w, "\n=== SCORE SOURCES ===\n")
	n := float64(stats.Games)
	fmt.Fprintf(w, "Lines: %.3f  Sweeps: %.3f  Scoops: %.3f  Overall: %.3f points/game\n",
		stats.LinePoints/n, stats.SweepPoints/n, stats.ScoopPoints/n, stats.OverallPoints/n)
	fmt.Fprintf(w, "Scoops: %d  Sweeps: %d  Fouls: %d (%.1f%%)\n",
		stats.Scoops, stats.Sweeps, stats.Fouls, stats.FoulRate()*100)

	fmt.Fprintf(w, "\n=== SEAT ANALYSIS ===\n")
	for seat, ss := range res.Seats {
		fmt.Fprintf(w, "Seat %d: %d games, %.3f points/game, stderr %.3f\n", seat, ss.Games, ss.Mean(), ss.StdError())
	}
}
