package estimator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/randutil"
	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/poker"
)

// Status describes how an equilibrium search ended.
type Status int

const (
	Converged Status = iota
	CycleDetected
	IterationCap
	TimeBudget
	Canceled
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case CycleDetected:
		return "cycle-detected"
	case IterationCap:
		return "iteration-cap"
	case TimeBudget:
		return "time-budget"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// cycleTolerance bounds payoff drift in an exact repeat.
const cycleTolerance = 1e-6

// SolveConfig controls the best-response search.
type SolveConfig struct {
	MaxIterations        int
	Tolerance            float64
	OscillationTolerance float64
	// TimeBudget of zero means no budget.
	TimeBudget time.Duration
	Seed       int64
	Clock      quartz.Clock
}

// DefaultSolveConfig returns the standard search settings.
func DefaultSolveConfig() SolveConfig {
	return SolveConfig{
		MaxIterations:        100,
		Tolerance:            1e-6,
		OscillationTolerance: 2.0,
	}
}

// Validate checks the search settings.
func (c SolveConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.Tolerance < 0 || c.OscillationTolerance < 0 {
		return errors.New("tolerances must be non-negative")
	}
	if c.TimeBudget < 0 {
		return fmt.Errorf("time budget must be non-negative, got %s", c.TimeBudget)
	}
	return nil
}

// Profile holds one candidate index per seat. Unused seats stay zero.
type Profile [MaxPlayers]int

// Payoffs holds one payoff per seat.
type Payoffs [MaxPlayers]float64

// EquilibriumState is a snapshot of the search after an iteration. It is
// never mutated after being handed out.
type EquilibriumState struct {
	Iteration   int                  `json:"iteration"`
	Choices     []int                `json:"choices"`
	IDs         []string             `json:"ids"`
	Payoffs     []float64            `json:"payoffs"`
	Frequencies []map[string]float64 `json:"frequencies"`
}

// PlayerCycleStats summarises one seat's payoffs over a cycle.
type PlayerCycleStats struct {
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	Total    float64 `json:"total"`
}

// CycleStats describes a detected cycle.
type CycleStats struct {
	Start    int                `json:"start"`
	Length   int                `json:"length"`
	Profiles int                `json:"profiles"`
	Players  []PlayerCycleStats `json:"players"`
}

// CacheStats reports payoff cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Result is the outcome of Solve.
type Result struct {
	Status       Status
	Iterations   int
	Choices      []int
	Arrangements []arrange.Arrangement
	Payoffs      []float64
	Cycle        *CycleStats
	State        EquilibriumState
	Cache        CacheStats
	Elapsed      time.Duration
}

// GameConfig holds the settings shared by every Solve on a game.
type GameConfig struct {
	Rules          scoring.Rules
	Enumerator     *arrange.Enumerator
	PruneDominated bool
	Logger         *log.Logger
}

// Game is a deal of 2-4 hands with each seat's candidate arrangements. It
// caches payoffs per profile and is not safe for concurrent Solve calls.
type Game struct {
	rules      scoring.Rules
	hands      [][]poker.Card
	candidates [][]arrange.Arrangement
	logger     *log.Logger

	cache  map[Profile]Payoffs
	hits   uint64
	misses uint64
	seats  []arrange.Arrangement
}

// NewGame enumerates every seat's arrangements. Hands must be disjoint.
func NewGame(ctx context.Context, hands [][]poker.Card, config GameConfig) (*Game, error) {
	if len(hands) < MinPlayers || len(hands) > MaxPlayers {
		return nil, fmt.Errorf("a game needs %d-%d players, got %d", MinPlayers, MaxPlayers, len(hands))
	}
	if err := config.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	var seen poker.Hand
	for i, hand := range hands {
		h, err := poker.HandFromCards(hand)
		if err != nil {
			return nil, fmt.Errorf("player %d: %w", i, err)
		}
		if seen&h != 0 {
			return nil, fmt.Errorf("%w: player %d shares cards with an earlier player", poker.ErrDuplicateCard, i)
		}
		seen |= h
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	enumerator := config.Enumerator
	if enumerator == nil {
		var err error
		if enumerator, err = arrange.NewEnumerator(arrange.Config{Logger: logger}); err != nil {
			return nil, err
		}
	}
	candidates, err := enumerator.EnumerateAll(ctx, hands)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if config.PruneDominated {
			candidates[i] = arrange.Dominant(candidates[i])
		}
		if len(candidates[i]) == 0 {
			return nil, fmt.Errorf("player %d has no valid arrangement", i)
		}
	}

	return &Game{
		rules:      config.Rules,
		hands:      hands,
		candidates: candidates,
		logger:     logger.WithPrefix("equilibrium"),
		cache:      make(map[Profile]Payoffs),
		seats:      make([]arrange.Arrangement, len(hands)),
	}, nil
}

// Players returns the number of seats.
func (g *Game) Players() int {
	return len(g.hands)
}

// Hand returns seat i's cards.
func (g *Game) Hand(i int) []poker.Card {
	return g.hands[i]
}

// Candidates returns seat i's candidate arrangements.
func (g *Game) Candidates(i int) []arrange.Arrangement {
	return g.candidates[i]
}

// CacheStats returns the payoff cache counters.
func (g *Game) CacheStats() CacheStats {
	return CacheStats{Entries: len(g.cache), Hits: g.hits, Misses: g.misses}
}

// Payoffs settles a profile, consulting the cache first.
func (g *Game) Payoffs(p Profile) Payoffs {
	if v, ok := g.cache[p]; ok {
		g.hits++
		return v
	}
	g.misses++
	for i := range g.seats {
		g.seats[i] = g.candidates[i][p[i]]
	}
	res := g.rules.Settle(g.seats)
	var out Payoffs
	for i, t := range res.Totals {
		out[i] = float64(t)
	}
	g.cache[p] = out
	return out
}

// BestResponse returns seat i's best candidate against the rest of p and
// its payoff. The first maximum wins.
func (g *Game) BestResponse(i int, p Profile) (int, float64) {
	best, bestPayoff := p[i], math.Inf(-1)
	for c := range g.candidates[i] {
		p[i] = c
		if v := g.Payoffs(p)[i]; v > bestPayoff {
			best, bestPayoff = c, v
		}
	}
	return best, bestPayoff
}

type step struct {
	profile Profile
	payoffs Payoffs
}

// Solve runs best-response dynamics from a random profile. progress, when
// non-nil, receives a snapshot after every iteration.
func (g *Game) Solve(ctx context.Context, cfg SolveConfig, progress func(EquilibriumState)) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	start := clock.Now()
	n := g.Players()

	rng := randutil.New(cfg.Seed)
	var profile Profile
	for i := range n {
		profile[i] = rng.IntN(len(g.candidates[i]))
	}

	counts := make([]map[int]int, n)
	for i := range counts {
		counts[i] = make(map[int]int)
	}
	var history []step
	res := &Result{Status: IterationCap}

	finish := func(status Status, p Profile, payoffs Payoffs) (*Result, error) {
		res.Status = status
		res.Choices = make([]int, n)
		res.Arrangements = make([]arrange.Arrangement, n)
		res.Payoffs = make([]float64, n)
		for i := range n {
			res.Choices[i] = p[i]
			res.Arrangements[i] = g.candidates[i][p[i]]
			res.Payoffs[i] = payoffs[i]
		}
		res.State = g.snapshot(res.Iterations, p, payoffs, counts)
		res.Cache = g.CacheStats()
		res.Elapsed = clock.Since(start)
		g.logger.Debug("solve finished", "status", status, "iterations", res.Iterations, "elapsed", res.Elapsed)
		return res, nil
	}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		current := g.Payoffs(profile)
		if ctx.Err() != nil {
			return finish(Canceled, profile, current)
		}
		if cfg.TimeBudget > 0 && clock.Since(start) >= cfg.TimeBudget {
			return finish(TimeBudget, profile, current)
		}

		history = append(history, step{profile: profile, payoffs: current})
		if from, length, ok := detectCycle(history, n, cfg.OscillationTolerance); ok {
			cycle := history[from : from+length]
			stats := analyzeCycle(cycle, n)
			stats.Start = from
			res.Cycle = &stats
			best := bestInCycle(cycle, n)
			return finish(CycleDetected, best.profile, best.payoffs)
		}

		for i := range n {
			profile[i], _ = g.BestResponse(i, profile)
			counts[i][profile[i]]++
		}
		next := g.Payoffs(profile)
		res.Iterations = iter + 1

		if progress != nil {
			progress(g.snapshot(res.Iterations, profile, next, counts))
		}

		improved := false
		for i := range n {
			if next[i] > current[i]+cfg.Tolerance {
				improved = true
			}
		}
		if !improved {
			return finish(Converged, profile, next)
		}
	}
	return finish(IterationCap, profile, g.Payoffs(profile))
}

func (g *Game) snapshot(iter int, p Profile, payoffs Payoffs, counts []map[int]int) EquilibriumState {
	n := g.Players()
	s := EquilibriumState{
		Iteration:   iter,
		Choices:     make([]int, n),
		IDs:         make([]string, n),
		Payoffs:     make([]float64, n),
		Frequencies: make([]map[string]float64, n),
	}
	for i := range n {
		s.Choices[i] = p[i]
		s.IDs[i] = g.candidates[i][p[i]].ID()
		s.Payoffs[i] = payoffs[i]

		total := 0
		for _, c := range counts[i] {
			total += c
		}
		freq := make(map[string]float64, len(counts[i]))
		for idx, c := range counts[i] {
			freq[g.candidates[i][idx].ID()] = float64(c) / float64(total)
		}
		s.Frequencies[i] = freq
	}
	return s
}

// Clone returns a deep copy of the state.
func (s EquilibriumState) Clone() EquilibriumState {
	out := EquilibriumState{
		Iteration:   s.Iteration,
		Choices:     append([]int(nil), s.Choices...),
		IDs:         append([]string(nil), s.IDs...),
		Payoffs:     append([]float64(nil), s.Payoffs...),
		Frequencies: make([]map[string]float64, len(s.Frequencies)),
	}
	for i, f := range s.Frequencies {
		out.Frequencies[i] = maps.Clone(f)
	}
	return out
}
