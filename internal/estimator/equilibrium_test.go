package estimator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/poker"
)

func deal(t *testing.T, seed int64, players int) [][]poker.Card {
	t.Helper()
	deck := poker.NewDeck()
	deck.Shuffle(seed)
	hands, err := deck.DealHands(players, 13)
	require.NoError(t, err)
	return hands
}

func newGame(t *testing.T, hands [][]poker.Card) *Game {
	t.Helper()
	g, err := NewGame(context.Background(), hands, GameConfig{Rules: scoring.DefaultRules(), PruneDominated: true})
	require.NoError(t, err)
	return g
}

// slowGame finds a deal whose search does not converge on its first
// iteration, so that budgets and caps have something to interrupt.
func slowGame(t *testing.T) (*Game, SolveConfig) {
	t.Helper()
	for seed := int64(0); seed < 50; seed++ {
		cfg := DefaultSolveConfig()
		cfg.Seed = seed
		g := newGame(t, deal(t, seed, 2))
		res, err := g.Solve(context.Background(), cfg, nil)
		require.NoError(t, err)
		if res.Iterations > 1 {
			return newGame(t, deal(t, seed, 2)), cfg
		}
	}
	t.Fatal("no deal needed more than one iteration")
	return nil, SolveConfig{}
}

func TestNewGameValidation(t *testing.T) {
	t.Parallel()
	hands := deal(t, 1, 4)

	_, err := NewGame(context.Background(), hands[:1], GameConfig{Rules: scoring.DefaultRules()})
	assert.Error(t, err)

	clash := [][]poker.Card{hands[0], hands[0]}
	_, err = NewGame(context.Background(), clash, GameConfig{Rules: scoring.DefaultRules()})
	assert.True(t, errors.Is(err, poker.ErrDuplicateCard))

	_, err = NewGame(context.Background(), [][]poker.Card{hands[0], hands[1][:12]}, GameConfig{Rules: scoring.DefaultRules()})
	assert.True(t, errors.Is(err, poker.ErrInvalidHandSize))

	bad := scoring.DefaultRules()
	bad.Sweep = -1
	_, err = NewGame(context.Background(), hands[:2], GameConfig{Rules: bad})
	assert.Error(t, err)
}

func TestSolveReachesStableProfile(t *testing.T) {
	t.Parallel()
	for _, players := range []int{2, 3} {
		g := newGame(t, deal(t, int64(players), players))
		var states []EquilibriumState
		res, err := g.Solve(context.Background(), DefaultSolveConfig(), func(s EquilibriumState) {
			states = append(states, s)
		})
		require.NoError(t, err)
		require.Contains(t, []Status{Converged, CycleDetected, IterationCap}, res.Status)
		require.Len(t, res.Arrangements, players)

		sum := 0.0
		for _, p := range res.Payoffs {
			sum += p
		}
		assert.InDelta(t, 0, sum, 1e-9, "payoffs must be zero-sum")

		if res.Status == Converged {
			// The last seat to move is always playing a best response.
			var profile Profile
			copy(profile[:], res.Choices)
			last := players - 1
			_, best := g.BestResponse(last, profile)
			assert.InDelta(t, res.Payoffs[last], best, 1e-9)
		}

		require.Len(t, states, res.Iterations)
		for _, s := range states {
			for _, freq := range s.Frequencies {
				total := 0.0
				for _, f := range freq {
					total += f
				}
				assert.InDelta(t, 1, total, 1e-9)
			}
		}

		stats := g.CacheStats()
		assert.Positive(t, stats.Entries)
		assert.Positive(t, stats.Hits)
	}
}

func TestSolveDeterministicPerSeed(t *testing.T) {
	t.Parallel()
	hands := deal(t, 9, 3)
	cfg := DefaultSolveConfig()
	cfg.Seed = 3

	a, err := newGame(t, hands).Solve(context.Background(), cfg, nil)
	require.NoError(t, err)
	b, err := newGame(t, hands).Solve(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.Choices, b.Choices)
	assert.Equal(t, a.Payoffs, b.Payoffs)
}

func TestSolveTimeBudget(t *testing.T) {
	t.Parallel()
	g, cfg := slowGame(t)
	clock := quartz.NewMock(t)
	cfg.Clock = clock
	cfg.TimeBudget = time.Second

	ctx := context.Background()
	res, err := g.Solve(ctx, cfg, func(EquilibriumState) {
		clock.Advance(time.Second).MustWait(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, TimeBudget, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, time.Second, res.Elapsed)
}

func TestSolveIterationCap(t *testing.T) {
	t.Parallel()
	g, cfg := slowGame(t)
	cfg.MaxIterations = 1

	res, err := g.Solve(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, IterationCap, res.Status)
	assert.Equal(t, 1, res.Iterations)
}

func TestSolveCanceled(t *testing.T) {
	t.Parallel()
	g := newGame(t, deal(t, 5, 2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := g.Solve(ctx, DefaultSolveConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, Canceled, res.Status)
	assert.Zero(t, res.Iterations)
	assert.Len(t, res.Choices, 2)
}

func TestSolveConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultSolveConfig().Validate())

	cfg := DefaultSolveConfig()
	cfg.MaxIterations = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultSolveConfig()
	cfg.Tolerance = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultSolveConfig()
	cfg.TimeBudget = -time.Second
	assert.Error(t, cfg.Validate())

	_, err := newGame(t, deal(t, 5, 2)).Solve(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func hist(profiles []int, payoffs [][2]float64) []step {
	out := make([]step, len(profiles))
	for i, p := range profiles {
		out[i] = step{profile: Profile{p}, payoffs: Payoffs{payoffs[i][0], payoffs[i][1]}}
	}
	return out
}

func TestDetectCycleExactRepeat(t *testing.T) {
	t.Parallel()
	h := hist(
		[]int{1, 2, 3, 2, 3},
		[][2]float64{{0, 0}, {5, -5}, {-3, 3}, {5, -5}, {-3, 3}},
	)
	start, length, ok := detectCycle(h, 2, 0)
	require.True(t, ok)
	assert.Equal(t, 3, start)
	assert.Equal(t, 2, length)

	_, _, ok = detectCycle(h[:4], 2, 0)
	assert.False(t, ok)
}

func TestDetectCycleOscillation(t *testing.T) {
	t.Parallel()
	h := hist(
		[]int{1, 2, 3, 4, 5, 6},
		[][2]float64{{4, -4}, {-2, 2}, {5, -5}, {-1, 1}, {4, -4}, {-2, 2}},
	)
	_, length, ok := detectCycle(h, 2, 2.0)
	require.True(t, ok)
	assert.Equal(t, 2, length)

	_, _, ok = detectCycle(h, 2, 0.5)
	assert.False(t, ok)
}

func TestAnalyzeAndPickCycle(t *testing.T) {
	t.Parallel()
	cycle := hist(
		[]int{7, 8, 7},
		[][2]float64{{6, -6}, {1, -1}, {6, -6}},
	)
	stats := analyzeCycle(cycle, 2)
	assert.Equal(t, 3, stats.Length)
	assert.Equal(t, 2, stats.Profiles)
	assert.InDelta(t, 13.0/3, stats.Players[0].Mean, 1e-12)
	assert.Equal(t, 1.0, stats.Players[0].Min)
	assert.Equal(t, 6.0, stats.Players[0].Max)
	assert.InDelta(t, 50.0/9, stats.Players[0].Variance, 1e-12)
	assert.Equal(t, -13.0, stats.Players[1].Total)

	// Smaller spread wins: profile 8 scores 0.4*0 + 0.4*-1 - 0.2*1.
	best := bestInCycle(cycle, 2)
	assert.Equal(t, 8, best.profile[0])
}

func TestPopulationVariance(t *testing.T) {
	t.Parallel()
	assert.Zero(t, populationVariance(nil))
	assert.InDelta(t, 4, populationVariance([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	assert.False(t, math.IsNaN(populationVariance([]float64{1})))
}

func TestStatusString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "converged", Converged.String())
	assert.Equal(t, "time-budget", TimeBudget.String())
	text, err := CycleDetected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "cycle-detected", string(text))
}

func TestEquilibriumStateClone(t *testing.T) {
	t.Parallel()
	s := EquilibriumState{
		Iteration:   2,
		Choices:     []int{1, 2},
		Frequencies: []map[string]float64{{"a": 1}},
	}
	c := s.Clone()
	c.Choices[0] = 9
	c.Frequencies[0]["a"] = 0
	assert.Equal(t, 1, s.Choices[0])
	assert.Equal(t, 1.0, s.Frequencies[0]["a"])
}
