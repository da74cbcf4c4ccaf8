package estimator

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/poker"
)

const heroHand = "2C 3C AS 10D 9H 8S 7D 6C 5H 4S 3D 2H KH"

func newEstimator(t *testing.T, workers int, prune bool) *Estimator {
	t.Helper()
	e, err := New(Config{Rules: scoring.DefaultRules(), Workers: workers, Seed: 42, PruneDominated: prune})
	require.NoError(t, err)
	return e
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyMaxProduct, p.Name())

	p, err = ParsePolicy(PolicyStrongestBack)
	require.NoError(t, err)
	assert.Equal(t, PolicyStrongestBack, p.Name())

	_, err = ParsePolicy("random")
	assert.Error(t, err)
}

func TestPolicies(t *testing.T) {
	t.Parallel()
	e, err := arrange.NewEnumerator(arrange.Config{})
	require.NoError(t, err)
	arrs, err := e.Enumerate(poker.MustParseCards(heroHand))
	require.NoError(t, err)

	assert.Equal(t, -1, MaxProductPolicy{}.Choose(nil))
	assert.Equal(t, -1, StrongestBackPolicy{}.Choose(nil))

	back := StrongestBackPolicy{}.Choose(arrs)
	require.GreaterOrEqual(t, back, 0)
	for _, a := range arrs {
		assert.LessOrEqual(t, a.Rank(arrange.Back), arrs[back].Rank(arrange.Back))
	}

	prod := MaxProductPolicy{}.Choose(arrs)
	require.GreaterOrEqual(t, prod, 0)
	best := productScore(arrs[prod])
	assert.Greater(t, best, 0.0)
	for _, a := range arrs {
		assert.LessOrEqual(t, productScore(a), best)
	}
}

func TestExpectedValuesFixedOpponents(t *testing.T) {
	t.Parallel()
	rules := scoring.DefaultRules()
	opp1, err := arrange.Parse("QC QD 4C", "JC JD JH 5C 5D", "AC AD AH 9C 9D", nil)
	require.NoError(t, err)
	opp2, err := arrange.Parse("TC TH 4D", "KC KD 6D 6H 7C", "QH QS QC 8C 8D", nil)
	require.NoError(t, err)

	fixed, err := NewFixedOpponents(
		Scenario{Opponents: []arrange.Arrangement{opp1}, Weight: 3},
		Scenario{Opponents: []arrange.Arrangement{opp2}, Weight: 1},
	)
	require.NoError(t, err)

	cands, err := newEstimator(t, 2, false).ExpectedValues(context.Background(), poker.MustParseCards(heroHand), fixed)
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	for i, c := range cands {
		r1 := rules.Settle([]arrange.Arrangement{c.Arrangement, opp1})
		r2 := rules.Settle([]arrange.Arrangement{c.Arrangement, opp2})
		want := (3*float64(r1.Totals[0]) + float64(r2.Totals[0])) / 4
		require.InDelta(t, want, c.Mean, 1e-9, "candidate %s", c.ID())
		require.Equal(t, 2, c.Samples)

		b := c.Breakdown
		sum := b.Sweep + b.Scoop + b.Overall
		for _, l := range b.Lines {
			sum += l.Basic + l.Bonus
			require.InDelta(t, 1, l.WinRate+l.TieRate+l.LossRate, 1e-9)
		}
		require.InDelta(t, c.Mean, sum, 1e-9, "breakdown of %s", c.ID())
		require.Equal(t, c.Mean, b.Total)

		if i > 0 {
			prev := cands[i-1]
			require.True(t, prev.Mean > c.Mean || (prev.Mean == c.Mean && prev.ID() < c.ID()), "order at %d", i)
		}
	}

	best, ok := Best(cands)
	require.True(t, ok)
	assert.Equal(t, cands[0].ID(), best.ID())
}

func TestExpectedValuesDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()
	hand := poker.MustParseCards(heroHand)

	run := func(workers int) []Candidate {
		e := newEstimator(t, workers, true)
		opps, err := NewRandomOpponents(2, 24, StrongestBackPolicy{}, nil)
		require.NoError(t, err)
		cands, err := e.ExpectedValues(context.Background(), hand, opps)
		require.NoError(t, err)
		return cands
	}

	one, four := run(1), run(4)
	require.Equal(t, len(one), len(four))
	for i := range one {
		assert.Equal(t, one[i].ID(), four[i].ID())
		assert.Equal(t, one[i].Mean, four[i].Mean)
		assert.Equal(t, one[i].StdErr, four[i].StdErr)
		assert.Equal(t, 24, one[i].Samples)
	}
	assert.Greater(t, one[0].StdErr, 0.0)
}

func TestRandomOpponentsAvoidHeroCards(t *testing.T) {
	t.Parallel()
	hero := poker.NewHand(poker.MustParseCards(heroHand)...)
	opps, err := NewRandomOpponents(3, 5, MaxProductPolicy{}, nil)
	require.NoError(t, err)

	for i := range 5 {
		s, err := opps.Scenario(i, hero, 7)
		require.NoError(t, err)
		require.Len(t, s.Opponents, 3)
		seen := hero
		for _, o := range s.Opponents {
			require.False(t, o.Fouled)
			require.Zero(t, seen&o.Hand(), "opponent shares cards")
			seen |= o.Hand()
		}

		again, err := opps.Scenario(i, hero, 7)
		require.NoError(t, err)
		assert.Equal(t, s, again, "sample %d must be reproducible", i)
	}
}

func TestOpponentValidation(t *testing.T) {
	t.Parallel()
	_, err := NewRandomOpponents(0, 10, nil, nil)
	assert.Error(t, err)
	_, err = NewRandomOpponents(4, 10, nil, nil)
	assert.Error(t, err)
	_, err = NewRandomOpponents(1, 0, nil, nil)
	assert.Error(t, err)

	_, err = NewFixedOpponents()
	assert.Error(t, err)

	a, err := arrange.Parse("QC QD 4C", "JC JD JH 5C 5D", "AC AD AH 9C 9D", nil)
	require.NoError(t, err)
	_, err = NewFixedOpponents(Scenario{Opponents: []arrange.Arrangement{a}, Weight: 0})
	assert.Error(t, err)
	_, err = NewFixedOpponents(
		Scenario{Opponents: []arrange.Arrangement{a}, Weight: 1},
		Scenario{Opponents: []arrange.Arrangement{a, a}, Weight: 1},
	)
	assert.Error(t, err)

	_, err = NewFixedOpponents(Scenario{Opponents: []arrange.Arrangement{a, a}, Weight: 1})
	assert.True(t, errors.Is(err, poker.ErrDuplicateCard), "got %v", err)

	// The opponent holds the hero's ace of spades.
	clash, err := arrange.Parse("QC QD 4C", "JC JD JH 5C 5D", "AS AD AH 9C 9D", nil)
	require.NoError(t, err)
	fixed, err := NewFixedOpponents(Scenario{Opponents: []arrange.Arrangement{clash}, Weight: 1})
	require.NoError(t, err)
	_, err = newEstimator(t, 1, false).ExpectedValues(context.Background(), poker.MustParseCards(heroHand), fixed)
	assert.True(t, errors.Is(err, poker.ErrDuplicateCard))
}

func TestExpectedValuesCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opps, err := NewRandomOpponents(1, 8, nil, nil)
	require.NoError(t, err)
	_, err = newEstimator(t, 2, true).ExpectedValues(ctx, poker.MustParseCards(heroHand), opps)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpectedValuesBadHand(t *testing.T) {
	t.Parallel()
	opps, err := NewRandomOpponents(1, 8, nil, nil)
	require.NoError(t, err)
	_, err = newEstimator(t, 2, true).ExpectedValues(context.Background(), poker.MustParseCards("AS KS"), opps)
	assert.True(t, errors.Is(err, poker.ErrInvalidHandSize))
}

func TestBestEmpty(t *testing.T) {
	t.Parallel()
	_, ok := Best(nil)
	assert.False(t, ok)

	a := Candidate{Mean: 1, Arrangement: arrange.Arrangement{Ranks: [3]poker.HandRank{1, 2, 3}}}
	b := Candidate{Mean: 2}
	best, ok := Best([]Candidate{a, b})
	require.True(t, ok)
	assert.Equal(t, 2.0, best.Mean)
}

func TestAccumulatorStdErr(t *testing.T) {
	t.Parallel()
	var acc accumulator
	for _, v := range []int{2, 4, 4, 4, 5, 5, 7, 9} {
		acc.add(1, scoring.RoundResult{Totals: []int{v}, Scoop: []int{0}, Overall: []int{0}})
	}
	c := acc.candidate(arrange.Arrangement{})
	assert.InDelta(t, 5, c.Mean, 1e-12)
	// Sample variance is 32/7.
	assert.InDelta(t, math.Sqrt(32.0/7/8), c.StdErr, 1e-12)
}
