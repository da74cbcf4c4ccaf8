package estimator

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/poker"
)

// Player count limits for a round.
const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Config holds estimator settings.
type Config struct {
	Rules          scoring.Rules
	Enumerator     *arrange.Enumerator
	Workers        int
	Seed           int64
	PruneDominated bool
	Logger         *log.Logger
}

// Estimator ranks a hand's arrangements by expected payoff.
type Estimator struct {
	rules      scoring.Rules
	enumerator *arrange.Enumerator
	workers    int
	seed       int64
	prune      bool
	logger     *log.Logger
}

// New creates an estimator.
func New(config Config) (*Estimator, error) {
	if err := config.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	e := &Estimator{
		rules:      config.Rules,
		enumerator: config.Enumerator,
		workers:    config.Workers,
		seed:       config.Seed,
		prune:      config.PruneDominated,
		logger:     config.Logger,
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	e.logger = e.logger.WithPrefix("estimator")
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	if e.enumerator == nil {
		var err error
		if e.enumerator, err = arrange.NewEnumerator(arrange.Config{Logger: config.Logger}); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Candidate is one arrangement with its estimated payoff.
type Candidate struct {
	Arrangement arrange.Arrangement
	Mean        float64
	StdErr      float64
	Samples     int
	Breakdown   Breakdown
}

// ID returns the arrangement identifier.
func (c Candidate) ID() string {
	return c.Arrangement.ID()
}

// LineBreakdown splits one line's contribution to the expected payoff.
// Basic is the expected line outcome and Bonus the expected category bonus
// delta, both summed over opponents.
type LineBreakdown struct {
	WinRate  float64
	TieRate  float64
	LossRate float64
	Basic    float64
	Bonus    float64
}

// Breakdown splits an expected payoff into its components. The components
// sum to Total.
type Breakdown struct {
	Lines   [3]LineBreakdown
	Sweep   float64
	Scoop   float64
	Overall float64
	Total   float64
}

// Candidates returns the arrangements the estimator considers for hand,
// after optional dominance pruning.
func (e *Estimator) Candidates(hand []poker.Card) ([]arrange.Arrangement, error) {
	arrs, err := e.enumerator.Enumerate(hand)
	if err != nil {
		return nil, err
	}
	if e.prune {
		pruned := arrange.Dominant(arrs)
		e.logger.Debug("pruned dominated arrangements", "before", len(arrs), "after", len(pruned))
		arrs = pruned
	}
	return arrs, nil
}

// ExpectedValues scores every candidate arrangement of hand against the
// opponent scenarios. The result is sorted by mean descending, ties broken
// by arrangement ID.
func (e *Estimator) ExpectedValues(ctx context.Context, hand []poker.Card, opponents Opponents) ([]Candidate, error) {
	cands, err := e.Candidates(hand)
	if err != nil {
		return nil, err
	}
	hero := poker.NewHand(hand...)
	n := opponents.Len()
	if n == 0 {
		return nil, fmt.Errorf("no opponent scenarios")
	}

	// Each worker owns a contiguous block of scenarios. Partials are merged
	// in worker order so the floating point sums never depend on scheduling.
	workers := min(e.workers, n)
	partials := make([][]accumulator, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo, hi := w*n/workers, (w+1)*n/workers
		g.Go(func() error {
			acc := make([]accumulator, len(cands))
			seats := make([]arrange.Arrangement, 1, MaxPlayers)
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				s, err := opponents.Scenario(i, hero, e.seed)
				if err != nil {
					return err
				}
				seats = append(seats[:1], s.Opponents...)
				for c := range cands {
					seats[0] = cands[c]
					acc[c].add(s.Weight, e.rules.Settle(seats))
				}
			}
			partials[w] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Candidate, len(cands))
	for c := range cands {
		var total accumulator
		for w := range partials {
			total.merge(&partials[w][c])
		}
		out[c] = total.candidate(cands[c])
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Mean, a.Mean); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})

	e.logger.Debug("estimated", "hand", hero, "candidates", len(out), "scenarios", n)
	return out, nil
}

// Best returns the candidate with the highest mean.
func Best(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Mean > best.Mean || (c.Mean == best.Mean && c.ID() < best.ID()) {
			best = c
		}
	}
	return best, true
}

// accumulator sums the hero's results (seat 0) over scenarios.
type accumulator struct {
	samples  int
	weight   float64
	weightSq float64
	sum      float64
	sumSq    float64
	pairs    float64

	wins, ties, losses [3]float64
	basic, bonus       [3]float64
	sweep              float64
	scoop              float64
	overall            float64
}

func (a *accumulator) add(w float64, res scoring.RoundResult) {
	payoff := float64(res.Totals[0])
	a.samples++
	a.weight += w
	a.weightSq += w * w
	a.sum += w * payoff
	a.sumSq += w * payoff * payoff

	for _, p := range res.Pairs {
		if p.A != 0 {
			continue
		}
		a.pairs += w
		for l, ls := range p.Score.Lines {
			switch ls.Outcome {
			case scoring.Win:
				a.wins[l] += w
			case scoring.Tie:
				a.ties[l] += w
			default:
				a.losses[l] += w
			}
			a.basic[l] += w * float64(ls.Outcome)
			a.bonus[l] += w * float64(ls.Bonus)
		}
		a.sweep += w * float64(p.Score.Sweep)
	}
	a.scoop += w * float64(res.Scoop[0])
	a.overall += w * float64(res.Overall[0])
}

func (a *accumulator) merge(b *accumulator) {
	a.samples += b.samples
	a.weight += b.weight
	a.weightSq += b.weightSq
	a.sum += b.sum
	a.sumSq += b.sumSq
	a.pairs += b.pairs
	for l := range a.wins {
		a.wins[l] += b.wins[l]
		a.ties[l] += b.ties[l]
		a.losses[l] += b.losses[l]
		a.basic[l] += b.basic[l]
		a.bonus[l] += b.bonus[l]
	}
	a.sweep += b.sweep
	a.scoop += b.scoop
	a.overall += b.overall
}

func (a *accumulator) candidate(arr arrange.Arrangement) Candidate {
	c := Candidate{Arrangement: arr, Samples: a.samples}
	if a.weight == 0 {
		return c
	}
	c.Mean = a.sum / a.weight

	// Effective sample size handles unequal scenario weights.
	neff := a.weight * a.weight / a.weightSq
	if neff > 1 {
		variance := math.Max(0, a.sumSq/a.weight-c.Mean*c.Mean) * neff / (neff - 1)
		c.StdErr = math.Sqrt(variance / neff)
	}

	b := &c.Breakdown
	for l := range b.Lines {
		if a.pairs > 0 {
			b.Lines[l].WinRate = a.wins[l] / a.pairs
			b.Lines[l].TieRate = a.ties[l] / a.pairs
			b.Lines[l].LossRate = a.losses[l] / a.pairs
		}
		b.Lines[l].Basic = a.basic[l] / a.weight
		b.Lines[l].Bonus = a.bonus[l] / a.weight
	}
	b.Sweep = a.sweep / a.weight
	b.Scoop = a.scoop / a.weight
	b.Overall = a.overall / a.weight
	b.Total = c.Mean
	return c
}
