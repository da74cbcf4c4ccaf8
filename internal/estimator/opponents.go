package estimator

import (
	"errors"
	"fmt"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/randutil"
	"github.com/lox/chinesepoker/poker"
)

// Scenario is one weighted set of opponent arrangements.
type Scenario struct {
	Opponents []arrange.Arrangement
	Weight    float64
}

// Opponents supplies the scenarios a hero hand is evaluated against.
// Scenario must depend only on its arguments so that results do not vary
// with worker scheduling.
type Opponents interface {
	Len() int
	Scenario(i int, hero poker.Hand, seed int64) (Scenario, error)
}

// RandomOpponents deals Count opponent hands from the cards the hero cannot
// see and lets Policy arrange each one. Every sample draws from its own
// stream derived from the estimator seed and the sample index.
type RandomOpponents struct {
	Count      int
	Samples    int
	Policy     Policy
	Enumerator *arrange.Enumerator
}

// NewRandomOpponents validates the opponent model.
func NewRandomOpponents(count, samples int, policy Policy, e *arrange.Enumerator) (*RandomOpponents, error) {
	if count < 1 || count > MaxPlayers-1 {
		return nil, fmt.Errorf("opponents must be between 1 and %d, got %d", MaxPlayers-1, count)
	}
	if samples < 1 {
		return nil, fmt.Errorf("samples must be positive, got %d", samples)
	}
	if policy == nil {
		policy = MaxProductPolicy{}
	}
	if e == nil {
		var err error
		if e, err = arrange.NewEnumerator(arrange.Config{}); err != nil {
			return nil, err
		}
	}
	return &RandomOpponents{Count: count, Samples: samples, Policy: policy, Enumerator: e}, nil
}

func (r *RandomOpponents) Len() int {
	return r.Samples
}

func (r *RandomOpponents) Scenario(i int, hero poker.Hand, seed int64) (Scenario, error) {
	deck := poker.NewDeckWithout(hero)
	deck.ShuffleWith(randutil.New(randutil.Derive(seed, i)))
	hands, err := deck.DealHands(r.Count, arrange.HandSize)
	if err != nil {
		return Scenario{}, fmt.Errorf("deal sample %d: %w", i, err)
	}

	opps := make([]arrange.Arrangement, r.Count)
	for j, hand := range hands {
		arrs, err := r.Enumerator.Enumerate(hand)
		if err != nil {
			return Scenario{}, fmt.Errorf("sample %d opponent %d: %w", i, j, err)
		}
		pick := r.Policy.Choose(arrs)
		if pick < 0 {
			return Scenario{}, fmt.Errorf("sample %d opponent %d: no arrangement chosen", i, j)
		}
		opps[j] = arrs[pick]
	}
	return Scenario{Opponents: opps, Weight: 1}, nil
}

// FixedOpponents is an explicit weighted list of opponent arrangement
// tuples, evaluated exhaustively.
type FixedOpponents struct {
	Scenarios []Scenario
}

// NewFixedOpponents validates that every scenario has the same number of
// opponents and a positive weight. Opponents within a scenario may not share
// cards.
func NewFixedOpponents(scenarios ...Scenario) (*FixedOpponents, error) {
	if len(scenarios) == 0 {
		return nil, errors.New("at least one scenario is required")
	}
	count := len(scenarios[0].Opponents)
	for i, s := range scenarios {
		if len(s.Opponents) != count || count < 1 || count > MaxPlayers-1 {
			return nil, fmt.Errorf("scenario %d has %d opponents, want %d (1-%d)", i, len(s.Opponents), count, MaxPlayers-1)
		}
		if s.Weight <= 0 {
			return nil, fmt.Errorf("scenario %d has non-positive weight %g", i, s.Weight)
		}
		var seen poker.Hand
		for j, o := range s.Opponents {
			if seen&o.Hand() != 0 {
				return nil, fmt.Errorf("%w: scenario %d opponent %d shares cards with an earlier opponent", poker.ErrDuplicateCard, i, j)
			}
			seen |= o.Hand()
		}
	}
	return &FixedOpponents{Scenarios: scenarios}, nil
}

func (f *FixedOpponents) Len() int {
	return len(f.Scenarios)
}

func (f *FixedOpponents) Scenario(i int, hero poker.Hand, _ int64) (Scenario, error) {
	s := f.Scenarios[i]
	for j, o := range s.Opponents {
		if o.Hand()&hero != 0 {
			return Scenario{}, fmt.Errorf("%w: scenario %d opponent %d shares cards with the hero", poker.ErrDuplicateCard, i, j)
		}
	}
	return s, nil
}
