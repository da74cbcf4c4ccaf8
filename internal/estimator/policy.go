package estimator

import (
	"fmt"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/evaluator"
)

// Policy picks the arrangement a modelled opponent plays.
type Policy interface {
	Name() string
	// Choose returns the index of the chosen arrangement, or -1 when arrs is
	// empty.
	Choose(arrs []arrange.Arrangement) int
}

// Policy names accepted by ParsePolicy.
const (
	PolicyMaxProduct    = "max-product"
	PolicyStrongestBack = "strongest-back"
)

// ParsePolicy returns the policy registered under name. The empty string
// selects MaxProductPolicy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case PolicyMaxProduct, "":
		return MaxProductPolicy{}, nil
	case PolicyStrongestBack:
		return StrongestBackPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// MaxProductPolicy plays the arrangement maximising the product of the
// normalised reference scores of its three lines.
type MaxProductPolicy struct{}

func (MaxProductPolicy) Name() string { return PolicyMaxProduct }

func (MaxProductPolicy) Choose(arrs []arrange.Arrangement) int {
	best, bestScore := -1, -1.0
	for i, a := range arrs {
		if s := productScore(a); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func productScore(a arrange.Arrangement) float64 {
	score := 1.0
	for _, l := range arrange.Lines {
		v, err := evaluator.ReferenceScore(a.LineCards(l))
		if err != nil {
			return 0
		}
		score *= float64(v) / evaluator.ReferenceScoreMax
	}
	return score
}

// StrongestBackPolicy plays the arrangement with the strongest Back, then
// Middle, then Front.
type StrongestBackPolicy struct{}

func (StrongestBackPolicy) Name() string { return PolicyStrongestBack }

func (StrongestBackPolicy) Choose(arrs []arrange.Arrangement) int {
	best := -1
	for i, a := range arrs {
		if best < 0 || strongerBack(a, arrs[best]) {
			best = i
		}
	}
	return best
}

func strongerBack(a, b arrange.Arrangement) bool {
	for _, l := range []arrange.Line{arrange.Back, arrange.Middle, arrange.Front} {
		if a.Rank(l) != b.Rank(l) {
			return a.Rank(l) > b.Rank(l)
		}
	}
	return false
}
