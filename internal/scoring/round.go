package scoring

import (
	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/poker"
)

// PairResult is the settlement between players A and B, from A's side.
type PairResult struct {
	A     int         `json:"a"`
	B     int         `json:"b"`
	Score ScoreResult `json:"score"`
}

// RoundResult is the settlement of a whole round. Per-player slices are
// indexed by seat. Scooper and OverallWinner are -1 when nobody qualifies.
type RoundResult struct {
	Pairs         []PairResult `json:"pairs"`
	Pairwise      []int        `json:"pairwise"`
	Scoop         []int        `json:"scoop"`
	Overall       []int        `json:"overall"`
	Sweeps        []int        `json:"sweeps"`
	Totals        []int        `json:"totals"`
	Scooper       int          `json:"scooper"`
	OverallWinner int          `json:"overall_winner"`
}

// Players returns the number of seats settled.
func (r RoundResult) Players() int {
	return len(r.Totals)
}

// Pair returns the pairwise result between seats i and j from i's side.
func (r RoundResult) Pair(i, j int) (ScoreResult, bool) {
	for _, p := range r.Pairs {
		switch {
		case p.A == i && p.B == j:
			return p.Score, true
		case p.A == j && p.B == i:
			return p.Score.Negate(), true
		}
	}
	return ScoreResult{}, false
}

// Settle scores every pair of seats and applies the scoop and overall
// bonuses. Totals always sum to zero.
func (r Rules) Settle(arrs []arrange.Arrangement) RoundResult {
	n := len(arrs)
	res := RoundResult{
		Pairwise:      make([]int, n),
		Scoop:         make([]int, n),
		Overall:       make([]int, n),
		Sweeps:        make([]int, n),
		Totals:        make([]int, n),
		Scooper:       -1,
		OverallWinner: -1,
	}
	if n < 2 {
		return res
	}

	sweptAll := make([]bool, n)
	for i := range sweptAll {
		sweptAll[i] = true
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := r.Compare(arrs[i], arrs[j])
			res.Pairs = append(res.Pairs, PairResult{A: i, B: j, Score: s})
			res.Pairwise[i] += s.Total
			res.Pairwise[j] -= s.Total

			switch {
			case s.Swept():
				res.Sweeps[i]++
				sweptAll[j] = false
			case s.Losses() == len(s.Lines):
				res.Sweeps[j]++
				sweptAll[i] = false
			default:
				sweptAll[i] = false
				sweptAll[j] = false
			}
		}
	}

	for i, ok := range sweptAll {
		if ok {
			res.Scooper = i
			award(res.Scoop, i, r.ScoopPerOpponent)
			break
		}
	}

	if w, ok := overallWinner(r, arrs); ok {
		res.OverallWinner = w
		award(res.Overall, w, r.OverallPerOpponent)
	}

	for i := range res.Totals {
		res.Totals[i] = res.Pairwise[i] + res.Scoop[i] + res.Overall[i]
	}
	return res
}

// award pays points to winner from every other seat.
func award(deltas []int, winner, points int) {
	for i := range deltas {
		if i == winner {
			deltas[i] += points * (len(deltas) - 1)
		} else {
			deltas[i] -= points
		}
	}
}

// overallWinner finds the seat holding the strongest bonus-qualifying line
// among valid arrangements. A tie for strongest has no winner.
func overallWinner(r Rules, arrs []arrange.Arrangement) (int, bool) {
	winner, tied := -1, false
	var best poker.HandRank
	for i, a := range arrs {
		if a.Fouled {
			continue
		}
		var top poker.HandRank
		for _, l := range arrange.Lines {
			if r.LineBonus(l, a.Rank(l)) > 0 && a.Rank(l) > top {
				top = a.Rank(l)
			}
		}
		switch {
		case top == 0:
		case top > best:
			best, winner, tied = top, i, false
		case top == best:
			tied = true
		}
	}
	if winner < 0 || tied {
		return -1, false
	}
	return winner, true
}
