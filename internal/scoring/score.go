package scoring

import (
	"fmt"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/poker"
)

// Outcome is the result of one line from the first player's point of view.
type Outcome int8

const (
	Lose Outcome = -1
	Tie  Outcome = 0
	Win  Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Lose:
		return "lose"
	default:
		return "tie"
	}
}

// LineScore is the result of one line. Bonus is the first player's category
// bonus minus the second player's.
type LineScore struct {
	Outcome Outcome `json:"outcome"`
	Bonus   int     `json:"bonus"`
}

// Points returns the line's contribution to the total.
func (l LineScore) Points() int {
	return int(l.Outcome) + l.Bonus
}

// ScoreResult is the pairwise settlement of two arrangements from the first
// player's point of view.
type ScoreResult struct {
	Lines [3]LineScore `json:"lines"`
	Sweep int          `json:"sweep"`
	Total int          `json:"total"`
}

// Negate returns the same result from the second player's point of view.
func (s ScoreResult) Negate() ScoreResult {
	out := ScoreResult{Sweep: -s.Sweep, Total: -s.Total}
	for i, l := range s.Lines {
		out.Lines[i] = LineScore{Outcome: -l.Outcome, Bonus: -l.Bonus}
	}
	return out
}

// Wins returns how many lines the first player won.
func (s ScoreResult) Wins() int {
	n := 0
	for _, l := range s.Lines {
		if l.Outcome == Win {
			n++
		}
	}
	return n
}

// Swept reports whether the first player won every line.
func (s ScoreResult) Swept() bool {
	return s.Wins() == len(s.Lines)
}

func (s ScoreResult) String() string {
	return fmt.Sprintf("front %+d middle %+d back %+d sweep %+d total %+d",
		s.Lines[arrange.Front].Points(), s.Lines[arrange.Middle].Points(), s.Lines[arrange.Back].Points(), s.Sweep, s.Total)
}

// Compare settles a against b. A fouled side loses every line to a valid
// side and earns no bonuses. Two fouled sides tie everything.
func (r Rules) Compare(a, b arrange.Arrangement) ScoreResult {
	var res ScoreResult
	if a.Fouled && b.Fouled {
		return res
	}

	bonusA, bonusB := r.Bonuses(a), r.Bonuses(b)
	for _, l := range arrange.Lines {
		var outcome Outcome
		switch {
		case a.Fouled:
			outcome = Lose
		case b.Fouled:
			outcome = Win
		default:
			outcome = compareRanks(a.Rank(l), b.Rank(l))
		}
		res.Lines[l] = LineScore{Outcome: outcome, Bonus: bonusA[l] - bonusB[l]}
		res.Total += res.Lines[l].Points()
	}

	if res.Swept() {
		res.Sweep = r.Sweep
	} else if res.Losses() == len(res.Lines) {
		res.Sweep = -r.Sweep
	}
	res.Total += res.Sweep
	return res
}

// Losses returns how many lines the first player lost.
func (s ScoreResult) Losses() int {
	n := 0
	for _, l := range s.Lines {
		if l.Outcome == Lose {
			n++
		}
	}
	return n
}

func compareRanks(a, b poker.HandRank) Outcome {
	return Outcome(poker.CompareHands(a, b))
}
