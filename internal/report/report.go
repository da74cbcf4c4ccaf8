// Package report defines the flat records the CLIs, the HTTP API and the
// store exchange.
package report

import (
	"time"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/evaluator"
	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/poker"
)

// ArrangementRecord is one arrangement with its line categories.
type ArrangementRecord struct {
	ID         string    `json:"id"`
	Front      []string  `json:"front"`
	Middle     []string  `json:"middle"`
	Back       []string  `json:"back"`
	Categories   [3]string `json:"categories"`
	Descriptions [3]string `json:"descriptions"`
	Fouled       bool      `json:"fouled"`
}

// NewArrangementRecord flattens an arrangement.
func NewArrangementRecord(a arrange.Arrangement) ArrangementRecord {
	r := ArrangementRecord{
		ID:     a.ID(),
		Front:  cardStrings(a.LineCards(arrange.Front)),
		Middle: cardStrings(a.LineCards(arrange.Middle)),
		Back:   cardStrings(a.LineCards(arrange.Back)),
		Fouled: a.Fouled,
	}
	for _, l := range arrange.Lines {
		r.Categories[l] = a.Category(l).Label()
		r.Descriptions[l] = evaluator.Describe(a.LineCards(l))
	}
	return r
}

// NewArrangementRecords flattens a list of arrangements.
func NewArrangementRecords(arrs []arrange.Arrangement) []ArrangementRecord {
	out := make([]ArrangementRecord, len(arrs))
	for i, a := range arrs {
		out[i] = NewArrangementRecord(a)
	}
	return out
}

// LineRecord is one line of a pairwise settlement.
type LineRecord struct {
	Line    string `json:"line"`
	Outcome string `json:"outcome"`
	Bonus   int    `json:"bonus"`
	Points  int    `json:"points"`
}

// ScoreRecord is the settlement between seats A and B from A's side.
type ScoreRecord struct {
	A     int           `json:"a"`
	B     int           `json:"b"`
	Lines [3]LineRecord `json:"lines"`
	Sweep int           `json:"sweep"`
	Total int           `json:"total"`
}

// NewScoreRecord flattens a pairwise result.
func NewScoreRecord(a, b int, s scoring.ScoreResult) ScoreRecord {
	r := ScoreRecord{A: a, B: b, Sweep: s.Sweep, Total: s.Total}
	for _, l := range arrange.Lines {
		ls := s.Lines[l]
		r.Lines[l] = LineRecord{Line: l.String(), Outcome: ls.Outcome.String(), Bonus: ls.Bonus, Points: ls.Points()}
	}
	return r
}

// RoundRecord is a settled round. Scooper and OverallWinner are -1 when
// nobody qualifies.
type RoundRecord struct {
	Players       []ArrangementRecord `json:"players"`
	Pairs         []ScoreRecord       `json:"pairs"`
	Scoop         []int               `json:"scoop"`
	Overall       []int               `json:"overall"`
	Totals        []int               `json:"totals"`
	Scooper       int                 `json:"scooper"`
	OverallWinner int                 `json:"overall_winner"`
}

// NewRoundRecord flattens a round settled from arrs.
func NewRoundRecord(arrs []arrange.Arrangement, res scoring.RoundResult) RoundRecord {
	r := RoundRecord{
		Players:       NewArrangementRecords(arrs),
		Pairs:         make([]ScoreRecord, len(res.Pairs)),
		Scoop:         res.Scoop,
		Overall:       res.Overall,
		Totals:        res.Totals,
		Scooper:       res.Scooper,
		OverallWinner: res.OverallWinner,
	}
	for i, p := range res.Pairs {
		r.Pairs[i] = NewScoreRecord(p.A, p.B, p.Score)
	}
	return r
}

// LineBreakdownRecord is one line of a candidate's EV breakdown.
type LineBreakdownRecord struct {
	Line     string  `json:"line"`
	WinRate  float64 `json:"win_rate"`
	TieRate  float64 `json:"tie_rate"`
	LossRate float64 `json:"loss_rate"`
	Basic    float64 `json:"basic"`
	Bonus    float64 `json:"bonus"`
}

// CandidateRecord is a ranked candidate with its expected value.
type CandidateRecord struct {
	Rank        int                    `json:"rank"`
	Arrangement ArrangementRecord      `json:"arrangement"`
	Mean        float64                `json:"mean"`
	StdErr      float64                `json:"std_err"`
	Samples     int                    `json:"samples"`
	Lines       [3]LineBreakdownRecord `json:"lines"`
	Sweep       float64                `json:"sweep"`
	Scoop       float64                `json:"scoop"`
	Overall     float64                `json:"overall"`
}

// NewCandidateRecords flattens ranked candidates, numbering from 1.
func NewCandidateRecords(cands []estimator.Candidate) []CandidateRecord {
	out := make([]CandidateRecord, len(cands))
	for i, c := range cands {
		r := CandidateRecord{
			Rank:        i + 1,
			Arrangement: NewArrangementRecord(c.Arrangement),
			Mean:        c.Mean,
			StdErr:      c.StdErr,
			Samples:     c.Samples,
			Sweep:       c.Breakdown.Sweep,
			Scoop:       c.Breakdown.Scoop,
			Overall:     c.Breakdown.Overall,
		}
		for _, l := range arrange.Lines {
			lb := c.Breakdown.Lines[l]
			r.Lines[l] = LineBreakdownRecord{
				Line:     l.String(),
				WinRate:  lb.WinRate,
				TieRate:  lb.TieRate,
				LossRate: lb.LossRate,
				Basic:    lb.Basic,
				Bonus:    lb.Bonus,
			}
		}
		out[i] = r
	}
	return out
}

// PlayerRecord is one seat of a solved game.
type PlayerRecord struct {
	Seat        int               `json:"seat"`
	Hand        []string          `json:"hand"`
	Candidates  int               `json:"candidates"`
	Arrangement ArrangementRecord `json:"arrangement"`
	Payoff      float64           `json:"payoff"`
}

// GameRecord is a solved deal.
type GameRecord struct {
	ID         string                `json:"id"`
	Seed       int64                 `json:"seed"`
	Status     string                `json:"status"`
	Iterations int                   `json:"iterations"`
	ElapsedMS  int64                 `json:"elapsed_ms"`
	Players    []PlayerRecord        `json:"players"`
	Round      RoundRecord           `json:"round"`
	Cycle      *estimator.CycleStats `json:"cycle,omitempty"`
	Cache      estimator.CacheStats  `json:"cache"`
	CreatedAt  time.Time             `json:"created_at"`
}

// NewGameRecord flattens a solved game. The round is settled from the
// result's final arrangements with rules.
func NewGameRecord(id string, seed int64, g *estimator.Game, res *estimator.Result, rules scoring.Rules, createdAt time.Time) GameRecord {
	r := GameRecord{
		ID:         id,
		Seed:       seed,
		Status:     res.Status.String(),
		Iterations: res.Iterations,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Players:    make([]PlayerRecord, g.Players()),
		Round:      NewRoundRecord(res.Arrangements, rules.Settle(res.Arrangements)),
		Cycle:      res.Cycle,
		Cache:      res.Cache,
		CreatedAt:  createdAt.UTC(),
	}
	for i := range r.Players {
		r.Players[i] = PlayerRecord{
			Seat:        i,
			Hand:        cardStrings(g.Hand(i)),
			Candidates:  len(g.Candidates(i)),
			Arrangement: NewArrangementRecord(res.Arrangements[i]),
			Payoff:      res.Payoffs[i],
		}
	}
	return r
}

func cardStrings(cards []poker.Card) []string {
	sorted := append([]poker.Card(nil), cards...)
	poker.SortCards(sorted)
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = c.String()
	}
	return out
}
