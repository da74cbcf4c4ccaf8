package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/scoring"
	"github.com/lox/chinesepoker/poker"
)

// MaxSeats is the largest table a game can have.
const MaxSeats = 4

// GameResult is one player's outcome in a settled game
type GameResult struct {
	Score      int               // Net points for the player
	Seed       int64             // Deal seed (for replay)
	Seat       int               // Seat index, 0-3
	Fouled     bool              // Arrangement broke the line order
	Scooped    bool              // Swept every opponent
	Sweeps     int               // Opponents swept
	Categories [3]poker.Category // Front, middle, back categories

	// Components of Score
	LinePoints    int // Line outcomes and category bonuses
	SweepPoints   int // Pairwise sweep bonuses
	ScoopPoints   int // Scoop bonus
	OverallPoints int // Overall bonus
}

// FromRound extracts seat's result from a settled round.
func FromRound(res scoring.RoundResult, arrs []arrange.Arrangement, seat int, seed int64) GameResult {
	r := GameResult{
		Score:         res.Totals[seat],
		Seed:          seed,
		Seat:          seat,
		Fouled:        arrs[seat].Fouled,
		Scooped:       res.Scooper == seat,
		Sweeps:        res.Sweeps[seat],
		ScoopPoints:   res.Scoop[seat],
		OverallPoints: res.Overall[seat],
	}
	for _, l := range arrange.Lines {
		r.Categories[l] = arrs[seat].Category(l)
	}
	for other := range res.Players() {
		if other == seat {
			continue
		}
		s, _ := res.Pair(seat, other)
		r.SweepPoints += s.Sweep
		for _, l := range s.Lines {
			r.LinePoints += l.Points()
		}
	}
	return r
}

// SeatStats tracks statistics for one seat
type SeatStats struct {
	Games     int
	SumPoints float64
	SumSq     float64
}

// Statistics accumulates simulated game results
type Statistics struct {
	Games      int
	SumPoints  float64
	SumPoints2 float64   // Sum of squares for variance calculation
	Values     []float64 // All values for median/percentile calculation

	// Score breakdown; the components must add up to AllPoints
	LinePoints    float64
	SweepPoints   float64
	ScoopPoints   float64
	OverallPoints float64
	AllPoints     float64

	Wins    int // Games with a positive score
	Fouls   int
	Scoops  int
	Sweeps  int // Opponents swept, summed over games
	Overall int // Overall bonuses collected

	SeatResults [MaxSeats]SeatStats

	// Category counts per line, indexed by poker.Category
	LineCategories [3][poker.RoyalFlush + 1]int

	BestScore  int
	WorstScore int
}

// Mean returns the mean score per game
func (s *Statistics) Mean() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.SumPoints / float64(s.Games)
}

// Variance returns the sample variance of the scores
func (s *Statistics) Variance() float64 {
	if s.Games < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumPoints2 - float64(s.Games)*mean*mean) / float64(s.Games-1)
}

// StdDev returns the sample standard deviation of the scores
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Games))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Add incorporates a game result
func (s *Statistics) Add(result GameResult) {
	score := float64(result.Score)
	if s.Games == 0 || result.Score > s.BestScore {
		s.BestScore = result.Score
	}
	if s.Games == 0 || result.Score < s.WorstScore {
		s.WorstScore = result.Score
	}

	s.Games++
	s.SumPoints += score
	s.SumPoints2 += score * score
	s.Values = append(s.Values, score)

	s.LinePoints += float64(result.LinePoints)
	s.SweepPoints += float64(result.SweepPoints)
	s.ScoopPoints += float64(result.ScoopPoints)
	s.OverallPoints += float64(result.OverallPoints)
	s.AllPoints += score

	if result.Score > 0 {
		s.Wins++
	}
	if result.Fouled {
		s.Fouls++
	}
	if result.Scooped {
		s.Scoops++
	}
	if result.OverallPoints > 0 {
		s.Overall++
	}
	s.Sweeps += result.Sweeps

	if seat := result.Seat; seat >= 0 && seat < MaxSeats {
		s.SeatResults[seat].Games++
		s.SeatResults[seat].SumPoints += score
		s.SeatResults[seat].SumSq += score * score
	}

	for l, c := range result.Categories {
		if int(c) < len(s.LineCategories[l]) {
			s.LineCategories[l][c]++
		}
	}
}

// Merge folds other into s.
func (s *Statistics) Merge(other *Statistics) {
	if other.Games == 0 {
		return
	}
	if s.Games == 0 || other.BestScore > s.BestScore {
		s.BestScore = other.BestScore
	}
	if s.Games == 0 || other.WorstScore < s.WorstScore {
		s.WorstScore = other.WorstScore
	}
	s.Games += other.Games
	s.SumPoints += other.SumPoints
	s.SumPoints2 += other.SumPoints2
	s.Values = append(s.Values, other.Values...)
	s.LinePoints += other.LinePoints
	s.SweepPoints += other.SweepPoints
	s.ScoopPoints += other.ScoopPoints
	s.OverallPoints += other.OverallPoints
	s.AllPoints += other.AllPoints
	s.Wins += other.Wins
	s.Fouls += other.Fouls
	s.Scoops += other.Scoops
	s.Sweeps += other.Sweeps
	s.Overall += other.Overall
	for i := range s.SeatResults {
		s.SeatResults[i].Games += other.SeatResults[i].Games
		s.SeatResults[i].SumPoints += other.SeatResults[i].SumPoints
		s.SeatResults[i].SumSq += other.SeatResults[i].SumSq
	}
	for l := range s.LineCategories {
		for c := range s.LineCategories[l] {
			s.LineCategories[l][c] += other.LineCategories[l][c]
		}
	}
}

// Median returns the median score
func (s *Statistics) Median() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the interpolated score at percentile p (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// SeatMean returns the mean score for a seat (0-3)
func (s *Statistics) SeatMean(seat int) float64 {
	if seat < 0 || seat >= MaxSeats {
		return 0
	}
	ss := s.SeatResults[seat]
	if ss.Games == 0 {
		return 0
	}
	return ss.SumPoints / float64(ss.Games)
}

// FoulRate returns the fraction of games played with a fouled arrangement
func (s *Statistics) FoulRate() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Fouls) / float64(s.Games)
}

// IsLedgerBalanced checks that the score components add up to the scores
func (s *Statistics) IsLedgerBalanced() bool {
	sum := s.LinePoints + s.SweepPoints + s.ScoopPoints + s.OverallPoints
	return math.Abs(s.AllPoints-sum) <= 1e-6
}

// Validate checks the accumulated data for consistency
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: all=%.6f, lines=%.6f, sweep=%.6f, scoop=%.6f, overall=%.6f",
			s.AllPoints, s.LinePoints, s.SweepPoints, s.ScoopPoints, s.OverallPoints)
	}
	if s.Games <= 0 {
		return fmt.Errorf("invalid games count: %d", s.Games)
	}
	if len(s.Values) != s.Games {
		return fmt.Errorf("values array length (%d) does not match games count (%d)", len(s.Values), s.Games)
	}
	if s.Wins > s.Games || s.Fouls > s.Games || s.Scoops > s.Games {
		return fmt.Errorf("counters exceed games count (%d): wins=%d fouls=%d scoops=%d", s.Games, s.Wins, s.Fouls, s.Scoops)
	}

	seatGames := 0
	for _, ss := range s.SeatResults {
		seatGames += ss.Games
	}
	if seatGames != s.Games {
		return fmt.Errorf("seat games total (%d) does not match games count (%d)", seatGames, s.Games)
	}

	for l, counts := range s.LineCategories {
		total := 0
		for _, c := range counts {
			total += c
		}
		if total != s.Games {
			return fmt.Errorf("%s category counts (%d) do not match games count (%d)", arrange.Lines[l], total, s.Games)
		}
	}
	return nil
}
