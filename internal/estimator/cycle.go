package estimator

import "math"

// detectCycle looks for a cycle ending at the latest step, trying periods
// from 2 up to half the history. It returns the start and length.
func detectCycle(history []step, players int, oscillation float64) (int, int, bool) {
	n := len(history)
	for length := 2; length <= n/2; length++ {
		if repeats(history, length, cycleTolerance) || oscillates(history, length, players, oscillation) {
			return n - length, length, true
		}
	}
	return 0, 0, false
}

// repeats reports whether the last length steps repeat the length steps
// before them, profiles exactly and payoffs within tolerance.
func repeats(history []step, length int, tolerance float64) bool {
	n := len(history)
	if n < 2*length {
		return false
	}
	for i := 1; i <= length; i++ {
		cur, prev := history[n-i], history[n-i-length]
		if cur.profile != prev.profile {
			return false
		}
		for p := range cur.payoffs {
			if math.Abs(cur.payoffs[p]-prev.payoffs[p]) > tolerance {
				return false
			}
		}
	}
	return true
}

// oscillates reports whether, over the last three periods, every seat's
// payoffs at the same offset stay within tolerance of each other.
func oscillates(history []step, length, players int, tolerance float64) bool {
	n := len(history)
	if n < 3*length {
		return false
	}
	window := history[n-3*length:]
	for p := range players {
		for offset := range length {
			lo, hi := math.Inf(1), math.Inf(-1)
			for i := offset; i < len(window); i += length {
				v := window[i].payoffs[p]
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
			if hi-lo > tolerance {
				return false
			}
		}
	}
	return true
}

func analyzeCycle(cycle []step, players int) CycleStats {
	stats := CycleStats{Length: len(cycle), Players: make([]PlayerCycleStats, players)}
	distinct := make(map[Profile]struct{}, len(cycle))
	for _, s := range cycle {
		distinct[s.profile] = struct{}{}
	}
	stats.Profiles = len(distinct)

	for p := range players {
		values := make([]float64, len(cycle))
		for i, s := range cycle {
			values[i] = s.payoffs[p]
		}
		ps := PlayerCycleStats{Min: math.Inf(1), Max: math.Inf(-1)}
		for _, v := range values {
			ps.Total += v
			ps.Min = math.Min(ps.Min, v)
			ps.Max = math.Max(ps.Max, v)
		}
		ps.Mean = ps.Total / float64(len(values))
		ps.Variance = populationVariance(values)
		stats.Players[p] = ps
	}
	return stats
}

// bestInCycle picks the step maximising 0.4*mean + 0.4*min - 0.2*variance
// of its payoffs across seats.
func bestInCycle(cycle []step, players int) step {
	best, bestScore := cycle[0], math.Inf(-1)
	for _, s := range cycle {
		values := s.payoffs[:players]
		sum, lo := 0.0, math.Inf(1)
		for _, v := range values {
			sum += v
			lo = math.Min(lo, v)
		}
		score := 0.4*sum/float64(players) + 0.4*lo - 0.2*populationVariance(values)
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	return best
}

func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return variance / float64(len(values))
}
