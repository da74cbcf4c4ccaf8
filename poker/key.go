package poker

import "math/bits"

// Key is the canonical, suit-free encoding of a 3 or 5 card hand. The low 31
// bits hold the rank multiset as base-5 digits (one digit per rank, counting
// cards of that rank). Flush and straight flags and the arity sit above. Two
// hands with equal keys always have equal HandRanks.
type Key uint64

const (
	keyFlushBit    Key = 1 << 32
	keyStraightBit Key = 1 << 33
	keyArityShift      = 34
)

var pow5 = func() [13]Key {
	var p [13]Key
	v := Key(1)
	for i := range p {
		p[i] = v
		v *= 5
	}
	return p
}()

// KeyOf returns the canonical key of a hand.
func KeyOf(h Hand) Key {
	var k Key
	var rankMask uint16
	flush := false
	for suit := uint8(0); suit < 4; suit++ {
		mask := h.GetSuitMask(suit)
		rankMask |= mask
		if bits.OnesCount16(mask) == 5 {
			flush = true
		}
		for m := mask; m != 0; m &= m - 1 {
			k += pow5[bits.TrailingZeros16(m)]
		}
	}
	n := h.CountCards()
	if n == 5 {
		if flush {
			k |= keyFlushBit
		}
		if straightHighMask(rankMask) > 0 {
			k |= keyStraightBit
		}
	}
	return k | Key(n)<<keyArityShift
}

// Arity returns the number of cards the key describes.
func (k Key) Arity() int {
	return int(k >> keyArityShift)
}

// Flush reports whether the key carries the flush flag.
func (k Key) Flush() bool {
	return k&keyFlushBit != 0
}

// Straight reports whether the key carries the straight flag.
func (k Key) Straight() bool {
	return k&keyStraightBit != 0
}

// RankCounts decodes the per-rank card counts.
func (k Key) RankCounts() [13]int {
	var counts [13]int
	digits := k & (1<<31 - 1)
	for r := range counts {
		counts[r] = int(digits % 5)
		digits /= 5
	}
	return counts
}
