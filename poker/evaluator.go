package poker

import (
	"fmt"
	"math/bits"
	"strings"
)

// HandRank represents the strength of a 3 or 5 card hand. Higher values are
// stronger. The category sits in bits 20 and up; below it are up to five 4-bit
// rank values (2-14), most significant first, zero padded. Both arities share
// the encoding so a front hand compares directly with a middle hand.
type HandRank uint32

// Category enumerates hand categories ordered from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota + 1
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// Label returns the category as an upper snake case identifier for records.
func (c Category) Label() string {
	return strings.ToUpper(strings.ReplaceAll(c.String(), " ", "_"))
}

const tiebreakBits = 20

// NewHandRank packs a category and up to five 2-14 rank values.
func NewHandRank(cat Category, values ...int) HandRank {
	var tb uint32
	for i := range 5 {
		tb <<= 4
		if i < len(values) {
			tb |= uint32(values[i]) & 0xF
		}
	}
	return HandRank(uint32(cat)<<tiebreakBits | tb)
}

// Category returns the hand category.
func (hr HandRank) Category() Category {
	return Category(hr >> tiebreakBits)
}

// Tiebreak returns the rank values of the tie-break key, most significant first.
func (hr HandRank) Tiebreak() []int {
	values := make([]int, 0, 5)
	for shift := 16; shift >= 0; shift -= 4 {
		v := int(hr>>uint(shift)) & 0xF
		if v == 0 {
			break
		}
		values = append(values, v)
	}
	return values
}

// String returns the category followed by its tie-break ranks.
func (hr HandRank) String() string {
	if hr == 0 {
		return "Invalid"
	}
	tb := hr.Tiebreak()
	ranks := make([]string, len(tb))
	for i, v := range tb {
		ranks[i] = string(rankChars[v-2])
	}
	return fmt.Sprintf("%s [%s]", hr.Category(), strings.Join(ranks, " "))
}

// CompareHands compares two hands and returns 1 if a wins, -1 if b wins, 0 for tie
func CompareHands(a, b HandRank) int {
	if a > b {
		return 1
	} else if a < b {
		return -1
	}
	return 0
}

// Evaluate ranks a 3 or 5 card hand by direct computation.
func Evaluate(cards []Card) (HandRank, error) {
	if len(cards) != 3 && len(cards) != 5 {
		return 0, fmt.Errorf("%w: cannot evaluate %d cards", ErrInvalidHandSize, len(cards))
	}
	h, err := HandFromCards(cards)
	if err != nil {
		return 0, err
	}
	return EvaluateHand(h), nil
}

// Evaluate3 ranks three distinct cards.
func Evaluate3(cards [3]Card) HandRank {
	return evaluate3(NewHand(cards[:]...))
}

// Evaluate5 ranks five distinct cards.
func Evaluate5(cards [5]Card) HandRank {
	return evaluate5(NewHand(cards[:]...))
}

// EvaluateHand ranks a hand bitset holding 3 or 5 cards. Any other size
// returns 0, which is below every valid rank.
func EvaluateHand(h Hand) HandRank {
	switch h.CountCards() {
	case 3:
		return evaluate3(h)
	case 5:
		return evaluate5(h)
	default:
		return 0
	}
}

func evaluate3(h Hand) HandRank {
	s0, s1, s2, s3 := h.GetSuitMask(Clubs), h.GetSuitMask(Diamonds), h.GetSuitMask(Hearts), h.GetSuitMask(Spades)
	rankMask := s0 | s1 | s2 | s3

	switch bits.OnesCount16(rankMask) {
	case 1:
		return NewHandRank(ThreeOfAKind, highestRank(rankMask)+2)
	case 2:
		pairMask := (s0 & s1) | (s0 & s2) | (s0 & s3) | (s1 & s2) | (s1 & s3) | (s2 & s3)
		pair := highestRank(pairMask)
		kicker := highestRank(rankMask &^ (1 << pair))
		return NewHandRank(Pair, pair+2, kicker+2)
	default:
		return NewHandRank(HighCard, orderedValues(rankMask, 3)...)
	}
}

func evaluate5(h Hand) HandRank {
	var suitMasks [4]uint16
	var rankMask uint16
	flush := false
	for suit := uint8(0); suit < 4; suit++ {
		mask := h.GetSuitMask(suit)
		suitMasks[suit] = mask
		rankMask |= mask
		if bits.OnesCount16(mask) == 5 {
			flush = true
		}
	}

	if high := straightHighMask(rankMask); high > 0 {
		switch {
		case flush && high == 14:
			return NewHandRank(RoyalFlush, high)
		case flush:
			return NewHandRank(StraightFlush, high)
		default:
			return NewHandRank(Straight, high)
		}
	}
	if flush {
		return NewHandRank(Flush, orderedValues(rankMask, 5)...)
	}

	s0, s1, s2, s3 := suitMasks[0], suitMasks[1], suitMasks[2], suitMasks[3]
	quadsMask := s0 & s1 & s2 & s3
	tripCandidates := (s0 & s1 & s2) | (s0 & s1 & s3) | (s0 & s2 & s3) | (s1 & s2 & s3)
	tripsMask := tripCandidates &^ quadsMask
	pairsMask := ((s0 & s1) | (s0 & s2) | (s0 & s3) | (s1 & s2) | (s1 & s3) | (s2 & s3)) &^ tripCandidates

	if quadsMask != 0 {
		quad := highestRank(quadsMask)
		kicker := highestRank(rankMask &^ quadsMask)
		return NewHandRank(FourOfAKind, quad+2, kicker+2)
	}

	if tripsMask != 0 {
		trip := highestRank(tripsMask)
		if pairsMask != 0 {
			return NewHandRank(FullHouse, trip+2, highestRank(pairsMask)+2)
		}
		kickers := orderedValues(rankMask&^tripsMask, 2)
		return NewHandRank(ThreeOfAKind, trip+2, kickers[0], kickers[1])
	}

	switch bits.OnesCount16(pairsMask) {
	case 2:
		high := highestRank(pairsMask)
		low := highestRank(pairsMask &^ (1 << high))
		kicker := highestRank(rankMask &^ pairsMask)
		return NewHandRank(TwoPair, high+2, low+2, kicker+2)
	case 1:
		pair := highestRank(pairsMask)
		kickers := orderedValues(rankMask&^pairsMask, 3)
		return NewHandRank(Pair, pair+2, kickers[0], kickers[1], kickers[2])
	}

	return NewHandRank(HighCard, orderedValues(rankMask, 5)...)
}

// highestRank returns the highest rank present in the bitmask (or -1 when empty).
func highestRank(mask uint16) int {
	if mask == 0 {
		return -1
	}
	return bits.Len16(mask) - 1
}

// orderedValues returns the top n ranks in the mask as descending 2-14 values.
func orderedValues(mask uint16, n int) []int {
	values := make([]int, 0, n)
	for len(values) < n && mask != 0 {
		top := highestRank(mask)
		values = append(values, top+2)
		mask &^= 1 << top
	}
	return values
}

// straightHighMask returns the 2-14 value of the top card of the straight made
// by exactly five ranks (5 for the wheel), or 0 when there is none.
func straightHighMask(mask uint16) int {
	const wheelMask = 0x100F // Ace + 2-3-4-5
	mask &= 0x1FFF           // Ignore any bits above rank twelve
	if bits.OnesCount16(mask) != 5 {
		return 0
	}

	// Bitwise cascade identifies consecutive sequences in one pass.
	seq := mask & (mask >> 1) & (mask >> 2) & (mask >> 3) & (mask >> 4)
	if seq != 0 {
		return bits.Len16(seq) - 1 + 4 + 2
	}
	if mask == wheelMask {
		return 5
	}
	return 0
}
