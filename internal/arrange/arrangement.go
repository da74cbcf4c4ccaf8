package arrange

import (
	"fmt"
	"strings"

	"github.com/lox/chinesepoker/internal/evaluator"
	"github.com/lox/chinesepoker/poker"
)

// Line identifies one of the three sub-hands of an arrangement.
type Line int

const (
	Front Line = iota
	Middle
	Back
)

// Lines lists the lines in table order.
var Lines = [3]Line{Front, Middle, Back}

func (l Line) String() string {
	switch l {
	case Front:
		return "front"
	case Middle:
		return "middle"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("line(%d)", int(l))
	}
}

// Size returns the number of cards the line holds.
func (l Line) Size() int {
	if l == Front {
		return 3
	}
	return 5
}

// Arrangement is a split of 13 cards into Front, Middle and Back. Each line
// is stored sorted by rank descending. Fouled is set when the lines do not
// satisfy Front < Middle <= Back.
type Arrangement struct {
	Front  [3]poker.Card
	Middle [5]poker.Card
	Back   [5]poker.Card
	Ranks  [3]poker.HandRank
	Fouled bool
}

// New builds an arrangement from explicit lines, ranking them with ev (the
// shared default evaluator when nil). Fouled arrangements are returned, not
// rejected, so they can be scored.
func New(front, middle, back []poker.Card, ev *evaluator.Evaluator) (Arrangement, error) {
	if len(front) != 3 || len(middle) != 5 || len(back) != 5 {
		return Arrangement{}, fmt.Errorf("%w: lines must hold 3/5/5 cards, got %d/%d/%d",
			poker.ErrInvalidHandSize, len(front), len(middle), len(back))
	}
	all := make([]poker.Card, 0, 13)
	all = append(append(append(all, front...), middle...), back...)
	if _, err := poker.HandFromCards(all); err != nil {
		return Arrangement{}, err
	}
	if ev == nil {
		ev = evaluator.Default()
	}

	var a Arrangement
	copy(a.Front[:], front)
	copy(a.Middle[:], middle)
	copy(a.Back[:], back)
	a.normalize()
	a.Ranks = [3]poker.HandRank{
		ev.Rank(poker.NewHand(a.Front[:]...)),
		ev.Rank(poker.NewHand(a.Middle[:]...)),
		ev.Rank(poker.NewHand(a.Back[:]...)),
	}
	a.Fouled = !ordered(a.Ranks[Front], a.Ranks[Middle], a.Ranks[Back])
	return a, nil
}

// Parse builds an arrangement from three card strings such as "AS AH AD".
func Parse(front, middle, back string, ev *evaluator.Evaluator) (Arrangement, error) {
	f, err := poker.ParseHand(front, 3)
	if err != nil {
		return Arrangement{}, fmt.Errorf("front: %w", err)
	}
	m, err := poker.ParseHand(middle, 5)
	if err != nil {
		return Arrangement{}, fmt.Errorf("middle: %w", err)
	}
	b, err := poker.ParseHand(back, 5)
	if err != nil {
		return Arrangement{}, fmt.Errorf("back: %w", err)
	}
	return New(f, m, b, ev)
}

func ordered(front, middle, back poker.HandRank) bool {
	return front < middle && middle <= back
}

func (a *Arrangement) normalize() {
	poker.SortCards(a.Front[:])
	poker.SortCards(a.Middle[:])
	poker.SortCards(a.Back[:])
}

// Rank returns the HandRank of a line.
func (a Arrangement) Rank(l Line) poker.HandRank {
	return a.Ranks[l]
}

// Category returns the category of a line.
func (a Arrangement) Category(l Line) poker.Category {
	return a.Ranks[l].Category()
}

// LineCards returns a copy of the cards in a line.
func (a Arrangement) LineCards(l Line) []poker.Card {
	switch l {
	case Front:
		return append([]poker.Card(nil), a.Front[:]...)
	case Middle:
		return append([]poker.Card(nil), a.Middle[:]...)
	default:
		return append([]poker.Card(nil), a.Back[:]...)
	}
}

// Cards returns all 13 cards, front first.
func (a Arrangement) Cards() []poker.Card {
	out := make([]poker.Card, 0, 13)
	out = append(out, a.Front[:]...)
	out = append(out, a.Middle[:]...)
	return append(out, a.Back[:]...)
}

// Hand returns the 13 cards as a bitset.
func (a Arrangement) Hand() poker.Hand {
	return poker.NewHand(a.Cards()...)
}

// ID returns a stable identifier of the form "front|middle|back".
func (a Arrangement) ID() string {
	return strings.Join([]string{
		poker.FormatCards(a.Front[:]),
		poker.FormatCards(a.Middle[:]),
		poker.FormatCards(a.Back[:]),
	}, "|")
}

// Dominates reports whether every line of a is at least as strong as the
// same line of b and at least one is stronger.
func (a Arrangement) Dominates(b Arrangement) bool {
	strict := false
	for i := range a.Ranks {
		if a.Ranks[i] < b.Ranks[i] {
			return false
		}
		if a.Ranks[i] > b.Ranks[i] {
			strict = true
		}
	}
	return strict
}

func (a Arrangement) String() string {
	s := fmt.Sprintf("[%s] [%s] [%s]",
		poker.FormatCards(a.Front[:]), poker.FormatCards(a.Middle[:]), poker.FormatCards(a.Back[:]))
	if a.Fouled {
		s += " (fouled)"
	}
	return s
}
