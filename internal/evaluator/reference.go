package evaluator

import (
	"fmt"

	ph "github.com/paulhankin/poker"

	"github.com/lox/chinesepoker/poker"
)

// ReferenceScoreMax is the largest score ReferenceScore can return.
const ReferenceScoreMax = float64(ph.ScoreMax)

var referenceSuits = [4]ph.Suit{ph.Club, ph.Diamond, ph.Heart, ph.Spade}

// toReference converts a card to the reference library's representation.
// The library numbers ranks 1-13 with the ace as 1.
func toReference(c poker.Card) ph.Card {
	r := ph.Rank(c.Rank() + 2)
	if c.Rank() == poker.Ace {
		r = ph.Rank(1)
	}
	card, _ := ph.MakeCard(referenceSuits[c.Suit()], r)
	return card
}

func toReferenceSlice(cards []poker.Card) []ph.Card {
	out := make([]ph.Card, len(cards))
	for i, c := range cards {
		out[i] = toReference(c)
	}
	return out
}

// ReferenceScore scores a 3 or 5 card hand with the independent reference
// evaluator. Larger is stronger and scores of both arities are comparable.
func ReferenceScore(cards []poker.Card) (int16, error) {
	switch len(cards) {
	case 3:
		var a [3]ph.Card
		copy(a[:], toReferenceSlice(cards))
		return ph.Eval3(&a), nil
	case 5:
		var a [5]ph.Card
		copy(a[:], toReferenceSlice(cards))
		return ph.Eval5(&a), nil
	default:
		return 0, fmt.Errorf("%w: cannot score %d cards", poker.ErrInvalidHandSize, len(cards))
	}
}

// Describe returns a readable description of a hand such as "pair of kings".
// It falls back to the category and tie-break ranks when the reference
// library cannot describe the hand.
func Describe(cards []poker.Card) string {
	if d, err := ph.Describe(toReferenceSlice(cards)); err == nil {
		return d
	}
	if r, err := poker.Evaluate(cards); err == nil {
		return r.String()
	}
	return poker.FormatCards(cards)
}
