package poker

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/chinesepoker/internal/randutil"
)

// Deck represents a standard 52-card deck, or what remains of one after dead
// cards have been removed.
type Deck struct {
	cards [52]Card // Fixed size array
	dead  Hand
	size  int
	next  int
}

// NewDeck creates an unshuffled deck in card-index order.
func NewDeck() *Deck {
	return NewDeckWithout(0)
}

// NewDeckWithout creates an unshuffled deck holding every card not in dead.
func NewDeckWithout(dead Hand) *Deck {
	d := &Deck{dead: dead}
	d.restack()
	return d
}

// restack puts the live cards back in card-index order.
func (d *Deck) restack() {
	d.size, d.next = 0, 0
	for i := range 52 {
		c := Card(i)
		if d.dead.HasCard(c) {
			continue
		}
		d.cards[d.size] = c
		d.size++
	}
}

// Shuffle restacks the deck and permutes it deterministically from seed.
func (d *Deck) Shuffle(seed int64) {
	d.ShuffleWith(randutil.New(seed))
}

// ShuffleWith restacks the deck in card-index order and permutes it with
// Fisher-Yates using rng, so the result depends only on the rng state.
func (d *Deck) ShuffleWith(rng *rand.Rand) {
	d.restack()
	for i := d.size - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes n cards from the top of the deck.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n < 0 || d.next+n > d.size {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrInsufficientCards, n, d.CardsRemaining())
	}
	cards := make([]Card, n)
	copy(cards, d.cards[d.next:d.next+n])
	d.next += n
	return cards, nil
}

// DealHands deals players hands of size cards each.
func (d *Deck) DealHands(players, size int) ([][]Card, error) {
	if players*size > d.CardsRemaining() {
		return nil, fmt.Errorf("%w: %d hands of %d from %d cards", ErrInsufficientCards, players, size, d.CardsRemaining())
	}
	hands := make([][]Card, players)
	for i := range hands {
		hand, err := d.Deal(size)
		if err != nil {
			return nil, err
		}
		hands[i] = hand
	}
	return hands, nil
}

// Reset returns every card to the deck without reordering.
func (d *Deck) Reset() {
	d.next = 0
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return d.size - d.next
}
