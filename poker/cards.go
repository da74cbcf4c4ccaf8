package poker

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Ranks are stored 0-12 (deuce through ace).
const (
	Two uint8 = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Suits in card-index order.
const (
	Clubs uint8 = iota
	Diamonds
	Hearts
	Spades
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
)

var (
	// ErrInvalidCardToken is returned when a card token has an unknown rank or suit.
	ErrInvalidCardToken = errors.New("invalid card token")
	// ErrDuplicateCard is returned when the same card appears twice in one hand.
	ErrDuplicateCard = errors.New("duplicate card")
	// ErrInvalidHandSize is returned when a hand has the wrong number of cards.
	ErrInvalidHandSize = errors.New("invalid hand size")
	// ErrInsufficientCards is returned when the deck cannot satisfy a deal.
	ErrInsufficientCards = errors.New("insufficient cards")
)

// Card is a playing card encoded as suit*13 + rank (0-51).
type Card uint8

// NewCard creates a card from a 0-12 rank and a 0-3 suit.
func NewCard(rank, suit uint8) Card {
	return Card(suit*13 + rank)
}

// Rank returns the 0-12 rank.
func (c Card) Rank() uint8 {
	return uint8(c) % 13
}

// Suit returns the 0-3 suit.
func (c Card) Suit() uint8 {
	return uint8(c) / 13
}

// Value returns the rank as 2-14 with the ace high.
func (c Card) Value() int {
	return int(c.Rank()) + 2
}

// String renders the card as rank+suit, e.g. "As" or "Td".
func (c Card) String() string {
	if c > 51 {
		return "??"
	}
	return string([]byte{rankChars[c.Rank()], suitChars[c.Suit()]})
}

// ParseCard parses a single token such as "AS", "10d" or "Tc".
func ParseCard(token string) (Card, error) {
	if len(token) < 2 || len(token) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCardToken, token)
	}

	rankPart, suitPart := token[:len(token)-1], token[len(token)-1]
	var rank uint8
	switch strings.ToUpper(rankPart) {
	case "10", "T":
		rank = Ten
	case "J":
		rank = Jack
	case "Q":
		rank = Queen
	case "K":
		rank = King
	case "A":
		rank = Ace
	default:
		if len(rankPart) != 1 || rankPart[0] < '2' || rankPart[0] > '9' {
			return 0, fmt.Errorf("%w: unknown rank in %q", ErrInvalidCardToken, token)
		}
		rank = rankPart[0] - '2'
	}

	var suit uint8
	switch suitPart {
	case 'c', 'C':
		suit = Clubs
	case 'd', 'D':
		suit = Diamonds
	case 'h', 'H':
		suit = Hearts
	case 's', 'S':
		suit = Spades
	default:
		return 0, fmt.Errorf("%w: unknown suit in %q", ErrInvalidCardToken, token)
	}

	return NewCard(rank, suit), nil
}

// ParseCards parses whitespace separated card tokens. Repeated cards are rejected.
func ParseCards(s string) ([]Card, error) {
	tokens := strings.Fields(s)
	cards := make([]Card, 0, len(tokens))
	var seen Hand
	for i, token := range tokens {
		card, err := ParseCard(token)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i+1, err)
		}
		if seen.HasCard(card) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCard, card)
		}
		seen.AddCard(card)
		cards = append(cards, card)
	}
	return cards, nil
}

// ParseHand parses cards and requires exactly size of them.
func ParseHand(s string, size int) ([]Card, error) {
	cards, err := ParseCards(s)
	if err != nil {
		return nil, err
	}
	if len(cards) != size {
		return nil, fmt.Errorf("%w: got %d cards, want %d", ErrInvalidHandSize, len(cards), size)
	}
	return cards, nil
}

// MustParseCards parses cards and panics on error (for tests)
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(fmt.Sprintf("failed to parse cards '%s': %v", s, err))
	}
	return cards
}

// FormatCards joins card strings with single spaces.
func FormatCards(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// SortCards orders cards by descending rank, then descending suit.
func SortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Rank() != cards[j].Rank() {
			return cards[i].Rank() > cards[j].Rank()
		}
		return cards[i].Suit() > cards[j].Suit()
	})
}

// Hand is a set of cards, one bit per card index.
type Hand uint64

// NewHand builds a hand bitset from cards.
func NewHand(cards ...Card) Hand {
	var h Hand
	for _, c := range cards {
		h.AddCard(c)
	}
	return h
}

// AddCard adds a card to the hand.
func (h *Hand) AddCard(c Card) {
	*h |= 1 << c
}

// HasCard reports whether the card is in the hand.
func (h Hand) HasCard(c Card) bool {
	return h&(1<<c) != 0
}

// CountCards returns the number of cards in the hand.
func (h Hand) CountCards() int {
	return bits.OnesCount64(uint64(h))
}

// GetSuitMask returns the 13-bit rank mask of one suit.
func (h Hand) GetSuitMask(suit uint8) uint16 {
	return uint16(h>>(uint(suit)*13)) & 0x1FFF
}

// RankMask returns the union of all suit masks.
func (h Hand) RankMask() uint16 {
	return h.GetSuitMask(Clubs) | h.GetSuitMask(Diamonds) | h.GetSuitMask(Hearts) | h.GetSuitMask(Spades)
}

// Cards returns the cards in ascending index order.
func (h Hand) Cards() []Card {
	cards := make([]Card, 0, h.CountCards())
	for rest := uint64(h); rest != 0; rest &= rest - 1 {
		cards = append(cards, Card(bits.TrailingZeros64(rest)))
	}
	return cards
}

// String renders the hand highest card first.
func (h Hand) String() string {
	cards := h.Cards()
	SortCards(cards)
	return FormatCards(cards)
}

// HandFromCards builds a hand and rejects duplicates.
func HandFromCards(cards []Card) (Hand, error) {
	var h Hand
	for _, c := range cards {
		if c > 51 {
			return 0, fmt.Errorf("%w: card index %d", ErrInvalidCardToken, c)
		}
		if h.HasCard(c) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateCard, c)
		}
		h.AddCard(c)
	}
	return h, nil
}
