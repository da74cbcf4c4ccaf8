package evaluator

import (
	"fmt"

	"github.com/lox/chinesepoker/poker"
)

// Table maps canonical hand keys to ranks. Implementations must be safe for
// concurrent reads once constructed.
type Table interface {
	Lookup(key poker.Key) (poker.HandRank, bool)
	Len() int
}

// Table kinds accepted by BuildTable.
const (
	TablePerfect = "perfect"
	TableMap     = "map"
	TableNone    = "none"
)

// MapTable is a plain Go map from key to rank.
type MapTable map[poker.Key]poker.HandRank

// Lookup returns the rank for key.
func (t MapTable) Lookup(key poker.Key) (poker.HandRank, bool) {
	r, ok := t[key]
	return r, ok
}

// Len returns the number of entries.
func (t MapTable) Len() int {
	return len(t)
}

// BuildMapTable enumerates every canonical 3 and 5 card class and ranks a
// representative of each with the direct evaluator.
func BuildMapTable() MapTable {
	table := make(MapTable, 455+6175+1287)
	for _, arity := range []int{3, 5} {
		for _, h := range Classes(arity) {
			table[poker.KeyOf(h)] = poker.EvaluateHand(h)
		}
	}
	return table
}

// BuildTable builds the table named by kind. TableNone returns a nil Table,
// which makes the evaluator compute every rank directly.
func BuildTable(kind string) (Table, error) {
	switch kind {
	case TablePerfect, "":
		t, err := NewPerfectTable(BuildMapTable())
		if err != nil {
			return nil, err
		}
		return t, nil
	case TableMap:
		return BuildMapTable(), nil
	case TableNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown table kind %q", kind)
	}
}

// Classes returns one representative hand per canonical class of the given
// arity. For 5 cards every rank multiset appears once unsuited, and every
// multiset of five distinct ranks appears a second time as a flush.
func Classes(arity int) []poker.Hand {
	var out []poker.Hand
	var counts [13]int
	var walk func(rank, remaining int)
	walk = func(rank, remaining int) {
		if remaining == 0 {
			out = append(out, representative(counts, false))
			if arity == 5 && distinct(counts) {
				out = append(out, representative(counts, true))
			}
			return
		}
		if rank < 0 {
			return
		}
		for c := min(remaining, 4); c >= 0; c-- {
			counts[rank] = c
			walk(rank-1, remaining-c)
		}
		counts[rank] = 0
	}
	walk(12, arity)
	return out
}

func distinct(counts [13]int) bool {
	for _, c := range counts {
		if c > 1 {
			return false
		}
	}
	return true
}

// representative deals suits round-robin so unsuited classes never form an
// accidental flush. Suited classes put every card in clubs.
func representative(counts [13]int, suited bool) poker.Hand {
	var h poker.Hand
	next := 0
	for rank, c := range counts {
		for j := range c {
			suit := uint8((next + j) % 4)
			if suited {
				suit = poker.Clubs
			}
			h.AddCard(poker.NewCard(uint8(rank), suit))
		}
		next += c
	}
	return h
}
