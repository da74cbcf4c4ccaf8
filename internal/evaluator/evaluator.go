package evaluator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lox/chinesepoker/poker"
)

// Evaluator ranks 3 and 5 card hands, consulting a lookup table before
// falling back to direct computation. A nil table is valid.
type Evaluator struct {
	table  Table
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats reports how often the table answered.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// New creates an evaluator backed by table.
func New(table Table) *Evaluator {
	return &Evaluator{table: table}
}

var (
	defaultOnce      sync.Once
	defaultEvaluator *Evaluator
)

// Default returns a shared evaluator backed by a perfect hash table. If the
// table cannot be built it falls back to the map table.
func Default() *Evaluator {
	defaultOnce.Do(func() {
		table, err := BuildTable(TablePerfect)
		if err != nil {
			table = BuildMapTable()
		}
		defaultEvaluator = New(table)
	})
	return defaultEvaluator
}

// Rank ranks a hand bitset of 3 or 5 cards. Other sizes return 0.
func (e *Evaluator) Rank(h poker.Hand) poker.HandRank {
	if e.table != nil {
		if r, ok := e.table.Lookup(poker.KeyOf(h)); ok {
			e.hits.Add(1)
			return r
		}
	}
	e.misses.Add(1)
	return poker.EvaluateHand(h)
}

// Evaluate validates and ranks a 3 or 5 card hand.
func (e *Evaluator) Evaluate(cards []poker.Card) (poker.HandRank, error) {
	if len(cards) != 3 && len(cards) != 5 {
		return 0, fmt.Errorf("%w: cannot evaluate %d cards", poker.ErrInvalidHandSize, len(cards))
	}
	h, err := poker.HandFromCards(cards)
	if err != nil {
		return 0, err
	}
	return e.Rank(h), nil
}

// Table returns the backing table, which may be nil.
func (e *Evaluator) Table() Table {
	return e.table
}

// Stats returns the table hit and miss counters.
func (e *Evaluator) Stats() Stats {
	return Stats{Hits: e.hits.Load(), Misses: e.misses.Load()}
}
