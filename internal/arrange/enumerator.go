package arrange

import (
	"context"
	"fmt"
	"io"
	"math/bits"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/chinesepoker/internal/evaluator"
	"github.com/lox/chinesepoker/poker"
)

// HandSize is the number of cards split into an arrangement.
const HandSize = 13

const fullMask = 1<<HandSize - 1

// Config holds enumerator settings. The zero value enumerates with the
// default evaluator and no cache.
type Config struct {
	Evaluator *evaluator.Evaluator
	Logger    *log.Logger
	CacheSize int
	Encoding  Encoding
	Workers   int
}

// Enumerator lists the legal arrangements of 13-card hands.
type Enumerator struct {
	eval    *evaluator.Evaluator
	logger  *log.Logger
	cache   *Cache
	workers int
}

// NewEnumerator creates an enumerator. A positive CacheSize enables the LRU
// cache keyed by Encoding.
func NewEnumerator(config Config) (*Enumerator, error) {
	e := &Enumerator{
		eval:    config.Evaluator,
		logger:  config.Logger,
		workers: config.Workers,
	}
	if e.eval == nil {
		e.eval = evaluator.Default()
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	e.logger = e.logger.WithPrefix("arrange")
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	encoding, err := ParseEncoding(string(config.Encoding))
	if err != nil {
		return nil, err
	}
	if config.CacheSize > 0 {
		if e.cache, err = NewCache(config.CacheSize, encoding); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Evaluator returns the evaluator used to rank lines.
func (e *Enumerator) Evaluator() *evaluator.Evaluator {
	return e.eval
}

// Cache returns the arrangement cache, or nil when caching is disabled.
func (e *Enumerator) Cache() *Cache {
	return e.cache
}

// Enumerate returns every non-fouled arrangement of a 13-card hand in a
// deterministic order.
func (e *Enumerator) Enumerate(hand []poker.Card) ([]Arrangement, error) {
	if len(hand) != HandSize {
		return nil, fmt.Errorf("%w: need %d cards, got %d", poker.ErrInvalidHandSize, HandSize, len(hand))
	}
	h, err := poker.HandFromCards(hand)
	if err != nil {
		return nil, err
	}
	if e.cache == nil {
		return e.enumerate(h), nil
	}

	key, perm := e.cache.key(h)
	if arrs, ok := e.cache.get(key, perm); ok {
		e.logger.Debug("cache hit", "hand", h, "arrangements", len(arrs))
		return arrs, nil
	}
	arrs := e.enumerate(key)
	e.cache.add(key, arrs)
	return remap(arrs, perm), nil
}

// EnumerateAll enumerates several hands in parallel. Results are returned in
// input order. The first error cancels the remaining work.
func (e *Enumerator) EnumerateAll(ctx context.Context, hands [][]poker.Card) ([][]Arrangement, error) {
	results := make([][]Arrangement, len(hands))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, hand := range hands {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			arrs, err := e.Enumerate(hand)
			if err != nil {
				return fmt.Errorf("hand %d: %w", i, err)
			}
			results[i] = arrs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// enumerate walks every Front (3 of 13) and Middle (5 of the remaining 10)
// of h. Each 3 and 5 card subset is ranked once, indexed by its 13-bit
// position mask over the sorted hand.
func (e *Enumerator) enumerate(h poker.Hand) []Arrangement {
	cards := h.Cards()
	if len(cards) != HandSize {
		panic(fmt.Sprintf("arrange: enumerating %d cards", len(cards)))
	}

	var ranks [1 << HandSize]poker.HandRank
	for mask := uint16(1); mask <= fullMask; mask++ {
		if n := bits.OnesCount16(mask); n == 3 || n == 5 {
			ranks[mask] = e.eval.Rank(handOf(cards, mask))
		}
	}

	var arrs []Arrangement
	rest := make([]int, 0, HandSize-3)
	for i := 0; i < HandSize; i++ {
		for j := i + 1; j < HandSize; j++ {
			for k := j + 1; k < HandSize; k++ {
				front := uint16(1)<<i | uint16(1)<<j | uint16(1)<<k
				frontRank := ranks[front]

				rest = rest[:0]
				for p := 0; p < HandSize; p++ {
					if front&(1<<p) == 0 {
						rest = append(rest, p)
					}
				}
				for _, combo := range middleCombos {
					var middle uint16
					for _, idx := range combo {
						middle |= 1 << rest[idx]
					}
					back := fullMask &^ (front | middle)
					middleRank, backRank := ranks[middle], ranks[back]
					if !ordered(frontRank, middleRank, backRank) {
						continue
					}
					arrs = append(arrs, build(cards, front, middle, back, [3]poker.HandRank{frontRank, middleRank, backRank}))
				}
			}
		}
	}

	e.logger.Debug("enumerated", "hand", h, "arrangements", len(arrs))
	return arrs
}

// middleCombos lists the 5-of-10 index combinations in lexicographic order.
var middleCombos = combinations(HandSize-3, 5)

func combinations(n, k int) [][]int {
	var out [][]int
	combo := make([]int, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			out = append(out, append([]int(nil), combo...))
			return
		}
		for i := start; i <= n-(k-depth); i++ {
			combo[depth] = i
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
	return out
}

func handOf(cards []poker.Card, mask uint16) poker.Hand {
	var h poker.Hand
	for m := mask; m != 0; m &= m - 1 {
		h.AddCard(cards[bits.TrailingZeros16(m)])
	}
	return h
}

func collect(dst []poker.Card, cards []poker.Card, mask uint16) {
	n := 0
	for m := mask; m != 0; m &= m - 1 {
		dst[n] = cards[bits.TrailingZeros16(m)]
		n++
	}
}

func build(cards []poker.Card, front, middle, back uint16, ranks [3]poker.HandRank) Arrangement {
	if front&middle != 0 || front&back != 0 || middle&back != 0 || front|middle|back != fullMask ||
		bits.OnesCount16(front) != 3 || bits.OnesCount16(middle) != 5 || bits.OnesCount16(back) != 5 {
		panic(fmt.Sprintf("arrange: invalid partition %013b/%013b/%013b", front, middle, back))
	}
	a := Arrangement{Ranks: ranks}
	collect(a.Front[:], cards, front)
	collect(a.Middle[:], cards, middle)
	collect(a.Back[:], cards, back)
	a.normalize()
	return a
}
