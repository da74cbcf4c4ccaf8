package arrange

import (
	"fmt"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lox/chinesepoker/poker"
)

// Encoding selects how a 13-card hand is turned into a cache key.
type Encoding string

const (
	// EncodingExact keys the cache by the exact card set.
	EncodingExact Encoding = "exact"
	// EncodingSuitNormalized relabels suits by sorting their rank masks, so
	// hands that differ only by a suit permutation share an entry.
	EncodingSuitNormalized Encoding = "suit-normalized"
)

// ParseEncoding validates an encoding name. The empty string means exact.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", EncodingExact:
		return EncodingExact, nil
	case EncodingSuitNormalized:
		return EncodingSuitNormalized, nil
	default:
		return "", fmt.Errorf("unknown cache encoding %q", s)
	}
}

// suitPerm maps a canonical suit to the caller's suit.
type suitPerm [4]uint8

var identityPerm = suitPerm{0, 1, 2, 3}

// normalize returns the canonical hand for h and the permutation that maps
// canonical suits back to h's suits.
func normalize(h poker.Hand) (poker.Hand, suitPerm) {
	perm := identityPerm
	masks := [4]uint16{}
	for s := range masks {
		masks[s] = h.GetSuitMask(uint8(s))
	}
	slices.SortStableFunc(perm[:], func(a, b uint8) int {
		switch {
		case masks[a] > masks[b]:
			return -1
		case masks[a] < masks[b]:
			return 1
		default:
			return 0
		}
	})
	var canon poker.Hand
	for to, from := range perm {
		canon |= poker.Hand(masks[from]) << (uint(to) * 13)
	}
	return canon, perm
}

func (p suitPerm) card(c poker.Card) poker.Card {
	return poker.NewCard(c.Rank(), p[c.Suit()])
}

// apply relabels a canonical arrangement into the caller's suits.
func (p suitPerm) apply(a Arrangement) Arrangement {
	if p == identityPerm {
		return a
	}
	for i, c := range a.Front {
		a.Front[i] = p.card(c)
	}
	for i, c := range a.Middle {
		a.Middle[i] = p.card(c)
	}
	for i, c := range a.Back {
		a.Back[i] = p.card(c)
	}
	a.normalize()
	return a
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Cache is a bounded LRU of enumerated arrangement sets. It is safe for
// concurrent use. Stored slices are never handed to callers directly.
type Cache struct {
	encoding Encoding
	entries  *lru.Cache[poker.Hand, []Arrangement]
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCache creates a cache holding up to size hands.
func NewCache(size int, encoding Encoding) (*Cache, error) {
	entries, err := lru.New[poker.Hand, []Arrangement](size)
	if err != nil {
		return nil, fmt.Errorf("create arrangement cache: %w", err)
	}
	return &Cache{encoding: encoding, entries: entries}, nil
}

// key returns the cache key for h and the permutation back to h's suits.
func (c *Cache) key(h poker.Hand) (poker.Hand, suitPerm) {
	if c.encoding == EncodingSuitNormalized {
		return normalize(h)
	}
	return h, identityPerm
}

func (c *Cache) get(key poker.Hand, perm suitPerm) ([]Arrangement, bool) {
	arrs, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return remap(arrs, perm), true
}

func (c *Cache) add(key poker.Hand, arrs []Arrangement) {
	c.entries.Add(key, arrs)
}

// Encoding returns the key encoding in use.
func (c *Cache) Encoding() Encoding {
	return c.encoding
}

// Stats returns hit and miss counters and the current entry count.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.entries.Len()}
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

func remap(arrs []Arrangement, perm suitPerm) []Arrangement {
	out := make([]Arrangement, len(arrs))
	for i, a := range arrs {
		out[i] = perm.apply(a)
	}
	return out
}
