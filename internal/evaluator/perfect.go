package evaluator

import (
	"fmt"

	"github.com/opencoff/go-chd"

	"github.com/lox/chinesepoker/poker"
)

// PerfectTable stores ranks behind a CHD minimal perfect hash. The hash maps
// every known key to a distinct slot; unknown keys land on an arbitrary slot,
// so each slot keeps its key for verification.
type PerfectTable struct {
	index *chd.Chd
	keys  []poker.Key
	ranks []poker.HandRank
	n     int
}

// NewPerfectTable freezes src into a perfect hash table.
func NewPerfectTable(src MapTable) (*PerfectTable, error) {
	b, err := chd.New()
	if err != nil {
		return nil, fmt.Errorf("create chd builder: %w", err)
	}
	for k := range src {
		if err := b.Add(uint64(k)); err != nil {
			return nil, fmt.Errorf("add key %#x: %w", uint64(k), err)
		}
	}
	index, err := b.Freeze(0.9)
	if err != nil {
		return nil, fmt.Errorf("freeze chd: %w", err)
	}

	slots := make(map[poker.Key]uint64, len(src))
	var size uint64
	for k := range src {
		slot := index.Find(uint64(k))
		slots[k] = slot
		size = max(size, slot+1)
	}

	t := &PerfectTable{
		index: index,
		keys:  make([]poker.Key, size),
		ranks: make([]poker.HandRank, size),
		n:     len(src),
	}
	for k, slot := range slots {
		if t.ranks[slot] != 0 {
			return nil, fmt.Errorf("chd slot %d assigned twice", slot)
		}
		t.keys[slot] = k
		t.ranks[slot] = src[k]
	}
	return t, nil
}

// Lookup returns the rank for key, or false when the key is not in the table.
func (t *PerfectTable) Lookup(key poker.Key) (poker.HandRank, bool) {
	slot := t.index.Find(uint64(key))
	if slot >= uint64(len(t.keys)) || t.keys[slot] != key {
		return 0, false
	}
	return t.ranks[slot], true
}

// Len returns the number of stored ranks.
func (t *PerfectTable) Len() int {
	return t.n
}
