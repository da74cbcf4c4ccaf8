package arrange

import (
	"cmp"
	"slices"
)

// Dominant returns the arrangements no other arrangement dominates, in their
// original order. Arrangements with identical line ranks are all kept.
//
// Candidates are visited strongest Back first, so any dominator of a
// candidate has already been seen, and by transitivity some kept maximum
// dominates it too. Only the kept maxima need checking.
func Dominant(arrs []Arrangement) []Arrangement {
	order := make([]int, len(arrs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		ra, rb := arrs[a].Ranks, arrs[b].Ranks
		if c := cmp.Compare(rb[Back], ra[Back]); c != 0 {
			return c
		}
		if c := cmp.Compare(rb[Middle], ra[Middle]); c != 0 {
			return c
		}
		return cmp.Compare(rb[Front], ra[Front])
	})

	keep := make([]bool, len(arrs))
	var maxima []int
	for _, i := range order {
		dominated := false
		for _, m := range maxima {
			if arrs[m].Dominates(arrs[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			keep[i] = true
			maxima = append(maxima, i)
		}
	}

	out := make([]Arrangement, 0, len(maxima))
	for i, a := range arrs {
		if keep[i] {
			out = append(out, a)
		}
	}
	return out
}
