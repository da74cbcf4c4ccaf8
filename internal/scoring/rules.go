package scoring

import (
	"errors"
	"fmt"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/poker"
)

// Rules holds every point value used when settling a round.
type Rules struct {
	FrontTrips          int `hcl:"front_trips,optional" json:"front_trips"`
	MiddleFullHouse     int `hcl:"middle_full_house,optional" json:"middle_full_house"`
	MiddleQuads         int `hcl:"middle_quads,optional" json:"middle_quads"`
	MiddleStraightFlush int `hcl:"middle_straight_flush,optional" json:"middle_straight_flush"`
	BackQuads           int `hcl:"back_quads,optional" json:"back_quads"`
	BackStraightFlush   int `hcl:"back_straight_flush,optional" json:"back_straight_flush"`
	Sweep               int `hcl:"sweep,optional" json:"sweep"`
	ScoopPerOpponent    int `hcl:"scoop_per_opponent,optional" json:"scoop_per_opponent"`
	OverallPerOpponent  int `hcl:"overall_per_opponent,optional" json:"overall_per_opponent"`
}

// DefaultRules returns the standard point schedule.
func DefaultRules() Rules {
	return Rules{
		FrontTrips:          3,
		MiddleFullHouse:     2,
		MiddleQuads:         4,
		MiddleStraightFlush: 5,
		BackQuads:           4,
		BackStraightFlush:   5,
		Sweep:               3,
		ScoopPerOpponent:    6,
		OverallPerOpponent:  1,
	}
}

// Validate rejects negative point values.
func (r Rules) Validate() error {
	values := []struct {
		name  string
		value int
	}{
		{"front_trips", r.FrontTrips},
		{"middle_full_house", r.MiddleFullHouse},
		{"middle_quads", r.MiddleQuads},
		{"middle_straight_flush", r.MiddleStraightFlush},
		{"back_quads", r.BackQuads},
		{"back_straight_flush", r.BackStraightFlush},
		{"sweep", r.Sweep},
		{"scoop_per_opponent", r.ScoopPerOpponent},
		{"overall_per_opponent", r.OverallPerOpponent},
	}
	var errs []error
	for _, v := range values {
		if v.value < 0 {
			errs = append(errs, fmt.Errorf("%s must be non-negative, got %d", v.name, v.value))
		}
	}
	return errors.Join(errs...)
}

// LineBonus returns the category bonus a hand of rank earns on line.
func (r Rules) LineBonus(line arrange.Line, rank poker.HandRank) int {
	cat := rank.Category()
	switch line {
	case arrange.Front:
		if cat == poker.ThreeOfAKind {
			return r.FrontTrips
		}
	case arrange.Middle:
		switch cat {
		case poker.FullHouse:
			return r.MiddleFullHouse
		case poker.FourOfAKind:
			return r.MiddleQuads
		case poker.StraightFlush, poker.RoyalFlush:
			return r.MiddleStraightFlush
		}
	case arrange.Back:
		switch cat {
		case poker.FourOfAKind:
			return r.BackQuads
		case poker.StraightFlush, poker.RoyalFlush:
			return r.BackStraightFlush
		}
	}
	return 0
}

// Bonuses returns the per-line bonuses an arrangement earns. A fouled
// arrangement earns nothing.
func (r Rules) Bonuses(a arrange.Arrangement) [3]int {
	var out [3]int
	if a.Fouled {
		return out
	}
	for _, l := range arrange.Lines {
		out[l] = r.LineBonus(l, a.Rank(l))
	}
	return out
}
