package sim

import (
	"strconv"
	"strings"
)

const MaxFoodRate = 10

// Config is the starting setup chosen before a run.
type Config struct {
	Purple int `json:"purple"`
	Orange int `json:"orange"`
	Food   int `json:"food"`
	Rate   int `json:"rate"` // food generation rate, 0..10
}

var DefaultConfig = Config{Purple: 2, Orange: 2, Food: 10, Rate: 2}

// Sanitize clamps every field to >= 0 and the rate to MaxFoodRate. The two
// populations together are capped at r.PopulationLimit, which still collapses
// on the first tick, and food at one item per grid cell.
func (c Config) Sanitize(r Rules) Config {
	c.Purple = atMost(atLeastZero(c.Purple), r.PopulationLimit)
	c.Orange = atMost(atLeastZero(c.Orange), r.PopulationLimit-c.Purple)
	c.Food = atMost(atLeastZero(c.Food), r.GridSize*r.GridSize)
	c.Rate = atLeastZero(c.Rate)
	if c.Rate > MaxFoodRate {
		c.Rate = MaxFoodRate
	}
	return c
}

// ParseCount reads a form value the way the config form does: anything that
// is not an integer counts as 0, and negatives are clamped to 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, func(r rune) bool { return r == '.' || r == 'e' || r == 'E' }); i > 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return atLeastZero(n)
}

func atLeastZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func atMost(n, limit int) int {
	if n > limit {
		return limit
	}
	return n
}
