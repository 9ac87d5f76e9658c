package sim

import (
	"math"
	"math/rand"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Wrap moves coord by delta on a ring of the given size.
func Wrap(coord, delta, size int) int {
	return ((coord+delta)%size + size) % size
}

// Distance is plain Euclidean distance on grid coordinates. It does not
// look across the wrapped edges, so cells on opposite borders are far apart
// even though movement wraps between them.
func Distance(a, b Position) float64 {
	dx := math.Abs(float64(a.X - b.X))
	dy := math.Abs(float64(a.Y - b.Y))
	return math.Sqrt(dx*dx + dy*dy)
}

func RandomPosition(rng *rand.Rand, size int) Position {
	return Position{X: rng.Intn(size), Y: rng.Intn(size)}
}

// stepAxis shifts p by ±1 along a randomly chosen axis.
func stepAxis(rng *rand.Rand, p Position, size int) Position {
	moveX := rng.Float64() < 0.5
	delta := 1
	if rng.Float64() < 0.5 {
		delta = -1
	}
	if moveX {
		p.X = Wrap(p.X, delta, size)
	} else {
		p.Y = Wrap(p.Y, delta, size)
	}
	return p
}
