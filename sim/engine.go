package sim

import (
	"errors"
	"fmt"
	"math/rand"
)

type Species string

const (
	Purple Species = "purple"
	Orange Species = "orange"
)

var ErrUnknownSpecies = errors.New("unknown species")

func ParseSpecies(s string) (Species, error) {
	switch Species(s) {
	case Purple, Orange:
		return Species(s), nil
	}
	return "", fmt.Errorf("parse species %q: %w", s, ErrUnknownSpecies)
}

// Rules holds the constants of the step function. DefaultRules is what the
// simulation runs with; tests override single fields.
type Rules struct {
	GridSize           int
	InitialEnergy      float64
	ReproductionEnergy float64
	ReproductionCost   float64
	FoodEnergy         float64
	MovementCost       float64
	ReproductionChance float64
	MaxFood            int
	PopulationLimit    int
	Reach              float64 // feeding and collision radius
}

var DefaultRules = Rules{
	GridSize:           50,
	InitialEnergy:      100,
	ReproductionEnergy: 150,
	ReproductionCost:   50,
	FoodEnergy:         50,
	MovementCost:       1,
	ReproductionChance: 0.05,
	MaxFood:            30,
	PopulationLimit:    5000,
	Reach:              1.5,
}

type Agent struct {
	ID      int      `json:"id"`
	Pos     Position `json:"pos"`
	Energy  float64  `json:"energy"`
	Species Species  `json:"species"`
}

// World is one tick's snapshot. Step never mutates its input.
type World struct {
	Agents   []Agent    `json:"agents"`
	Food     []Position `json:"food"`
	GridSize int        `json:"grid"`
	NextID   int        `json:"next_id"`
}

func (w World) clone() World {
	out := w
	out.Agents = append([]Agent(nil), w.Agents...)
	out.Food = append([]Position(nil), w.Food...)
	return out
}

func (w *World) allocID() int {
	id := w.NextID
	w.NextID++
	return id
}

type EventKind string

const (
	EventStarted    EventKind = "started"
	EventCollapse   EventKind = "collapse"
	EventExtinction EventKind = "extinction"
	EventDoubled    EventKind = "doubled"
	EventHalved     EventKind = "halved"
	EventCrowded    EventKind = "crowded"
)

type Event struct {
	Kind    EventKind `json:"type"`
	Message string    `json:"message"`
}

// Reason tells why a tick ended the simulation.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonCollapse   Reason = "collapse"
	ReasonExtinction Reason = "extinction"
)

type Outcome struct {
	World  World
	Events []Event
	Over   bool
	Reason Reason
	Births int
	Deaths int
}

// Step advances w by one tick. Every agent is evaluated against the
// pre-tick population; the new population is assembled from the results.
func Step(w World, r Rules, rng *rand.Rand) Outcome {
	next := w.clone()
	prev := w.Agents

	if len(prev) >= r.PopulationLimit {
		next.Agents = []Agent{}
		return Outcome{
			World:  next,
			Events: []Event{{Kind: EventCollapse, Message: "population collapse: the population exceeded the sustainable limit"}},
			Over:   true,
			Reason: ReasonCollapse,
			Deaths: len(prev),
		}
	}

	var out Outcome
	agents := make([]Agent, 0, len(prev))
	for _, a := range prev {
		a.Pos = stepAxis(rng, a.Pos, next.GridSize)
		a.Energy -= r.MovementCost

		if i := nearestFood(next.Food, a.Pos, r.Reach); i >= 0 {
			next.Food = append(next.Food[:i], next.Food[i+1:]...)
			a.Energy += r.FoodEnergy
		}

		if collides(a, prev, r.Reach) || a.Energy <= 0 {
			out.Deaths++
			continue
		}

		if a.Energy >= r.ReproductionEnergy && rng.Float64() < r.ReproductionChance {
			child := Agent{
				ID:      next.allocID(),
				Pos:     stepAxis(rng, a.Pos, next.GridSize),
				Energy:  r.InitialEnergy,
				Species: a.Species,
			}
			a.Energy -= r.ReproductionCost
			agents = append(agents, a, child)
			out.Births++
			continue
		}
		agents = append(agents, a)
	}
	next.Agents = agents
	out.World = next

	if len(agents) == 0 {
		out.Events = append(out.Events, Event{Kind: EventExtinction, Message: "extinction: every bichinho died"})
		out.Over = true
		out.Reason = ReasonExtinction
	}

	switch n, old := len(agents), len(prev); {
	case n > 0 && n >= 2*old:
		out.Events = append(out.Events, Event{Kind: EventDoubled, Message: "the population doubled"})
	case n > 0 && 2*n <= old:
		out.Events = append(out.Events, Event{Kind: EventHalved, Message: "the population was cut in half"})
	}
	return out
}

// nearestFood returns the index of the first food item within reach of p,
// or -1.
func nearestFood(food []Position, p Position, reach float64) int {
	for i, f := range food {
		if Distance(p, f) <= reach {
			return i
		}
	}
	return -1
}

func collides(a Agent, prev []Agent, reach float64) bool {
	for _, o := range prev {
		if o.ID != a.ID && o.Species != a.Species && Distance(a.Pos, o.Pos) <= reach {
			return true
		}
	}
	return false
}

// SpawnFood adds one random food item with probability rate/10 while the
// world holds fewer than MaxFood items.
func SpawnFood(w World, rate float64, r Rules, rng *rand.Rand) (World, bool) {
	if rng.Float64() >= rate/10 || len(w.Food) >= r.MaxFood {
		return w, false
	}
	next := w.clone()
	next.Food = append(next.Food, RandomPosition(rng, next.GridSize))
	return next, true
}

// AddAgent places one agent of species s at a random cell. It refuses once
// the population is one short of the collapse limit.
func AddAgent(w World, s Species, r Rules, rng *rand.Rand) (World, Event, bool) {
	if len(w.Agents) >= r.PopulationLimit-1 {
		return w, Event{Kind: EventCrowded, Message: "warning: close to the population limit"}, false
	}
	next := w.clone()
	a := Agent{
		ID:      next.allocID(),
		Pos:     RandomPosition(rng, next.GridSize),
		Energy:  r.InitialEnergy,
		Species: s,
	}
	next.Agents = append(next.Agents, a)
	return next, Event{}, true
}

// AddFood places one food item at a random cell. Unlike SpawnFood it does
// not look at MaxFood.
func AddFood(w World, rng *rand.Rand) World {
	next := w.clone()
	next.Food = append(next.Food, RandomPosition(rng, next.GridSize))
	return next
}

// NewWorld builds the starting world: purple agents first, then orange,
// then food, all at random cells.
func NewWorld(cfg Config, r Rules, rng *rand.Rand) World {
	w := World{
		Agents:   make([]Agent, 0, cfg.Purple+cfg.Orange),
		Food:     make([]Position, 0, cfg.Food),
		GridSize: r.GridSize,
		NextID:   1,
	}
	for _, g := range []struct {
		species Species
		n       int
	}{{Purple, cfg.Purple}, {Orange, cfg.Orange}} {
		for i := 0; i < g.n; i++ {
			w.Agents = append(w.Agents, Agent{
				ID:      w.allocID(),
				Pos:     RandomPosition(rng, w.GridSize),
				Energy:  r.InitialEnergy,
				Species: g.species,
			})
		}
	}
	for i := 0; i < cfg.Food; i++ {
		w.Food = append(w.Food, RandomPosition(rng, w.GridSize))
	}
	return w
}
