package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	uuid "github.com/satori/go.uuid"
)

const (
	StepInterval  = 100 * time.Millisecond
	SpawnInterval = 100 * time.Millisecond
	ClockInterval = time.Second

	eventLogSize = 5
)

var (
	ErrNotRunning     = errors.New("simulation is not running")
	ErrAlreadyStarted = errors.New("simulation already started")
)

// Entry is an event as it appears in the log shown to the viewer.
type Entry struct {
	Event
	Time time.Time `json:"time"`
}

type Metrics struct {
	Purple    int     `json:"purple"`
	Orange    int     `json:"orange"`
	Food      int     `json:"food"`
	AvgEnergy float64 `json:"avg_energy"`
	Births    int     `json:"births"`
	Deaths    int     `json:"deaths"`
	Ticks     int     `json:"ticks"`
}

// State is a read-only copy of everything a viewer draws.
type State struct {
	Type       string     `json:"type"`
	RunID      string     `json:"run_id"`
	Started    bool       `json:"started"`
	GameOver   bool       `json:"game_over"`
	Reason     Reason     `json:"reason,omitempty"`
	Grid       int        `json:"grid"`
	Agents     []Agent    `json:"agents"`
	Food       []Position `json:"food"`
	Metrics    Metrics    `json:"metrics"`
	Elapsed    string     `json:"elapsed"`
	FinalScore string     `json:"final_score,omitempty"`
	Events     []Entry    `json:"events"`
}

// Sim owns one world and the clocks around it. Every exported method runs
// under the lock, so observers never see half a tick.
type Sim struct {
	mu     sync.Mutex
	rules  Rules
	cfg    Config
	world  World
	rand   *rand.Rand
	logger *log.Logger
	now    func() time.Time

	runID        uuid.UUID
	started      bool
	over         bool
	reason       Reason
	ticksElapsed int
	seconds      int
	finalScore   int
	totalBirths  int
	totalDeaths  int
	events       []Entry

	StateChan chan State
}

func NewSim(rules Rules, rng *rand.Rand, logger *log.Logger) *Sim {
	s := &Sim{
		rules:     rules,
		cfg:       DefaultConfig,
		rand:      rng,
		logger:    logger,
		now:       time.Now,
		StateChan: make(chan State, 10),
	}
	s.clear()
	return s
}

func (s *Sim) clear() {
	s.world = World{Agents: []Agent{}, Food: []Position{}, GridSize: s.rules.GridSize, NextID: 1}
	s.runID = uuid.Nil
	s.started = false
	s.over = false
	s.reason = ReasonNone
	s.ticksElapsed = 0
	s.seconds = 0
	s.finalScore = 0
	s.totalBirths = 0
	s.totalDeaths = 0
	s.events = s.events[:0]
}

func (s *Sim) active() bool { return s.started && !s.over }

func (s *Sim) addEvent(e Event) {
	s.events = append(s.events, Entry{Event: e, Time: s.now()})
	if len(s.events) > eventLogSize {
		s.events = append(s.events[:0], s.events[len(s.events)-eventLogSize:]...)
	}
}

// Start builds a fresh world from cfg after Sanitize.
func (s *Sim) Start(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.clear()
	s.cfg = cfg.Sanitize(s.rules)
	s.world = NewWorld(s.cfg, s.rules, s.rand)
	s.runID = uuid.Must(uuid.NewV4())
	s.started = true
	s.addEvent(Event{Kind: EventStarted, Message: "simulation started"})
	s.logger.Info("simulation started", "run", s.runID, "purple", s.cfg.Purple,
		"orange", s.cfg.Orange, "food", s.cfg.Food, "rate", s.cfg.Rate)
	s.publish()
	return nil
}

// Reset drops the current run and returns to the idle state.
func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.logger.Info("simulation reset", "run", s.runID, "ticks", s.ticksElapsed)
	}
	s.clear()
	s.publish()
}

// Tick runs one step of the engine.
func (s *Sim) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return
	}
	s.ticksElapsed++

	out := Step(s.world, s.rules, s.rand)
	s.world = out.World
	s.totalBirths += out.Births
	s.totalDeaths += out.Deaths
	for _, e := range out.Events {
		s.addEvent(e)
	}
	if out.Over {
		s.over = true
		s.reason = out.Reason
		s.finalScore = s.seconds
		s.logger.Info("simulation over", "run", s.runID, "reason", out.Reason,
			"ticks", s.ticksElapsed, "score", FormatTime(s.finalScore))
	}
	s.publish()
}

// SpawnTick gives the food spawner one chance to drop food.
func (s *Sim) SpawnTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return
	}
	w, ok := SpawnFood(s.world, float64(s.cfg.Rate), s.rules, s.rand)
	if !ok {
		return
	}
	s.world = w
	s.publish()
}

// ClockTick advances the elapsed-time counter by one second.
func (s *Sim) ClockTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return
	}
	s.seconds++
	s.publish()
}

// AddAgent drops one agent of species sp at a random cell. It reports false
// when the population is too close to the limit.
func (s *Sim) AddAgent(sp Species) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return false, ErrNotRunning
	}
	w, ev, ok := AddAgent(s.world, sp, s.rules, s.rand)
	if !ok {
		s.addEvent(ev)
		s.logger.Warn("agent rejected", "run", s.runID, "species", sp, "population", len(s.world.Agents))
		s.publish()
		return false, nil
	}
	s.world = w
	s.publish()
	return true, nil
}

func (s *Sim) AddFood() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return ErrNotRunning
	}
	s.world = AddFood(s.world, s.rand)
	s.publish()
	return nil
}

func (s *Sim) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Sim) snapshot() State {
	st := State{
		Type:     "state",
		Started:  s.started,
		GameOver: s.over,
		Reason:   s.reason,
		Grid:     s.world.GridSize,
		Agents:   append([]Agent{}, s.world.Agents...),
		Food:     append([]Position{}, s.world.Food...),
		Elapsed:  FormatTime(s.seconds),
		Events:   append([]Entry{}, s.events...),
	}
	if s.runID != uuid.Nil {
		st.RunID = s.runID.String()
	}
	if s.over {
		st.FinalScore = FormatTime(s.finalScore)
	}

	m := Metrics{
		Food:   len(s.world.Food),
		Births: s.totalBirths,
		Deaths: s.totalDeaths,
		Ticks:  s.ticksElapsed,
	}
	sum := 0.0
	for _, a := range s.world.Agents {
		switch a.Species {
		case Purple:
			m.Purple++
		case Orange:
			m.Orange++
		}
		sum += a.Energy
	}
	if n := len(s.world.Agents); n > 0 {
		m.AvgEnergy = sum / float64(n)
	}
	st.Metrics = m
	return st
}

func (s *Sim) publish() {
	select {
	case s.StateChan <- s.snapshot():
	default:
	}
}

// Run drives the step, food and clock tickers from a single goroutine until
// ctx is done.
func (s *Sim) Run(ctx context.Context) error {
	step := time.NewTicker(StepInterval)
	defer step.Stop()
	spawn := time.NewTicker(SpawnInterval)
	defer spawn.Stop()
	clock := time.NewTicker(ClockInterval)
	defer clock.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-step.C:
			s.Tick()
		case <-spawn.C:
			s.SpawnTick()
		case <-clock.C:
			s.ClockTick()
		}
	}
}
