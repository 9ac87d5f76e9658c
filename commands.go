package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/vl4deee11/bichinhos/sim"
)

var errUnknownCommand = errors.New("unknown command")

// handleCommand applies one viewer message to the simulation.
func handleCommand(s *sim.Sim, msg map[string]interface{}) error {
	typeStr, _ := msg["type"].(string)
	switch typeStr {
	case "start":
		def := sim.DefaultConfig
		cfg := sim.Config{
			Purple: intField(msg, "purple", def.Purple),
			Orange: intField(msg, "orange", def.Orange),
			Food:   intField(msg, "food", def.Food),
			Rate:   intField(msg, "rate", def.Rate),
		}
		if err := s.Start(cfg); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	case "add_agent":
		name, _ := msg["species"].(string)
		sp, err := sim.ParseSpecies(name)
		if err != nil {
			return fmt.Errorf("add_agent: %w", err)
		}
		if _, err := s.AddAgent(sp); err != nil {
			return fmt.Errorf("add_agent: %w", err)
		}
	case "add_food":
		if err := s.AddFood(); err != nil {
			return fmt.Errorf("add_food: %w", err)
		}
	case "reset":
		s.Reset()
	default:
		return fmt.Errorf("%q: %w", typeStr, errUnknownCommand)
	}
	return nil
}

// intField reads a count from a decoded JSON message. Numbers and numeric
// strings are accepted; anything else reads as 0. A missing key yields def.
func intField(msg map[string]interface{}, key string, def int) int {
	raw, ok := msg[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return 0
		}
		if v > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(v)
	case string:
		return sim.ParseCount(v)
	}
	return 0
}
