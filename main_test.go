package main

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/vl4deee11/bichinhos/sim"
)

func newTestSim() *sim.Sim {
	return sim.NewSim(sim.DefaultRules, rand.New(rand.NewSource(42)), log.New(io.Discard))
}

func TestIntField(t *testing.T) {
	msg := map[string]interface{}{
		"num":   float64(4),
		"neg":   float64(-2),
		"str":   "7",
		"bad":   "seven",
		"huge":  1e300,
		"other": true,
	}
	tests := []struct {
		key  string
		want int
	}{
		{"num", 4},
		{"neg", 0},
		{"str", 7},
		{"bad", 0},
		{"huge", 1<<31 - 1},
		{"other", 0},
		{"missing", 9},
	}
	for _, tt := range tests {
		if got := intField(msg, tt.key, 9); got != tt.want {
			t.Errorf("intField(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestHandleCommand(t *testing.T) {
	s := newTestSim()

	if err := handleCommand(s, map[string]interface{}{"type": "fly"}); !errors.Is(err, errUnknownCommand) {
		t.Errorf("unknown command: got %v", err)
	}
	if err := handleCommand(s, map[string]interface{}{"type": "add_food"}); !errors.Is(err, sim.ErrNotRunning) {
		t.Errorf("add_food before start: got %v", err)
	}

	start := map[string]interface{}{"type": "start", "purple": "3", "orange": "-1", "food": "abc"}
	if err := handleCommand(s, start); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := s.Snapshot()
	if st.Metrics.Purple != 3 || st.Metrics.Orange != 0 || st.Metrics.Food != 0 {
		t.Errorf("sanitised start: %+v", st.Metrics)
	}
	if err := handleCommand(s, start); !errors.Is(err, sim.ErrAlreadyStarted) {
		t.Errorf("second start: got %v", err)
	}

	if err := handleCommand(s, map[string]interface{}{"type": "add_agent", "species": "green"}); !errors.Is(err, sim.ErrUnknownSpecies) {
		t.Errorf("bad species: got %v", err)
	}
	if err := handleCommand(s, map[string]interface{}{"type": "add_agent", "species": "orange"}); err != nil {
		t.Fatalf("add_agent: %v", err)
	}
	if err := handleCommand(s, map[string]interface{}{"type": "add_food"}); err != nil {
		t.Fatalf("add_food: %v", err)
	}
	st = s.Snapshot()
	if st.Metrics.Orange != 1 || st.Metrics.Food != 1 {
		t.Errorf("after commands: %+v", st.Metrics)
	}

	if err := handleCommand(s, map[string]interface{}{"type": "reset"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Snapshot().Started {
		t.Error("reset should stop the run")
	}
}

func TestHandleCommandHugeStart(t *testing.T) {
	s := newTestSim()
	start := map[string]interface{}{"type": "start", "purple": "1099511627776", "orange": 1e12, "food": "1099511627776"}
	if err := handleCommand(s, start); err != nil {
		t.Fatalf("start: %v", err)
	}
	m := s.Snapshot().Metrics
	if m.Purple+m.Orange != sim.DefaultRules.PopulationLimit {
		t.Errorf("population should be capped at %d, got %d", sim.DefaultRules.PopulationLimit, m.Purple+m.Orange)
	}
}

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	logger := log.New(io.Discard)
	hub := NewHub(logger)
	srv := httptest.NewServer(newMux(newTestSim(), hub, t.TempDir(), logger))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	// config + initial state
	for i := 0; i < 2; i++ {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
	}
	return hub, conn
}

func TestHubDropsFailedClient(t *testing.T) {
	hub, _ := dialTestHub(t)
	if hub.Len() != 1 {
		t.Fatalf("hub should hold one client, has %d", hub.Len())
	}
	for _, c := range hub.list() {
		c.conn.Close()
	}
	hub.Broadcast(map[string]string{"type": "ping"})
	if hub.Len() != 0 {
		t.Errorf("failed client should be dropped, hub has %d", hub.Len())
	}
}

func TestHubPump(t *testing.T) {
	hub, conn := dialTestHub(t)
	states := make(chan sim.State, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- hub.Pump(ctx, states) }()

	states <- sim.State{Type: "state", Grid: 7}
	var st sim.State
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if st.Grid != 7 {
		t.Errorf("pumped state: %+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Pump: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not stop after cancel")
	}
}

func TestWebsocketSession(t *testing.T) {
	s := newTestSim()
	logger := log.New(io.Discard)
	hub := NewHub(logger)
	srv := httptest.NewServer(newMux(s, hub, t.TempDir(), logger))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var cfg map[string]interface{}
	if err := conn.ReadJSON(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["type"] != "config" || cfg["grid"] != float64(sim.DefaultRules.GridSize) {
		t.Errorf("config message: %v", cfg)
	}
	var st sim.State
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if st.Type != "state" || st.Started {
		t.Errorf("initial state: %+v", st)
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "start", "purple": 2}); err != nil {
		t.Fatal(err)
	}
	var reply map[string]string
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply["ok"] != "received" {
		t.Errorf("start reply: %v", reply)
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "add_agent", "species": "blue"}); err != nil {
		t.Fatal(err)
	}
	reply = nil
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply["error"], "unknown species") {
		t.Errorf("bad species reply: %v", reply)
	}

	if hub.Len() != 1 {
		t.Errorf("hub should hold one client, has %d", hub.Len())
	}
	hub.Broadcast(s.Snapshot())
	st = sim.State{}
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Started || st.Metrics.Purple != 2 {
		t.Errorf("broadcast state: %+v", st.Metrics)
	}
}
