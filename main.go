package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vl4deee11/bichinhos/sim"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func main() {
	basePort := flag.Int("port", 8080, "first port to try; the next 9 are tried if it is taken")
	static := flag.String("static", "static", "directory served at /")
	seed := flag.Int64("seed", 0, "random seed, 0 picks one from the clock")
	grid := flag.Int("grid", sim.DefaultRules.GridSize, "side of the square grid")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "bichinhos"})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", basePort)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rules := sim.DefaultRules
	if *grid > 0 {
		rules.GridSize = *grid
	}

	s := sim.NewSim(rules, rand.New(rand.NewSource(*seed)), logger)
	hub := NewHub(logger)
	logger.Debug("simulation ready", "seed", *seed, "grid", rules.GridSize)

	ln, err := listen(*basePort, logger)
	if err != nil {
		logger.Fatal("unable to start server on any port", "err", err)
	}
	srv := &http.Server{Handler: newMux(s, hub, *static, logger)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(ctx) })
	g.Go(func() error { return hub.Pump(ctx, s.StateChan) })
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
	logger.Info("server stopped")
}

func listen(basePort int, logger *log.Logger) (net.Listener, error) {
	var lastErr error
	for i := 0; i < 10; i++ {
		addr := fmt.Sprintf(":%d", basePort+i)
		logger.Info("trying to start server", "addr", addr)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Warn("failed to listen", "addr", addr, "err", err)
			lastErr = err
			continue
		}
		logger.Info("server started", "url", fmt.Sprintf("http://localhost:%d", basePort+i))
		return ln, nil
	}
	return nil, lastErr
}

func newMux(s *sim.Sim, hub *Hub, static string, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade failed", "err", err)
			return
		}
		client := &Client{conn: conn}
		hub.Add(client)
		defer hub.Remove(client)

		st := s.Snapshot()
		_ = client.Send(map[string]interface{}{"type": "config", "grid": st.Grid})
		_ = client.Send(st)

		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				break
			}
			if err := handleCommand(s, msg); err != nil {
				logger.Warn("command rejected", "remote", conn.RemoteAddr(), "err", err)
				_ = client.Send(map[string]string{"error": err.Error()})
				continue
			}
			_ = client.Send(map[string]string{"ok": "received"})
		}
	})
	mux.Handle("/", http.FileServer(http.Dir(static)))
	return mux
}
