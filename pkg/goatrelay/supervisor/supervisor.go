// Package supervisor keeps a single worker process alive across
// deliberate restarts. The worker signals that it wants to be respawned
// by exiting with a well-known code; any other failure is treated as a
// crash and the supervisor gives up rather than loop on a broken binary.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	// RestartExitCode is the code a worker exits with to request a respawn.
	RestartExitCode = 2

	defaultMaxRestarts  = 5
	defaultRespawnDelay = 2 * time.Second
	defaultResetWindow  = 5 * time.Minute
	defaultHealthPort   = "3000"
)

// decision is the supervisor's verdict after a worker exit.
type decision int

const (
	decisionClean   decision = iota // exit 0, shut down normally
	decisionRespawn                 // restart requested, budget remains
	decisionGiveUp                  // restart requested but budget exhausted
	decisionCrash                   // unexpected exit, do not respawn
)

// Config controls how the supervisor spawns and polices its worker.
type Config struct {
	// Command is the worker argv. Defaults to re-executing the current
	// binary with the given WorkerArgs.
	Command []string

	MaxRestarts  int           // respawns allowed per reset window
	RespawnDelay time.Duration // pause before each respawn
	ResetWindow  time.Duration // restart counter resets after this
	HealthAddr   string        // health endpoint bind address, "" disables
}

func (c *Config) fillDefaults() {
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = defaultMaxRestarts
	}
	if c.RespawnDelay <= 0 {
		c.RespawnDelay = defaultRespawnDelay
	}
	if c.ResetWindow <= 0 {
		c.ResetWindow = defaultResetWindow
	}
	if c.HealthAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = defaultHealthPort
		}
		c.HealthAddr = ":" + port
	}
}

// Supervisor spawns a worker process and respawns it when the worker
// exits with RestartExitCode, up to MaxRestarts per ResetWindow.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	restarts  int
	pid       int
	startedAt time.Time
	spawns    int
}

// New builds a supervisor. The config is copied and defaulted.
func New(cfg Config, logger *slog.Logger) *Supervisor {
	cfg.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, logger: logger, startedAt: time.Now()}
}

// decide classifies a worker exit given the restarts already spent in
// the current window.
func decide(exitCode, restarts, maxRestarts int) decision {
	switch {
	case exitCode == 0:
		return decisionClean
	case exitCode != RestartExitCode:
		return decisionCrash
	case restarts >= maxRestarts:
		return decisionGiveUp
	default:
		return decisionRespawn
	}
}

// Run spawns the worker and blocks until the worker exits cleanly, the
// restart budget is exhausted, the worker crashes, or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Command) == 0 {
		return errors.New("supervisor: empty worker command")
	}

	if s.cfg.HealthAddr != "" {
		s.serveHealth(ctx)
	}

	reset := time.NewTicker(s.cfg.ResetWindow)
	defer reset.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reset.C:
				s.mu.Lock()
				if s.restarts > 0 {
					s.logger.Debug("restart counter reset", "had", s.restarts)
				}
				s.restarts = 0
				s.mu.Unlock()
			}
		}
	}()

	for {
		code, err := s.spawn(ctx)
		if err != nil {
			return fmt.Errorf("spawning worker: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.mu.Lock()
		restarts := s.restarts
		s.mu.Unlock()

		switch decide(code, restarts, s.cfg.MaxRestarts) {
		case decisionClean:
			s.logger.Info("worker exited cleanly")
			return nil
		case decisionCrash:
			s.logger.Error("worker crashed, not respawning", "exit_code", code)
			return fmt.Errorf("worker exited with code %d", code)
		case decisionGiveUp:
			s.logger.Error("restart budget exhausted", "restarts", restarts)
			return fmt.Errorf("worker restarted %d times within %s, giving up", restarts, s.cfg.ResetWindow)
		case decisionRespawn:
			s.mu.Lock()
			s.restarts++
			n := s.restarts
			s.mu.Unlock()
			s.logger.Info("worker requested restart", "attempt", n, "max", s.cfg.MaxRestarts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RespawnDelay):
			}
		}
	}
}

// spawn runs one worker to completion and returns its exit code.
func (s *Supervisor) spawn(ctx context.Context) (int, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.pid = cmd.Process.Pid
	s.spawns++
	s.mu.Unlock()
	s.logger.Info("worker started", "pid", cmd.Process.Pid)

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// healthStatus is the JSON body served on the health endpoint.
type healthStatus struct {
	Status    string `json:"status"`
	PID       int    `json:"pid"`
	Restarts  int    `json:"restarts"`
	Spawns    int    `json:"spawns"`
	UptimeSec int64  `json:"uptime_seconds"`
}

func (s *Supervisor) snapshot() healthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return healthStatus{
		Status:    "ok",
		PID:       s.pid,
		Restarts:  s.restarts,
		Spawns:    s.spawns,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	}
}

// serveHealth starts the liveness endpoint in the background. Failure to
// bind is logged but does not stop supervision.
func (s *Supervisor) serveHealth(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.snapshot())
	})

	srv := &http.Server{Addr: s.cfg.HealthAddr, Handler: mux}
	go func() {
		s.logger.Info("health endpoint listening", "addr", s.cfg.HealthAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("health endpoint failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
