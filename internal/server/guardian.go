package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/zjrosen/kakhl/internal/log"
)

// Guardian owns the per-run base directory and every pipe created under it.
// Release runs exactly once across all exit paths, so a crash signal, a
// normal shutdown, and a startup failure all converge on the same cleanup.
type Guardian struct {
	dir string

	mu    sync.Mutex
	pipes map[string]struct{}

	once sync.Once
}

// NewGuardian creates the base directory. An empty baseDir allocates a
// fresh temp directory for this run.
func NewGuardian(baseDir string) (*Guardian, error) {
	if baseDir == "" {
		dir, err := os.MkdirTemp("", "kakhl-")
		if err != nil {
			return nil, fmt.Errorf("creating temp directory: %w", err)
		}
		baseDir = dir
	} else if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating base directory %s: %w", baseDir, err)
	}
	return &Guardian{dir: baseDir, pipes: make(map[string]struct{})}, nil
}

// Dir returns the base directory pipes are provisioned under.
func (g *Guardian) Dir() string {
	return g.dir
}

// RegisterPipe records a pipe for forced cleanup.
func (g *Guardian) RegisterPipe(path string) {
	g.mu.Lock()
	g.pipes[path] = struct{}{}
	g.mu.Unlock()
}

// ReleasePipe removes a pipe from disk and from tracking. A pipe that is
// already gone is not an error; release paths race with each other by design
// of the idempotent close semantics.
func (g *Guardian) ReleasePipe(path string) {
	g.mu.Lock()
	delete(g.pipes, path)
	g.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn(log.CatServer, "failed to remove pipe", "path", path, "error", err)
	}
}

// Release force-removes every remaining pipe and the base directory.
// Safe to call from any exit path; only the first call does work.
func (g *Guardian) Release() {
	g.once.Do(func() {
		g.mu.Lock()
		remaining := make([]string, 0, len(g.pipes))
		for path := range g.pipes {
			remaining = append(remaining, path)
		}
		g.pipes = make(map[string]struct{})
		g.mu.Unlock()

		for _, path := range remaining {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn(log.CatServer, "failed to remove abandoned pipe", "path", path, "error", err)
			}
		}
		if err := os.RemoveAll(g.dir); err != nil {
			log.Warn(log.CatServer, "failed to remove base directory", "dir", g.dir, "error", err)
		}
		log.Info(log.CatServer, "resources released", "dir", g.dir, "abandoned_pipes", len(remaining))
	})
}

// NotifySignals cancels the given context on SIGINT or SIGTERM. The server's
// shutdown path then drains sessions and calls Release.
func (g *Guardian) NotifySignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		log.Info(log.CatServer, "signal received, shutting down", "signal", sig.String())
		cancel()
	}()
}
