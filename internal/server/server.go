// Package server runs the daemon's control loop: a line protocol on the
// control channel that opens, reconfigures, and closes buffer sessions, with
// a lifecycle state machine and forced resource cleanup on every exit path.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zjrosen/kakhl/internal/config"
	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/kak"
	"github.com/zjrosen/kakhl/internal/log"
	"github.com/zjrosen/kakhl/internal/session"
	"github.com/zjrosen/kakhl/internal/stylecache"
)

// Buffer options set on the editor side when a session opens. The rc script
// reads them to know where to stream snapshots, how to terminate frames, and
// which highlighter name to send in frame headers.
const (
	fifoOption        = "kakhl_fifo"
	sentinelOption    = "kakhl_sentinel"
	highlighterOption = "kakhl_highlighter"
)

// Server ties the registry, the dispatcher, and the guardian together under
// one lifecycle state machine.
type Server struct {
	mu    sync.Mutex
	state State

	store      *config.Store
	dispatcher *session.Dispatcher
	registry   *session.Registry
	guardian   *Guardian
	sender     kak.Sender

	outMu sync.Mutex
	out   io.Writer
}

// New assembles a server in the Starting state. The engine must already be
// loaded; engine failures are startup failures and belong to the caller.
func New(store *config.Store, eng *engine.Engine, guardian *Guardian, sender kak.Sender, out io.Writer) *Server {
	dispatcher := session.NewDispatcher(eng, stylecache.New(), store, sender)
	return &Server{
		state:      StateStarting,
		store:      store,
		dispatcher: dispatcher,
		registry:   session.NewRegistry(guardian.Dir(), dispatcher, guardian),
		guardian:   guardian,
		sender:     sender,
		out:        out,
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registry exposes the session table, mainly for tests and diagnostics.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

func (s *Server) transition(target State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(target) {
		return fmt.Errorf("invalid state transition from %s to %s", s.state, target)
	}
	log.Debug(log.CatServer, "state transition", "from", s.state, "to", target)
	s.state = target
	return nil
}

// Run serves the control protocol until the channel closes or ctx is
// cancelled, then drains sessions and releases all resources. The returned
// error covers shutdown anomalies only; per-command failures are reported on
// the control channel and logged.
func (s *Server) Run(ctx context.Context, in io.Reader) error {
	if err := s.transition(StateReady); err != nil {
		return err
	}
	log.Info(log.CatServer, "server ready", "base_dir", s.guardian.Dir())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.ErrorErr(log.CatServer, "control channel read failed", err)
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				log.Info(log.CatServer, "control channel closed")
				break loop
			}
			s.handleCommand(ctx, line)
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	if err := s.transition(StateShuttingDown); err != nil {
		return err
	}

	grace := s.store.Current().GracePeriod
	abandoned := s.registry.CloseAll(grace)
	if abandoned > 0 {
		log.Warn(log.CatServer, "sessions abandoned at shutdown", "count", abandoned)
	}

	s.guardian.Release()
	if err := s.transition(StateStopped); err != nil {
		return err
	}
	log.Info(log.CatServer, "server stopped")
	return nil
}

// handleCommand parses and executes one control line. Nothing here is fatal:
// a malformed or failing command is answered with ERR and the loop goes on.
func (s *Server) handleCommand(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "PING":
		s.reply("PONG")

	case "INIT":
		if len(fields) != 6 {
			s.replyErr("INIT expects <session> <buffer> <token> <language> <theme>")
			return
		}
		s.handleInit(ctx, fields[1], fields[2], fields[3], fields[4], fields[5])

	case "SET_THEME":
		if len(fields) != 3 {
			s.replyErr("SET_THEME expects <buffer> <theme>")
			return
		}
		s.handleSetTheme(fields[1], fields[2])

	case "CLOSE":
		if len(fields) != 2 {
			s.replyErr("CLOSE expects <token>")
			return
		}
		if !s.registry.Close(fields[1]) {
			log.Debug(log.CatServer, "close for unknown token", "token", fields[1])
		}

	default:
		log.Warn(log.CatServer, "unknown control command", "command", fields[0])
		s.replyErr("unknown command " + fields[0])
	}
}

func (s *Server) handleInit(ctx context.Context, sessionID, buffer, token, language, theme string) {
	if s.State() != StateReady {
		s.replyErr("shutting down, refusing new sessions")
		return
	}

	sess, err := s.registry.Open(ctx, token, session.OpenParams{
		SessionID: sessionID,
		Buffer:    buffer,
		Language:  language,
		Theme:     theme,
	})
	if err != nil {
		log.ErrorErr(log.CatServer, "failed to open session", err, "token", token, "buffer", buffer)
		s.replyErr(err.Error())
		return
	}

	// Tell the editor where this buffer's snapshot pipe lives, which sentinel
	// terminates a frame, and the highlighter name resolved from the
	// configured highlighter_map.
	highlighter := s.store.Current().ResolveHighlighter(language)
	payload := fmt.Sprintf("set-option buffer %s '%s'\nset-option buffer %s '%s'\nset-option buffer %s '%s'\n",
		fifoOption, kak.Quote(sess.PipePath),
		sentinelOption, kak.Quote(sess.Sentinel),
		highlighterOption, kak.Quote(highlighter))
	if err := s.sender.Send(sessionID, buffer, payload); err != nil {
		log.ErrorErr(log.CatServer, "failed to announce session pipe", err,
			"session", sessionID, "buffer", buffer)
	}
}

func (s *Server) handleSetTheme(buffer, theme string) {
	sess, ok := s.registry.FindByBuffer(buffer)
	if !ok {
		log.Warn(log.CatServer, "theme switch for unknown buffer", "buffer", buffer)
		s.replyErr("no session for buffer " + buffer)
		return
	}
	s.dispatcher.SwitchTheme(sess, theme)
}

func (s *Server) reply(line string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := io.WriteString(s.out, line+"\n"); err != nil {
		log.ErrorErr(log.CatServer, "control channel write failed", err)
	}
}

func (s *Server) replyErr(msg string) {
	s.reply("ERR " + msg)
}
