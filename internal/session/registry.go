package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zjrosen/kakhl/internal/fifo"
	"github.com/zjrosen/kakhl/internal/log"
)

// ErrSessionExists is returned when opening a token that is still active.
// The editor side generates collision-free tokens, so a hit here means a
// stale hook fired before the old session finished closing.
var ErrSessionExists = errors.New("session token already active")

// Registrar records filesystem objects with the resource guardian so they
// are released on every exit path, including crash signals.
type Registrar interface {
	RegisterPipe(path string)
	ReleasePipe(path string)
}

type entry struct {
	session *Session
	cancel  context.CancelFunc
}

// Registry is the process-wide table of active buffer sessions, keyed by
// token. It is the only structure mutated by more than one goroutine.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	baseDir    string
	dispatcher *Dispatcher
	resources  Registrar
}

// NewRegistry creates an empty registry. Pipes are provisioned under
// baseDir and recorded with the registrar.
func NewRegistry(baseDir string, dispatcher *Dispatcher, resources Registrar) *Registry {
	return &Registry{
		sessions:   make(map[string]*entry),
		baseDir:    baseDir,
		dispatcher: dispatcher,
		resources:  resources,
	}
}

// Open provisions a session's pipe and starts its reader and dispatch
// loops. Fails with ErrSessionExists while the token is still active; a
// pipe or directory failure is fatal to this open request only.
func (r *Registry) Open(ctx context.Context, token string, params OpenParams) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[token]; ok {
		select {
		case <-existing.session.Done():
			// Loop already exited; the entry is stale and may be replaced.
			// Cancel anyway so the pipe reader's child context is not leaked
			// when the loop died without going through Close.
			existing.cancel()
			delete(r.sessions, token)
		default:
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, token)
		}
	}

	path, sentinel, err := fifo.Provision(token, r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("provisioning pipe for %s: %w", token, err)
	}
	r.resources.RegisterPipe(path)

	s := New(token, params, path, sentinel)
	sctx, cancel := context.WithCancel(ctx)

	go func() {
		if err := fifo.ReadFrames(sctx, path, sentinel, s.inbox); err != nil {
			log.ErrorErr(log.CatFifo, "pipe reader failed", err, "token", token)
		}
	}()
	go func() {
		r.dispatcher.Run(s)
		r.resources.ReleasePipe(path)
		log.Debug(log.CatSession, "session loop finished", "token", token)
	}()

	r.sessions[token] = &entry{session: s, cancel: cancel}
	log.Info(log.CatSession, "session opened",
		"token", token, "buffer", params.Buffer, "language", params.Language)
	return s, nil
}

// Lookup returns the session for a token.
func (r *Registry) Lookup(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// FindByBuffer returns the session highlighting the named buffer.
// Theme-switch requests are keyed by buffer name, not token.
func (r *Registry) FindByBuffer(buffer string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.sessions {
		if e.session.Buffer == buffer {
			return e.session, true
		}
	}
	return nil, false
}

// Close tears down the session for a token. Idempotent: closing an unknown
// or already-closed token reports false, never an error, since editor-side
// close notifications race with natural session end.
func (r *Registry) Close(token string) bool {
	r.mu.Lock()
	e, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	e.session.Disable()
	e.cancel()
	log.Info(log.CatSession, "session closed", "token", token)
	return true
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll cancels every session and waits up to grace for the loops to
// drain. Returns the number of sessions abandoned to the guardian's forced
// cleanup.
func (r *Registry) CloseAll(grace time.Duration) (abandoned int) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for token, e := range r.sessions {
		entries = append(entries, e)
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Disable()
		e.cancel()
	}

	deadline := time.After(grace)
	for _, e := range entries {
		select {
		case <-e.session.Done():
		case <-deadline:
			abandoned++
			log.Warn(log.CatSession, "session did not drain within grace period",
				"token", e.session.Token)
		}
	}
	return abandoned
}
