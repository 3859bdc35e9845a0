// Package session owns the per-buffer unit of work: one inbound pipe, one
// reader/dispatch loop, the current language and theme, and the rate-limit
// clock. Sessions never share mutable state with each other; the registry
// map is the only structure touched by more than one goroutine.
package session

import (
	"sync"
	"time"
)

// Session tracks one buffer's highlighting state for the lifetime of that
// buffer. Language and theme are mutated by the reader loop (message
// headers) and the theme-switch request path; everything else is set at
// open time.
type Session struct {
	Token     string
	SessionID string // editor session the responses are piped to
	Buffer    string
	Sentinel  string
	PipePath  string

	mu       sync.Mutex
	language string
	theme    string
	enabled  bool

	// lastDispatch is owned by the dispatch loop and never read concurrently.
	lastDispatch time.Time

	inbox chan string
	done  chan struct{}
}

// New creates a session in the enabled state.
func New(token string, params OpenParams, pipePath, sentinel string) *Session {
	return &Session{
		Token:     token,
		SessionID: params.SessionID,
		Buffer:    params.Buffer,
		Sentinel:  sentinel,
		PipePath:  pipePath,
		language:  params.Language,
		theme:     params.Theme,
		enabled:   true,
		inbox:     make(chan string, 1),
		done:      make(chan struct{}),
	}
}

// OpenParams carries the editor-provided attributes of an INIT request.
type OpenParams struct {
	SessionID string
	Buffer    string
	Language  string
	Theme     string
}

// Language returns the current language id.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetLanguage updates the language id.
func (s *Session) SetLanguage(language string) {
	s.mu.Lock()
	s.language = language
	s.mu.Unlock()
}

// Theme returns the current theme id.
func (s *Session) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetTheme updates the theme id and returns the previous value.
func (s *Session) SetTheme(theme string) (previous string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.theme
	s.theme = theme
	return previous
}

// Enabled reports whether the session still dispatches highlights.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Disable stops further dispatches; in-flight ones finish.
func (s *Session) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
}

// Done is closed when the session's dispatch loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
