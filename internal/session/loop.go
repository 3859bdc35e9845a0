package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/kakhl/internal/config"
	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/kak"
	"github.com/zjrosen/kakhl/internal/log"
	"github.com/zjrosen/kakhl/internal/stylecache"
)

// message is one framed highlight request from the per-buffer pipe.
type message struct {
	Language string
	Theme    string
	Content  string
}

// parseFrame splits a frame into its "H <language> <theme>" header and the
// raw content. Frames without a well-formed header are transport errors.
func parseFrame(frame string) (message, error) {
	header, content, found := strings.Cut(frame, "\n")
	if !found {
		return message{}, fmt.Errorf("frame has no header line")
	}
	fields := strings.Fields(header)
	if len(fields) != 3 || fields[0] != "H" {
		return message{}, fmt.Errorf("malformed header %q", header)
	}
	return message{Language: fields[1], Theme: fields[2], Content: content}, nil
}

// Dispatcher runs session loops against the shared engine, the style cache,
// and the editor delivery path. One Dispatcher serves every session.
type Dispatcher struct {
	engine *engine.Engine
	cache  *stylecache.Cache
	store  *config.Store
	sender kak.Sender
	tracer trace.Tracer
}

// NewDispatcher wires the shared collaborators.
func NewDispatcher(eng *engine.Engine, cache *stylecache.Cache, store *config.Store, sender kak.Sender) *Dispatcher {
	return &Dispatcher{
		engine: eng,
		cache:  cache,
		store:  store,
		sender: sender,
		tracer: otel.Tracer("kakhl.session"),
	}
}

// SwitchTheme updates a session's theme and rebuilds the cache for the
// abandoned theme so its attribute ids cannot leak stale definitions.
func (d *Dispatcher) SwitchTheme(s *Session, theme string) {
	previous := s.SetTheme(theme)
	if previous != theme && previous != "" {
		d.cache.OnThemeSwitch(previous)
	}
	log.Debug(log.CatSession, "theme switched",
		"buffer", s.Buffer, "from", previous, "to", theme)
}

// Run is the session's reader/dispatch loop. It blocks on the inbox fed by
// the pipe reader, applies the rate limit, and highlights what passes.
// Snapshots arriving under the minimum interval are not queued: only the
// most recent is retained and flushed once the interval has elapsed, so the
// editor always converges on the latest buffer state. The loop exits when
// the inbox closes (pipe reader stopped) and never crashes on bad input.
func (d *Dispatcher) Run(s *Session) {
	defer close(s.done)

	var pending string
	havePending := false
	flush := time.NewTimer(0)
	if !flush.Stop() {
		<-flush.C
	}
	defer flush.Stop()

	for {
		select {
		case frame, ok := <-s.inbox:
			if !ok {
				log.Debug(log.CatSession, "inbox closed, loop exiting", "token", s.Token)
				return
			}
			msg, err := parseFrame(frame)
			if err != nil {
				log.Warn(log.CatSession, "discarding malformed frame",
					"buffer", s.Buffer, "error", err)
				continue
			}

			s.SetLanguage(msg.Language)
			if msg.Theme != s.Theme() {
				d.SwitchTheme(s, msg.Theme)
			}

			// Re-read the interval each message so config reload applies live.
			minInterval := d.store.Current().MinInterval

			now := time.Now()
			if ShouldDispatch(now, s.lastDispatch, minInterval) {
				havePending = false
				d.dispatch(s, msg.Content)
			} else {
				// Drop the previously pending snapshot; only the newest matters.
				pending = msg.Content
				if !havePending {
					havePending = true
					flush.Reset(FlushDelay(now, s.lastDispatch, minInterval))
				}
			}

		case <-flush.C:
			if havePending {
				havePending = false
				d.dispatch(s, pending)
				pending = ""
			}
		}
	}
}

// dispatch runs one snapshot through the engine and sends the response.
func (d *Dispatcher) dispatch(s *Session, content string) {
	if !s.Enabled() {
		return
	}

	cfg := d.store.Current()
	language := cfg.ResolveLanguage(s.Language())
	theme := cfg.ResolveTheme(s.Theme())

	_, span := d.tracer.Start(context.Background(), "session.dispatch",
		trace.WithAttributes(
			attribute.String("session.id", s.SessionID),
			attribute.String("buffer.name", s.Buffer),
			attribute.String("highlight.language", language),
			attribute.String("highlight.theme", theme),
			attribute.Int("buffer.bytes", len(content)),
		))
	defer span.End()

	tokens, err := d.engine.Highlight(content, language, theme)
	if err != nil {
		log.ErrorErr(log.CatSession, "highlight failed", err, "buffer", s.Buffer)
		return
	}

	payload := kak.BuildResponse(content, tokens, theme, d.engine.DefaultStyle(theme), d.cache)
	if err := d.sender.Send(s.SessionID, s.Buffer, payload); err != nil {
		log.ErrorErr(log.CatSession, "failed to deliver highlights", err,
			"session", s.SessionID, "buffer", s.Buffer)
		return
	}

	s.lastDispatch = time.Now()
	log.Debug(log.CatSession, "dispatched",
		"buffer", s.Buffer, "language", language, "theme", theme, "tokens", len(tokens))
}
