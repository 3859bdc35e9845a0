package server

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zjrosen/kakhl/internal/config"
	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/kak"
	"github.com/zjrosen/kakhl/internal/stylecache"
)

// RunOneshot highlights a single document and exits: a `H <language> <theme>
// <byte-count>` header line, then exactly byte-count bytes of content. The
// response payload is written to out. No pipes, no sessions, no daemon.
func RunOneshot(in io.Reader, out io.Writer, eng *engine.Engine, store *config.Store) error {
	r := bufio.NewReader(in)

	header, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading oneshot header: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) != 4 || fields[0] != "H" {
		return fmt.Errorf("malformed oneshot header %q", strings.TrimSpace(header))
	}
	length, err := strconv.Atoi(fields[3])
	if err != nil || length < 0 {
		return fmt.Errorf("malformed content length %q", fields[3])
	}

	content := make([]byte, length)
	if _, err := io.ReadFull(r, content); err != nil {
		return fmt.Errorf("reading %d content bytes: %w", length, err)
	}

	cfg := store.Current()
	language := cfg.ResolveLanguage(fields[1])
	theme := cfg.ResolveTheme(fields[2])

	tokens, err := eng.Highlight(string(content), language, theme)
	if err != nil {
		return fmt.Errorf("highlighting: %w", err)
	}

	payload := kak.BuildResponse(string(content), tokens, theme, eng.DefaultStyle(theme), stylecache.New())
	if _, err := io.WriteString(out, payload); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
