package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kakhl/internal/config"
	"github.com/zjrosen/kakhl/internal/engine"
)

// captureSender records deliveries instead of piping them to an editor.
type captureSender struct {
	mu       sync.Mutex
	payloads []string
}

func (c *captureSender) Send(sessionID, buffer, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

// lockedBuffer lets the test read replies while the control loop writes them.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

type serverHarness struct {
	server *Server
	sender *captureSender
	out    *lockedBuffer
	dir    string
}

func newHarness(t *testing.T) *serverHarness {
	t.Helper()

	eng, err := engine.Load("dracula")
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Theme = "dracula"
	cfg.MinInterval = time.Millisecond
	cfg.GracePeriod = 2 * time.Second
	cfg.HighlighterMap = map[string]string{"zsh": "bash"}

	guardian, err := NewGuardian(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)

	sender := &captureSender{}
	out := &lockedBuffer{}
	return &serverHarness{
		server: New(config.NewStore(cfg), eng, guardian, sender, out),
		sender: sender,
		out:    out,
		dir:    guardian.Dir(),
	}
}

// run serves the given control input and returns once shutdown completes.
func (h *serverHarness) run(t *testing.T, input string) {
	t.Helper()
	require.NoError(t, h.server.Run(context.Background(), strings.NewReader(input)))
}

func TestServer_PingPong(t *testing.T) {
	h := newHarness(t)
	h.run(t, "PING\n")
	require.Contains(t, h.out.String(), "PONG\n")
	require.Equal(t, StateStopped, h.server.State())
}

func TestServer_UnknownCommandIsAnsweredNotFatal(t *testing.T) {
	h := newHarness(t)
	h.run(t, "FROBNICATE now\nPING\n")

	out := h.out.String()
	require.Contains(t, out, "ERR unknown command FROBNICATE")
	// The loop survived and answered the next command.
	require.Contains(t, out, "PONG")
}

func TestServer_InitOpensSessionAndAnnouncesPipe(t *testing.T) {
	h := newHarness(t)

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- h.server.Run(context.Background(), r) }()

	_, err := io.WriteString(w, "INIT kak-1 main.go tok-1 go dracula\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.server.Registry().Len() == 1 },
		2*time.Second, 5*time.Millisecond)

	sess, ok := h.server.Registry().Lookup("tok-1")
	require.True(t, ok)
	require.Equal(t, "main.go", sess.Buffer)
	_, err = os.Stat(sess.PipePath)
	require.NoError(t, err, "pipe must exist while the session is open")

	require.Eventually(t, func() bool { return len(h.sender.all()) == 1 },
		2*time.Second, 5*time.Millisecond)
	announce := h.sender.all()[0]
	require.Contains(t, announce, "set-option buffer kakhl_fifo '"+sess.PipePath+"'")
	require.Contains(t, announce, "set-option buffer kakhl_sentinel '"+sess.Sentinel+"'")
	// Unmapped languages pass through as the highlighter name.
	require.Contains(t, announce, "set-option buffer kakhl_highlighter 'go'")

	require.NoError(t, w.Close())
	require.NoError(t, <-done)
}

func TestServer_InitAnnouncesMappedHighlighter(t *testing.T) {
	h := newHarness(t)

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- h.server.Run(context.Background(), r) }()

	_, err := io.WriteString(w, "INIT kak-1 conf.zsh tok-hl zsh dracula\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.sender.all()) == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Contains(t, h.sender.all()[0], "set-option buffer kakhl_highlighter 'bash'")

	require.NoError(t, w.Close())
	require.NoError(t, <-done)
}

func TestServer_DuplicateInitIsRefused(t *testing.T) {
	h := newHarness(t)
	h.run(t, "INIT kak-1 a.go tok-dup go dracula\nINIT kak-1 b.go tok-dup go dracula\n")
	require.Contains(t, h.out.String(), "ERR")
	require.Contains(t, h.out.String(), "already active")
}

func TestServer_CloseIsIdempotentOverTheWire(t *testing.T) {
	h := newHarness(t)
	h.run(t, "INIT kak-1 a.go tok-c go dracula\nCLOSE tok-c\nCLOSE tok-c\nPING\n")

	// Double close must not produce an error reply.
	require.NotContains(t, h.out.String(), "ERR")
	require.Contains(t, h.out.String(), "PONG")
	require.Equal(t, 0, h.server.Registry().Len())
}

func TestServer_SetThemeByBufferName(t *testing.T) {
	h := newHarness(t)

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- h.server.Run(context.Background(), r) }()

	_, err := io.WriteString(w, "INIT kak-1 main.rs tok-t rust dracula\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.server.Registry().Len() == 1 },
		2*time.Second, 5*time.Millisecond)

	_, err = io.WriteString(w, "SET_THEME main.rs github\n")
	require.NoError(t, err)

	sess, _ := h.server.Registry().Lookup("tok-t")
	require.Eventually(t, func() bool { return sess.Theme() == "github" },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, <-done)
}

func TestServer_SetThemeForUnknownBufferReportsError(t *testing.T) {
	h := newHarness(t)
	h.run(t, "SET_THEME nope.go github\n")
	require.Contains(t, h.out.String(), "ERR no session for buffer nope.go")
}

func TestServer_InitRefusedBeforeReady(t *testing.T) {
	h := newHarness(t)
	// The server has not entered Run; it is still Starting.
	h.server.handleCommand(context.Background(), "INIT kak-1 a.go tok-x go dracula")
	require.Contains(t, h.out.String(), "ERR shutting down, refusing new sessions")
	require.Equal(t, 0, h.server.Registry().Len())
}

func TestServer_ShutdownCleansEverySessionPipe(t *testing.T) {
	h := newHarness(t)

	var input strings.Builder
	for i := range 3 {
		fmt.Fprintf(&input, "INIT kak-1 buf%d.go tok-%d go dracula\n", i, i)
	}
	h.run(t, input.String())

	require.Equal(t, StateStopped, h.server.State())
	require.Equal(t, 0, h.server.Registry().Len())
	_, err := os.Stat(h.dir)
	require.True(t, os.IsNotExist(err), "base directory must be removed on shutdown")
}

func TestServer_ContextCancelTriggersShutdown(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()
	defer w.Close()
	done := make(chan error, 1)
	go func() { done <- h.server.Run(ctx, r) }()

	_, err := io.WriteString(w, "INIT kak-1 a.go tok-sig go dracula\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.server.Registry().Len() == 1 },
		2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down on cancellation")
	}
	require.Equal(t, StateStopped, h.server.State())
}
