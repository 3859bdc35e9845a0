package kak

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/zjrosen/kakhl/internal/log"
)

// debugFileEnv, when set, mirrors every payload to a file for troubleshooting.
const debugFileEnv = "KAKHL_DEBUG_FILE"

// Sender delivers a command payload to one buffer of a running editor
// session. Session loops hold a Sender so tests can capture output instead
// of spawning the editor.
type Sender interface {
	Send(sessionID, buffer, payload string) error
}

// PipeSender delivers payloads by piping them to `kak -p <session>`.
type PipeSender struct{}

// Send wraps the payload in a buffer-scoped evaluate-commands block and
// writes it to the session's command pipe.
func (PipeSender) Send(sessionID, buffer, payload string) error {
	cmd := "evaluate-commands -no-hooks -buffer '" + Quote(buffer) + "' -- %[ " + payload + " ]\n"

	log.Debug(log.CatKak, "sending to editor",
		"session", sessionID, "buffer", buffer, "bytes", len(cmd))

	if debugPath := os.Getenv(debugFileEnv); debugPath != "" {
		dumpDebugFile(debugPath, cmd)
	}

	if _, err := exec.LookPath("kak"); err != nil {
		return fmt.Errorf("kak command not found in PATH: %w", err)
	}

	proc := exec.Command("kak", "-p", sessionID)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening kak stdin: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("spawning kak -p: %w", err)
	}

	_, writeErr := stdin.Write([]byte(cmd))
	_ = stdin.Close()

	if err := proc.Wait(); err != nil {
		return fmt.Errorf("kak -p %s: %w", sessionID, err)
	}
	return writeErr
}

func dumpDebugFile(path, payload string) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn(log.CatKak, "failed to create debug directory", "dir", dir, "error", err)
			return
		}
	}
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		log.Warn(log.CatKak, "failed to write debug file", "path", path, "error", err)
	}
}
