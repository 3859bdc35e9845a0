// Package fifo manages the per-buffer named pipes and the sentinel-framed
// reader that turns raw pipe bytes into whole buffer snapshots.
//
// The editor opens and closes the pipe once per write, so a blocking open
// or a plain read loop would see spurious EOFs. The reader instead opens
// the pipe non-blocking, clears the flag, and polls, which also tolerates
// premature writes and crashed writers without wedging the session.
package fifo

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/zjrosen/kakhl/internal/log"
)

const (
	pollIntervalMs = 250
	readBufSize    = 64 * 1024
)

// Create makes a named pipe at path. An existing pipe is reused.
func Create(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := unix.Mkfifo(path, 0644); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

// Provision creates the request pipe for a session token under baseDir and
// returns its path along with a session-unique sentinel. The pipe name is
// derived from the token so re-init of the same buffer reuses the pipe; the
// sentinel is fresh per provision so frames from a stale editor hook never
// terminate a new session's message.
func Provision(token, baseDir string) (path, sentinel string, err error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", "", fmt.Errorf("creating pipe directory: %w", err)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	name := fmt.Sprintf("%x", h.Sum64())

	path = filepath.Join(baseDir, name+".req.fifo")
	if err := Create(path); err != nil {
		return "", "", err
	}

	sentinel = "kakhl-" + uuid.NewString()
	return path, sentinel, nil
}

// openNonblocking opens the pipe read-only without waiting for a writer,
// then clears O_NONBLOCK so subsequent reads block inside poll-guarded calls.
func openNonblocking(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fcntl F_GETFL: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags&^unix.O_NONBLOCK); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fcntl F_SETFL: %w", err)
	}

	return os.NewFile(uintptr(fd), path), nil
}

// ReadFrames reads the pipe until ctx is cancelled, splitting the stream on
// the sentinel and sending each complete frame to out. out is closed when
// the reader exits, which is what unblocks the session loop on close.
func ReadFrames(ctx context.Context, path, sentinel string, out chan<- string) error {
	defer close(out)

	file, err := openNonblocking(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	fd := int32(file.Fd()) //nolint:gosec // pipe fds are small
	var pending strings.Builder
	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollIntervalMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Warn(log.CatFifo, "poll error", "path", path, "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			if fds[0].Revents&unix.POLLHUP != 0 {
				// Writer side closed between messages; back off and re-poll.
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		nr, err := file.Read(buf)
		if err != nil {
			log.Warn(log.CatFifo, "read error", "path", path, "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if nr == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		pending.Write(buf[:nr])

		accumulated := pending.String()
		for {
			idx := strings.Index(accumulated, sentinel)
			if idx < 0 {
				break
			}
			frame := accumulated[:idx]
			accumulated = accumulated[idx+len(sentinel):]

			select {
			case out <- frame:
			case <-ctx.Done():
				return nil
			}
		}
		pending.Reset()
		pending.WriteString(accumulated)
	}
}
