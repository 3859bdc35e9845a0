package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kakhl/internal/fifo"
)

func TestNewGuardian_AllocatesTempDirWhenUnset(t *testing.T) {
	g, err := NewGuardian("")
	require.NoError(t, err)
	defer g.Release()

	info, err := os.Stat(g.Dir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewGuardian_CreatesConfiguredDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "pipes")
	g, err := NewGuardian(dir)
	require.NoError(t, err)
	require.Equal(t, dir, g.Dir())

	_, err = os.Stat(dir)
	require.NoError(t, err)
}

func TestGuardian_ReleasePipeRemovesAndForgets(t *testing.T) {
	g, err := NewGuardian(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)

	path := filepath.Join(g.Dir(), "a.req.fifo")
	require.NoError(t, fifo.Create(path))
	g.RegisterPipe(path)

	g.ReleasePipe(path)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// Releasing a pipe that is already gone is not an error.
	g.ReleasePipe(path)
}

func TestGuardian_ReleaseForcesRemainingCleanup(t *testing.T) {
	g, err := NewGuardian(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)

	orphan := filepath.Join(g.Dir(), "orphan.req.fifo")
	require.NoError(t, fifo.Create(orphan))
	g.RegisterPipe(orphan)

	g.Release()
	_, err = os.Stat(orphan)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(g.Dir())
	require.True(t, os.IsNotExist(err))

	// Release is one-shot; a second call must be a silent no-op.
	g.Release()
}
