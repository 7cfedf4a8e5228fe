package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp", "ops.pid")

	require.NoError(t, Write(path, 4242))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))
	_, err = Read(path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{"garbage": "abc", "zero": "0", "negative": "-5"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Read(path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestIsRunning(t *testing.T) {
	assert.True(t, IsRunning(os.Getpid()))
	assert.False(t, IsRunning(0))
	assert.False(t, IsRunning(-1))
}

func TestSignalReload_Missing(t *testing.T) {
	_, err := SignalReload(filepath.Join(t.TempDir(), "ops.pid"))
	assert.ErrorIs(t, err, ErrNotFound)
}
