package pidlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sppmon.pid")
	lock, err := Acquire(path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquire_FailsWhileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sppmon.pid")
	lock, err := Acquire(path)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(path)
	require.Error(t, err)
	var running *AlreadyRunningError
	require.ErrorAs(t, err, &running)
}

func TestAcquire_RemovesStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sppmon.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o644))

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}
