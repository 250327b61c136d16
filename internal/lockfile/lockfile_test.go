package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	t.Cleanup(func() { lock.Release() })

	data, err := os.ReadFile(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	info := ParseInfo(string(data))
	assert.Equal(t, os.Getpid(), info.PID)
	assert.WithinDuration(t, time.Now(), info.Started, time.Minute)
	assert.Equal(t, info.PID, lock.Info().PID)
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	require.NoError(t, err)

	second, err := AcquireLock(dir)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrLocked)

	var lerr *LockError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, os.Getpid(), lerr.Holder.PID)
	assert.True(t, lerr.Running)
	assert.Contains(t, err.Error(), "running")

	require.NoError(t, first.Release())
	third, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, third.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}

func TestStaleLockFileIsReused(t *testing.T) {
	dir := t.TempDir()
	stale := Info{PID: 999999, Started: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte(stale.String()), 0644))

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), ParseInfo(string(data)).PID)
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Info
	}{
		{"empty", "", Info{}},
		{"pid only", "pid=42\n", Info{PID: 42}},
		{"full", "pid=7\nstarted=2024-03-01T09:00:00Z\n", Info{PID: 7, Started: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}},
		{"garbage", "hello\npid=abc\n", Info{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInfo(tt.content))
		})
	}
}

func TestProcessRunning(t *testing.T) {
	assert.True(t, processRunning(os.Getpid()))
	assert.False(t, processRunning(0))
}
