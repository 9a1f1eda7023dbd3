package rendezvous

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLock_ExclusiveSingleton(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "agent-brain.lock")

	l1 := NewLock(lockPath)
	ok, err := l1.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	l2 := NewLock(lockPath)
	ok2, err := l2.TryLock()
	require.NoError(t, err)
	require.False(t, ok2, "a second process must not acquire the held lock")

	require.NoError(t, l1.Unlock())
}

func TestPIDFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(filepath.Join(dir, "agent-brain.pid"))

	require.NoError(t, p.Write())
	pid, err := p.Read()
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)
	require.True(t, p.IsAlive())

	require.NoError(t, p.Remove())
	_, err = p.Read()
	require.ErrorIs(t, err, ErrPIDFileNotFound)
}

func TestPIDFile_DeadPIDIsNotAlive(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(filepath.Join(dir, "agent-brain.pid"))
	// PID 999999 is very unlikely to be a live process in any test sandbox.
	require.NoError(t, os.WriteFile(p.Path(), []byte("999999"), 0o644))
	require.False(t, p.IsAlive())
}

func TestRuntimeState_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.json")

	instanceID, err := NewInstanceID()
	require.NoError(t, err)

	want := RuntimeState{
		SchemaVersion: SchemaVersion,
		Mode:          ModeProject,
		ProjectRoot:   dir,
		InstanceID:    instanceID,
		BaseURL:       "http://127.0.0.1:12345",
		BindHost:      "127.0.0.1",
		Port:          12345,
		PID:           os.Getpid(),
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, WriteRuntimeState(path, want))

	got, err := ReadRuntimeState(path)
	require.NoError(t, err)
	require.Equal(t, want.InstanceID, got.InstanceID)
	require.Equal(t, want.Port, got.Port)

	require.NoError(t, RemoveRuntimeState(path))
	_, err = ReadRuntimeState(path)
	require.Error(t, err)
}

func TestRecoverStale_DeadPIDClearsArtifacts(t *testing.T) {
	dir := t.TempDir()
	runtimePath := filepath.Join(dir, "runtime.json")
	pidPath := filepath.Join(dir, "agent-brain.pid")
	lockPath := filepath.Join(dir, "agent-brain.lock")

	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0o644))
	require.NoError(t, os.WriteFile(runtimePath, []byte(`{"schema_version":1}`), 0o644))

	logger := newTestLogger()
	err := RecoverStale(context.Background(), logger, StalePaths{
		RuntimeJSON: runtimePath,
		PIDFile:     pidPath,
		LockFile:    lockPath,
	})
	require.NoError(t, err)

	_, statErr := os.Stat(runtimePath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(pidPath)
	require.True(t, os.IsNotExist(statErr))
}
