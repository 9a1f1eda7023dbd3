package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agent-brain/agentbrain/internal/rendezvous"
)

func echoHealthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestStart_BindsOSAssignedPortAndPublishesRuntimeState(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	ctrl, err := Start(context.Background(), dir, Options{
		Port:    0,
		Handler: echoHealthHandler(),
	})
	require.NoError(t, err)
	defer func() { _ = ctrl.Shutdown(context.Background()) }()

	require.NotZero(t, ctrl.Port())
	require.GreaterOrEqual(t, ctrl.Port(), 1024)
	require.LessOrEqual(t, ctrl.Port(), 65535)
	require.NotEmpty(t, ctrl.InstanceID())
	require.Contains(t, ctrl.BaseURL(), "127.0.0.1")

	require.True(t, rendezvous.ProbeHealth(context.Background(), ctrl.BaseURL(), 2*time.Second))

	data, err := os.ReadFile(ctrl.Paths().RuntimeJSON)
	require.NoError(t, err)
	var state rendezvous.RuntimeState
	require.NoError(t, json.Unmarshal(data, &state))
	require.Equal(t, os.Getpid(), state.PID)
	require.Equal(t, ctrl.Port(), state.Port)
}

func TestStart_SecondInstanceConflicts(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	ctrl, err := Start(context.Background(), dir, Options{Handler: echoHealthHandler()})
	require.NoError(t, err)
	defer func() { _ = ctrl.Shutdown(context.Background()) }()

	_, err = Start(context.Background(), dir, Options{Handler: echoHealthHandler()})
	require.ErrorIs(t, err, ErrAnotherInstanceStarting)
}

func TestShutdown_RemovesRuntimeStateAndDeregisters(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	ctrl, err := Start(context.Background(), dir, Options{Handler: echoHealthHandler()})
	require.NoError(t, err)

	instanceID := ctrl.InstanceID()
	runtimePath := ctrl.Paths().RuntimeJSON

	start := time.Now()
	require.NoError(t, ctrl.Shutdown(context.Background()))
	require.Less(t, time.Since(start), 10*time.Second, "shutdown must release the runtime state well within 10s")

	_, err = os.Stat(runtimePath)
	require.True(t, os.IsNotExist(err))

	instances, err := rendezvous.ListRegisteredInstances()
	require.NoError(t, err)
	for _, inst := range instances {
		require.NotEqual(t, instanceID, inst.InstanceID)
	}
}
