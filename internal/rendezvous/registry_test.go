package rendezvous

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	state := RuntimeState{
		SchemaVersion: SchemaVersion,
		Mode:          ModeProject,
		ProjectRoot:   "/tmp/project-a",
		InstanceID:    "inst-a",
		BaseURL:       "http://127.0.0.1:11111",
		Port:          11111,
		PID:           os.Getpid(),
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, RegisterInstance(state))

	list, err := ListRegisteredInstances()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "inst-a", list[0].InstanceID)
	require.Equal(t, "/tmp/project-a", list[0].ProjectRoot)

	require.NoError(t, DeregisterInstance("inst-a"))
	list, err = ListRegisteredInstances()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegistry_MultipleInstances(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	for _, id := range []string{"inst-a", "inst-b", "inst-c"} {
		require.NoError(t, RegisterInstance(RuntimeState{
			SchemaVersion: SchemaVersion,
			InstanceID:    id,
			ProjectRoot:   "/tmp/" + id,
		}))
	}

	list, err := ListRegisteredInstances()
	require.NoError(t, err)
	require.Len(t, list, 3)
}

func TestListRegisteredInstances_EmptyWhenRegistryMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	list, err := ListRegisteredInstances()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDeregisterInstance_MissingEntryIsNotAnError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, DeregisterInstance("does-not-exist"))
}
