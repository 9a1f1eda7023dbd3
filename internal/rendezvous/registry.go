package rendezvous

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// registryDir returns the per-user directory tracking every instance
// started on this machine, so `agentbrain list` can enumerate instances
// across projects without each project knowing about the others.
func registryDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".agent-brain", "instances"), nil
}

// RegisterInstance records state in the user-level registry, keyed by
// instance ID, using the same write-to-temp-then-rename pattern as
// WriteRuntimeState.
func RegisterInstance(state RuntimeState) error {
	dir, err := registryDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry entry: %w", err)
	}
	path := filepath.Join(dir, state.InstanceID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry entry: %w", err)
	}
	return os.Rename(tmp, path)
}

// DeregisterInstance removes instanceID from the user-level registry.
// Returns nil if it was already gone.
func DeregisterInstance(instanceID string) error {
	dir, err := registryDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, instanceID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListRegisteredInstances reads every entry in the user-level registry.
// Entries whose on-disk state.RuntimeJSON no longer exists or fails its
// health probe are stale; callers that care should verify with
// ReadAndVerify against each entry's own project before trusting it.
func ListRegisteredInstances() ([]RuntimeState, error) {
	dir, err := registryDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry directory: %w", err)
	}

	var out []RuntimeState
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var state RuntimeState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		out = append(out, state)
	}
	return out, nil
}
