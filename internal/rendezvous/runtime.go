package rendezvous

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is the current RuntimeState on-disk schema version. Readers
// must check this before trusting the rest of the descriptor.
const SchemaVersion = 1

// Mode is the instance's operating mode.
type Mode string

const (
	ModeProject Mode = "project"
	ModeShared  Mode = "shared"
)

// RuntimeState is the rendezvous descriptor written to runtime.json after
// the HTTP listener is bound and its health endpoint answers.
type RuntimeState struct {
	SchemaVersion int       `json:"schema_version"`
	Mode          Mode      `json:"mode"`
	ProjectRoot   string    `json:"project_root"`
	InstanceID    string    `json:"instance_id"`
	BaseURL       string    `json:"base_url"`
	BindHost      string    `json:"bind_host"`
	Port          int       `json:"port"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
}

// NewInstanceID returns a random hex token suitable for RuntimeState.InstanceID.
func NewInstanceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate instance id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// WriteRuntimeState atomically writes the descriptor via write-to-temp then
// rename, so readers never observe a partially written file.
func WriteRuntimeState(path string, state RuntimeState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runtime state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write runtime state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish runtime state: %w", err)
	}
	return nil
}

// ReadRuntimeState reads and schema-checks runtime.json without probing
// health. Callers that intend to trust BaseURL must also call ProbeHealth.
func ReadRuntimeState(path string) (RuntimeState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeState{}, err
	}
	var state RuntimeState
	if err := json.Unmarshal(data, &state); err != nil {
		return RuntimeState{}, fmt.Errorf("parse runtime state: %w", err)
	}
	if state.SchemaVersion != SchemaVersion {
		return RuntimeState{}, fmt.Errorf("unsupported runtime schema version %d", state.SchemaVersion)
	}
	return state, nil
}

// RemoveRuntimeState deletes runtime.json. Returns nil if it doesn't exist.
func RemoveRuntimeState(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ProbeHealth GETs base/health and reports whether it answered 200 within
// timeout. This is the trust check a reader must perform before relying on
// a RuntimeState's BaseURL.
func ProbeHealth(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ReadAndVerify reads runtime.json and probes its health endpoint,
// returning the state only if both succeed: the full "trust" contract
// readers (CLI, editor plugins) must apply before using BaseURL.
func ReadAndVerify(ctx context.Context, path string, timeout time.Duration) (RuntimeState, bool) {
	state, err := ReadRuntimeState(path)
	if err != nil {
		return RuntimeState{}, false
	}
	if !ProbeHealth(ctx, state.BaseURL, timeout) {
		return RuntimeState{}, false
	}
	return state, true
}
