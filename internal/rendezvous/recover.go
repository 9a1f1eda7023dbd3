package rendezvous

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// RecoverStale implements the three-step stale-recovery protocol from the
// component design, run before the lock is acquired on every startup.
//
//  1. If the PID file exists and its PID isn't alive, delete runtime.json,
//     the PID file, and the lock file.
//  2. If the PID is alive but runtime.json is missing or fails a health
//     probe within 2s, send a graceful shutdown request; if the process is
//     still alive after 5s, force-delete the lock artifacts.
//  3. (Caller's responsibility) acquire the lock.
func RecoverStale(ctx context.Context, logger *slog.Logger, paths StalePaths) error {
	pidFile := NewPIDFile(paths.PIDFile)

	if !pidFile.IsAlive() {
		logger.Debug("stale recovery: pid not alive, clearing artifacts", slog.String("pid_file", paths.PIDFile))
		return clearArtifacts(paths)
	}

	state, healthy := ReadAndVerify(ctx, paths.RuntimeJSON, 2*time.Second)
	if healthy {
		return nil // a live, healthy instance already owns this project.
	}

	logger.Warn("stale recovery: pid alive but runtime unhealthy, requesting graceful shutdown")
	requestShutdown(ctx, state.BaseURL)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !pidFile.IsAlive() {
			return clearArtifacts(paths)
		}
		time.Sleep(200 * time.Millisecond)
	}

	logger.Warn("stale recovery: orphan survived graceful shutdown window, force-clearing artifacts")
	return clearArtifacts(paths)
}

// StalePaths is the subset of statepaths.Paths the recovery protocol needs.
type StalePaths struct {
	RuntimeJSON string
	PIDFile     string
	LockFile    string
}

func clearArtifacts(paths StalePaths) error {
	if err := RemoveRuntimeState(paths.RuntimeJSON); err != nil {
		return fmt.Errorf("clear runtime state: %w", err)
	}
	if err := NewPIDFile(paths.PIDFile).Remove(); err != nil {
		return fmt.Errorf("clear pid file: %w", err)
	}
	if err := os.Remove(paths.LockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear lock file: %w", err)
	}
	return nil
}

// requestShutdown best-efforts a graceful-shutdown POST to the candidate
// owner; failures are ignored since the caller proceeds to a forced
// recovery regardless.
func requestShutdown(ctx context.Context, baseURL string) {
	if baseURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/shutdown", nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}
