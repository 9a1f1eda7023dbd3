// Package lifecycle composes project-root resolution, state paths, and the
// lock+rendezvous protocol with the HTTP listener into the startup/shutdown
// sequence for a project's running instance.
//
// The listener binds via port 0 so the OS assigns the port and the
// check-then-bind race never arises.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/agent-brain/agentbrain/internal/rendezvous"
	"github.com/agent-brain/agentbrain/internal/rootresolve"
	"github.com/agent-brain/agentbrain/internal/statepaths"
)

// ErrAnotherInstanceStarting is returned when the lock can't be acquired
// after stale recovery, meaning another starter raced and won.
var ErrAnotherInstanceStarting = errors.New("another instance is starting")

// Options configures a Controller.
type Options struct {
	Host    string // bind host, default 127.0.0.1
	Port    int    // 0 = OS-assigned
	Mode    rendezvous.Mode
	Handler http.Handler // HTTP handler exposing at least GET /health
	Logger  *slog.Logger

	HealthTimeout    time.Duration // default 10s
	ShutdownTimeout  time.Duration // default 10s
}

// Controller owns one project instance's full lifecycle.
type Controller struct {
	opts        Options
	paths       statepaths.Paths
	lock        *rendezvous.Lock
	pidFile     *rendezvous.PIDFile
	server      *http.Server
	listener    net.Listener
	instanceID  string
	baseURL     string
	port        int
}

// Start resolves the project root, recovers stale state, acquires the
// singleton lock, binds the HTTP listener, waits for health, and publishes
// runtime.json.
func Start(ctx context.Context, startPath string, opts Options) (*Controller, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Mode == "" {
		opts.Mode = rendezvous.ModeProject
	}
	if opts.HealthTimeout == 0 {
		opts.HealthTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	root, err := rootresolve.Resolve(ctx, startPath)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	paths := statepaths.For(root)
	if err := paths.MkdirAll(); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if err := rendezvous.RecoverStale(ctx, opts.Logger, rendezvous.StalePaths{
		RuntimeJSON: paths.RuntimeJSON,
		PIDFile:     paths.PIDFile,
		LockFile:    paths.LockFile,
	}); err != nil {
		return nil, fmt.Errorf("stale recovery: %w", err)
	}

	lock := rendezvous.NewLock(paths.LockFile)
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !held {
		return nil, ErrAnotherInstanceStarting
	}

	pidFile := rendezvous.NewPIDFile(paths.PIDFile)
	if err := pidFile.Write(); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", opts.Host, opts.Port))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("bind listener: %w", err)
	}

	instanceID, err := rendezvous.NewInstanceID()
	if err != nil {
		_ = listener.Close()
		_ = lock.Unlock()
		return nil, err
	}

	port := listener.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://%s:%d", opts.Host, port)

	c := &Controller{
		opts:       opts,
		paths:      paths,
		lock:       lock,
		pidFile:    pidFile,
		listener:   listener,
		instanceID: instanceID,
		baseURL:    baseURL,
		port:       port,
	}

	c.server = &http.Server{Handler: opts.Handler}
	go func() {
		if err := c.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error("http server exited", slog.String("error", err.Error()))
		}
	}()

	if !c.waitHealthy(ctx) {
		_ = c.server.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("server did not become healthy within %s", opts.HealthTimeout)
	}

	state := rendezvous.RuntimeState{
		SchemaVersion: rendezvous.SchemaVersion,
		Mode:          opts.Mode,
		ProjectRoot:   root,
		InstanceID:    instanceID,
		BaseURL:       baseURL,
		BindHost:      opts.Host,
		Port:          port,
		PID:           os.Getpid(),
		StartedAt:     time.Now().UTC(),
	}
	if err := rendezvous.WriteRuntimeState(paths.RuntimeJSON, state); err != nil {
		_ = c.server.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("publish runtime state: %w", err)
	}
	if err := rendezvous.RegisterInstance(state); err != nil {
		opts.Logger.Warn("register instance in user registry", slog.String("error", err.Error()))
	}

	opts.Logger.Info("agent-brain instance started",
		slog.String("project_root", root),
		slog.String("base_url", baseURL),
		slog.String("instance_id", instanceID))

	return c, nil
}

func (c *Controller) waitHealthy(ctx context.Context) bool {
	deadline := time.Now().Add(c.opts.HealthTimeout)
	for time.Now().Before(deadline) {
		if rendezvous.ProbeHealth(ctx, c.baseURL, 500*time.Millisecond) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// BaseURL returns the bound instance's base URL.
func (c *Controller) BaseURL() string { return c.baseURL }

// InstanceID returns this instance's random rendezvous token.
func (c *Controller) InstanceID() string { return c.instanceID }

func (c *Controller) Port() int { return c.port }

// ProjectRoot returns the resolved project root this controller owns.
func (c *Controller) ProjectRoot() string { return c.paths.ProjectRoot }

// Paths returns the resolved state-directory layout.
func (c *Controller) Paths() statepaths.Paths { return c.paths }

// Shutdown gracefully stops the HTTP server (bounded to ShutdownTimeout),
// deletes runtime.json and the PID file, and releases the lock, in that
// order, regardless of whether the graceful HTTP shutdown completed.
func (c *Controller) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, c.opts.ShutdownTimeout)
	defer cancel()

	if err := c.server.Shutdown(shutdownCtx); err != nil {
		_ = c.server.Close() // force-abort in-flight operations past the deadline
	}

	var firstErr error
	if err := rendezvous.RemoveRuntimeState(c.paths.RuntimeJSON); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := rendezvous.DeregisterInstance(c.instanceID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.pidFile.Remove(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
