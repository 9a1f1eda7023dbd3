// Package statepaths maps a resolved project root to its on-disk state
// directory and deterministic sub-paths.
package statepaths

import (
	"os"
	"path/filepath"
)

// Paths holds every deterministic sub-path under a project's state directory.
type Paths struct {
	ProjectRoot string
	StateDir    string

	VectorsDir string
	KeywordDir string
	GraphDir   string

	JobsDir   string
	QueueLog  string
	RuntimeJSON string
	LockFile  string
	PIDFile   string
	LogsDir   string
	ConfigFile string
}

// For computes the deterministic state-directory layout for projectRoot.
// Calling For twice on the same root always yields identical paths.
func For(projectRoot string) Paths {
	stateDir := filepath.Join(projectRoot, ".claude", "agent-brain")
	dataDir := filepath.Join(stateDir, "data")
	jobsDir := filepath.Join(stateDir, "jobs")
	logsDir := filepath.Join(stateDir, "logs")

	return Paths{
		ProjectRoot: projectRoot,
		StateDir:    stateDir,

		VectorsDir: filepath.Join(dataDir, "vectors"),
		KeywordDir: filepath.Join(dataDir, "keyword"),
		GraphDir:   filepath.Join(dataDir, "graph"),

		JobsDir:     jobsDir,
		QueueLog:    filepath.Join(jobsDir, "queue.log"),
		RuntimeJSON: filepath.Join(stateDir, "runtime.json"),
		LockFile:    filepath.Join(stateDir, "agent-brain.lock"),
		PIDFile:     filepath.Join(stateDir, "agent-brain.pid"),
		LogsDir:     logsDir,
		ConfigFile:  filepath.Join(projectRoot, ".agent-brain.yaml"),
	}
}

// MkdirAll idempotently creates every directory this layout needs.
func (p Paths) MkdirAll() error {
	dirs := []string{
		p.StateDir,
		p.VectorsDir,
		p.KeywordDir,
		p.GraphDir,
		p.JobsDir,
		p.LogsDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
