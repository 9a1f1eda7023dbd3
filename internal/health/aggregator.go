// Package health aggregates read-only subsystem state into a single status
// view, covering the backend pool, job queue, and graph index alongside
// indexing progress.
package health

import (
	"context"
	"time"

	"github.com/agent-brain/agentbrain/internal/graph"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/store"
)

// Status is the closed set of overall health states.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Snapshot is the aggregated, read-only view C12 surfaces over HTTP and CLI.
type Snapshot struct {
	Status     Status `json:"status"`
	Mode       string `json:"mode"`
	InstanceID string `json:"instance_id"`
	BaseURL    string `json:"base_url"`
	Port       int    `json:"port"`

	DocumentCount         int            `json:"document_count"`
	DocumentCountBySource map[string]int `json:"document_count_by_source"`

	Pool store.PoolStatus `json:"pool"`

	Queue QueueSummary `json:"queue"`
	Graph GraphSummary `json:"graph"`
}

// QueueSummary is the ingestion queue's read-only view.
type QueueSummary struct {
	Pending   int     `json:"pending"`
	RunningID string  `json:"running_job_id,omitempty"`
	Progress  float64 `json:"progress"`
}

// GraphSummary is the graph index's read-only view.
type GraphSummary struct {
	Enabled           bool   `json:"enabled"`
	EntityCount       int    `json:"entity_count"`
	RelationshipCount int    `json:"relationship_count"`
	StoreType         string `json:"store_type"`
}

// Identity is the static lifecycle info the aggregator cannot derive itself.
type Identity struct {
	Mode       string
	InstanceID string
	BaseURL    string
	Port       int
}

// GraphInfo is a minimal read-only accessor over the running graph store,
// avoiding a dependency from health back onto a specific store implementation.
type GraphInfo interface {
	EntityCount() int
	RelationshipCount() int
	StoreType() string
}

// Aggregator reads C4 (Identity), C5 (Backend), C9 (jobqueue.Queue), and C8
// (GraphInfo) without mutating any of them.
type Aggregator struct {
	identity Identity
	backend  store.Backend
	queue    *jobqueue.Queue
	graph    GraphInfo
	timeout  time.Duration
}

func New(identity Identity, backend store.Backend, queue *jobqueue.Queue, g GraphInfo) *Aggregator {
	return &Aggregator{identity: identity, backend: backend, queue: queue, graph: g, timeout: 150 * time.Millisecond}
}

// SetIdentity updates the static lifecycle fields the snapshot reports.
// Used when the aggregator must be built before the lifecycle controller
// assigns an instance ID, base URL, and port (the CLI's start command).
func (a *Aggregator) SetIdentity(identity Identity) {
	a.identity = identity
}

// Snapshot builds the aggregated view. It must respond in well under 200ms
// (spec's budget): all reads share one 150ms deadline (a.timeout), so a
// slow backend degrades the status rather than blocking the health endpoint.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	snap := Snapshot{
		Mode:       a.identity.Mode,
		InstanceID: a.identity.InstanceID,
		BaseURL:    a.identity.BaseURL,
		Port:       a.identity.Port,
		Status:     StatusHealthy,
	}

	pool, err := a.backend.PoolStatus(ctx)
	snap.Pool = pool
	if err != nil || !pool.Healthy {
		snap.Status = StatusDegraded
	}

	if count, err := a.backend.GetCount(ctx); err == nil {
		snap.DocumentCount = count
	} else {
		snap.Status = StatusDegraded
	}
	if bySource, err := a.backend.CountsBySourceType(ctx); err == nil {
		snap.DocumentCountBySource = bySource
	}

	snap.Queue = a.queueSummary()
	snap.Graph = a.graphSummary()

	if snap.Status == StatusDegraded && pool.Backend == "" {
		snap.Status = StatusUnavailable
	}
	return snap
}

func (a *Aggregator) queueSummary() QueueSummary {
	var s QueueSummary
	if a.queue == nil {
		return s
	}
	for _, job := range a.queue.List() {
		switch job.Status {
		case jobqueue.StatusPending:
			s.Pending++
		case jobqueue.StatusRunning:
			s.RunningID = job.ID
			s.Progress = job.Progress
		}
	}
	return s
}

func (a *Aggregator) graphSummary() GraphSummary {
	if a.graph == nil {
		return GraphSummary{Enabled: false}
	}
	return GraphSummary{
		Enabled:           true,
		EntityCount:       a.graph.EntityCount(),
		RelationshipCount: a.graph.RelationshipCount(),
		StoreType:         a.graph.StoreType(),
	}
}
