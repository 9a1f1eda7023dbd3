package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/agent-brain/agentbrain/internal/ingest"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
)

// runWorker is the single background worker that drains the job queue,
// running each ingestion job to completion before picking up the next.
// The queue's single-worker model means no locking is needed between jobs
// touching the same backend.
func runWorker(ctx context.Context, queue *jobqueue.Queue, orch *ingest.Orchestrator) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, ok := queue.Next()
		if !ok {
			continue
		}
		runJob(ctx, queue, orch, job)
	}
}

func runJob(ctx context.Context, queue *jobqueue.Queue, orch *ingest.Orchestrator, job jobqueue.Job) {
	progress := func(stage ingest.Stage, fraction float64) {
		if err := queue.UpdateProgress(job.ID, fraction); err != nil {
			slog.Error("update job progress", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}
	cancelled := func() bool { return queue.CancelRequested(job.ID) }

	result, err := orch.Run(ctx, job.Request, progress, cancelled)
	if err != nil {
		_ = queue.Finish(job.ID, jobqueue.StatusFailed, err.Error())
		return
	}
	if cancelled() {
		_ = queue.Finish(job.ID, jobqueue.StatusCancelled, "")
		return
	}
	slog.Info("ingestion job finished",
		slog.String("job_id", job.ID),
		slog.Int("documents", result.DocumentCount),
		slog.Int("files_scanned", result.FilesScanned))
	_ = queue.Finish(job.ID, jobqueue.StatusDone, "")
}
