package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-brain/agentbrain/internal/chunk"
	"github.com/agent-brain/agentbrain/internal/embed"
	"github.com/agent-brain/agentbrain/internal/graph"
	"github.com/agent-brain/agentbrain/internal/ingest"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/scanner"
	"github.com/agent-brain/agentbrain/internal/store"
)

// runOneJob pops the next pending job off queue and drives it through orch to
// completion, mirroring cmd/agentbrain/cmd's runJob without depending on the
// CLI package.
func runOneJob(t *testing.T, queue *jobqueue.Queue, orch *ingest.Orchestrator) (jobqueue.Job, *ingest.Result) {
	t.Helper()
	job, ok := queue.Next()
	require.True(t, ok, "expected a pending job")

	result, err := orch.Run(context.Background(), job.Request, func(ingest.Stage, float64) {}, func() bool { return false })
	require.NoError(t, err)
	require.NoError(t, queue.Finish(job.ID, jobqueue.StatusDone, ""))
	return job, result
}

// TestIndexJob_IdempotentResubmission exercises the queue+orchestrator
// pairing end to end: an identical request submitted while a job is still
// pending collapses onto the same job ID and does no duplicate work, while
// resubmitting after the first run completes starts a fresh pending job under
// the same deterministic ID without changing the indexed document count.
func TestIndexJob_IdempotentResubmission(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Widgets\n\nWidgets are great.\n"), 0o644))

	sc, err := scanner.New()
	require.NoError(t, err)
	embedder := embed.NewStaticEmbedder()
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	keyword, err := store.NewBM25IndexWithBackend("", store.DefaultBM25Config(), "")
	require.NoError(t, err)
	backend := store.NewEmbeddedBackend(vectors, keyword, embedder.Dimensions())
	gs := graph.NewSimpleStore(filepath.Join(root, "graph.json"))

	orch := ingest.New(ingest.Config{
		RootPath:    root,
		Scanner:     sc,
		CodeChunker: chunk.NewCodeChunker(),
		MDChunker:   chunk.NewMarkdownChunker(),
		Embedder:    embedder,
		Backend:     backend,
		GraphStore:  gs,
		GraphEnable: true,
	})

	queue, err := jobqueue.Open(filepath.Join(t.TempDir(), "queue.log"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	req := jobqueue.Request{FolderPath: ".", IncludeCode: false}

	firstID, err := queue.Submit(req)
	require.NoError(t, err)

	dupID, err := queue.Submit(req)
	require.NoError(t, err)
	require.Equal(t, firstID, dupID, "an identical request submitted before completion must reuse the pending job")

	_, result := runOneJob(t, queue, orch)
	require.Equal(t, 1, result.FilesScanned)
	require.Greater(t, result.DocumentCount, 0)
	firstCount := result.DocumentCount

	job, ok := queue.Get(firstID)
	require.True(t, ok)
	require.Equal(t, jobqueue.StatusDone, job.Status)

	secondID, err := queue.Submit(req)
	require.NoError(t, err)
	require.Equal(t, firstID, secondID, "job id is deterministic regardless of job history")
	job, ok = queue.Get(secondID)
	require.True(t, ok)
	require.Equal(t, jobqueue.StatusPending, job.Status, "resubmitting after completion must start a new job")

	_, secondResult := runOneJob(t, queue, orch)
	require.Equal(t, firstCount, secondResult.DocumentCount, "re-indexing identical content should not change the document count")
}
