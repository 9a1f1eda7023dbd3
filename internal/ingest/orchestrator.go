// Package ingest is the ingestion orchestrator: the six-stage
// discover/chunk/embed/upsert/graph/finalize pipeline run per job, a
// from-scratch pipeline driven by the job queue.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agent-brain/agentbrain/internal/chunk"
	"github.com/agent-brain/agentbrain/internal/embed"
	"github.com/agent-brain/agentbrain/internal/graph"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/scanner"
	"github.com/agent-brain/agentbrain/internal/store"
)

// Stage is the pipeline boundary label passed to Progress callbacks.
type Stage string

const (
	StageDiscover Stage = "discover"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageUpsert   Stage = "upsert"
	StageGraph    Stage = "graph"
	StageFinalize Stage = "finalize"
)

// Progress is invoked at stage boundaries; C12 health/status consumes it.
type Progress func(stage Stage, fraction float64)

// Config wires the orchestrator's dependencies.
type Config struct {
	RootPath    string
	Scanner     *scanner.Scanner
	CodeChunker chunk.Chunker
	MDChunker   chunk.Chunker
	Embedder    embed.Embedder
	Backend     store.Backend
	GraphStore  graph.Store // nil disables graph building
	GraphEnable bool
	Logger      *slog.Logger
}

// Orchestrator runs one job's ingestion pipeline.
type Orchestrator struct {
	cfg Config
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg}
}

// Result summarizes a completed (or partially completed, on cancellation)
// ingestion run.
type Result struct {
	DocumentCount  int
	ChunksFailed   int
	FilesScanned   int
}

// cancelCheck is polled between stages for cooperative cancellation (I: a
// long ingestion reaches "cancelled" within 5s of a cancel request).
type cancelCheck func() bool

// Run executes the full pipeline for req, invoking progress at each stage
// boundary and polling isCancelled between stages. A failure isolated to a
// single file or chunk (stages 2-3, chunk and embed) is skipped and warned
// about, not fatal; a backend failure (stages 4-5, upsert and graph) aborts
// the whole job.
func (o *Orchestrator) Run(ctx context.Context, req jobqueue.Request, progress Progress, isCancelled cancelCheck) (*Result, error) {
	result := &Result{}

	files, err := o.discover(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	result.FilesScanned = len(files)
	progress(StageDiscover, 1.0)
	if isCancelled() {
		return result, nil
	}

	chunks, failedChunking := o.chunkAll(ctx, files)
	result.ChunksFailed += failedChunking
	progress(StageChunk, 1.0)
	if isCancelled() {
		return result, nil
	}

	docs, failedEmbedding := o.embedAll(ctx, chunks)
	result.ChunksFailed += failedEmbedding
	progress(StageEmbed, 1.0)
	if isCancelled() {
		return result, nil
	}

	if err := o.cfg.Backend.UpsertDocuments(ctx, docs); err != nil {
		return result, fmt.Errorf("upsert documents: %w", err)
	}
	result.DocumentCount = len(docs)
	progress(StageUpsert, 1.0)
	if isCancelled() {
		return result, nil
	}

	if o.cfg.GraphEnable && o.cfg.GraphStore != nil {
		if err := o.buildGraph(ctx, chunks); err != nil {
			return result, fmt.Errorf("graph build: %w", err)
		}
	}
	progress(StageGraph, 1.0)

	progress(StageFinalize, 1.0)
	return result, nil
}

func (o *Orchestrator) discover(ctx context.Context, req jobqueue.Request) ([]*scanner.FileInfo, error) {
	opts := &scanner.ScanOptions{
		RootDir:          filepath.Join(o.cfg.RootPath, req.FolderPath),
		ExcludePatterns:  req.ExcludePatterns,
		RespectGitignore: true,
	}
	results, err := o.cfg.Scanner.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*scanner.FileInfo
	for r := range results {
		if r.Error != nil {
			o.cfg.Logger.Warn("ingest: scan error", slog.String("error", r.Error.Error()))
			continue
		}
		if r.File.ContentType == scanner.ContentTypeCode && !req.IncludeCode {
			continue
		}
		if len(req.Languages) > 0 && r.File.ContentType == scanner.ContentTypeCode && !containsFold(req.Languages, r.File.Language) {
			continue
		}
		files = append(files, r.File)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (o *Orchestrator) chunkAll(ctx context.Context, files []*scanner.FileInfo) ([]*chunk.Chunk, int) {
	var all []*chunk.Chunk
	failed := 0
	for _, f := range files {
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			o.cfg.Logger.Warn("ingest: read failed, skipping file", slog.String("path", f.Path), slog.String("error", err.Error()))
			failed++
			continue
		}
		chunker := o.cfg.CodeChunker
		if f.ContentType == scanner.ContentTypeMarkdown {
			chunker = o.cfg.MDChunker
		}
		chunks, err := chunker.Chunk(ctx, &chunk.FileInput{Path: f.Path, Content: content, Language: f.Language})
		if err != nil {
			o.cfg.Logger.Warn("ingest: chunk failed, skipping file", slog.String("path", f.Path), slog.String("error", err.Error()))
			failed++
			continue
		}
		all = append(all, chunks...)
	}
	return all, failed
}

func (o *Orchestrator) embedAll(ctx context.Context, chunks []*chunk.Chunk) ([]*store.IndexedDocument, int) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := o.cfg.Embedder.EmbedBatch(ctx, texts)
	failed := 0
	if err != nil {
		// Batch failed wholesale: retry once more as singleton batches so a
		// single bad chunk doesn't sink the whole batch's embeddings.
		vectors = make([][]float32, len(chunks))
		for i, text := range texts {
			v, err := o.cfg.Embedder.Embed(ctx, text)
			if err != nil {
				o.cfg.Logger.Warn("ingest: embedding failed, dropping chunk", slog.String("chunk_id", chunks[i].ID), slog.String("error", err.Error()))
				failed++
				continue
			}
			vectors[i] = v
		}
	}

	docs := make([]*store.IndexedDocument, 0, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		docs = append(docs, &store.IndexedDocument{
			ChunkID:     c.ID,
			FilePath:    c.FilePath,
			Content:     c.Content,
			Embedding:   vectors[i],
			SourceType:  string(c.SourceType),
			Language:    c.Language,
			HeadingPath: c.HeadingPath,
			Metadata:    c.Metadata,
			CreatedAt:   c.CreatedAt,
		})
	}
	return docs, failed
}

func (o *Orchestrator) buildGraph(ctx context.Context, chunks []*chunk.Chunk) error {
	for _, c := range chunks {
		ext := graph.ExtractAST(c)
		for _, e := range ext.Entities {
			if err := o.cfg.GraphStore.AddEntity(ctx, e); err != nil {
				return err
			}
		}
		for _, t := range ext.Triples {
			if err := o.cfg.GraphStore.AddTriple(ctx, t); err != nil {
				return err
			}
		}
	}
	return o.cfg.GraphStore.Persist(ctx)
}

func containsFold(list []string, item string) bool {
	for _, s := range list {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
