package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/agent-brain/agentbrain/internal/chunk"
	"github.com/agent-brain/agentbrain/internal/config"
	"github.com/agent-brain/agentbrain/internal/embed"
	"github.com/agent-brain/agentbrain/internal/graph"
	"github.com/agent-brain/agentbrain/internal/health"
	"github.com/agent-brain/agentbrain/internal/httpapi"
	"github.com/agent-brain/agentbrain/internal/ingest"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/query"
	"github.com/agent-brain/agentbrain/internal/rootresolve"
	"github.com/agent-brain/agentbrain/internal/scanner"
	"github.com/agent-brain/agentbrain/internal/statepaths"
	"github.com/agent-brain/agentbrain/internal/store"
)

// stack is the full set of wired components one running instance needs,
// assembled once at start time and shared by the HTTP handlers.
type stack struct {
	cfg     *config.Config
	paths   statepaths.Paths
	backend store.Backend
	embedder embed.Embedder
	graphStore graph.Store
	queue   *jobqueue.Queue
	orchestrator *ingest.Orchestrator
	queryEngine  *query.Orchestrator
	health  *health.Aggregator
}

// buildStack resolves the project root and constructs every C5-C12
// component from config.
func buildStack(ctx context.Context, startPath string, identity health.Identity) (*stack, error) {
	root, err := rootresolve.Resolve(ctx, startPath)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	paths := statepaths.For(root)
	if err := paths.MkdirAll(); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	backend, err := buildBackend(ctx, cfg, paths, embedder.Dimensions())
	if err != nil {
		return nil, err
	}

	var gstore graph.Store
	if cfg.Graph.Enabled {
		gstore, err = buildGraphStore(cfg, paths)
		if err != nil {
			return nil, err
		}
		if err := gstore.Load(ctx); err != nil {
			return nil, fmt.Errorf("load graph: %w", err)
		}
	}

	queue, err := jobqueue.Open(paths.QueueLog, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("open job queue: %w", err)
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	orch := ingest.New(ingest.Config{
		RootPath:    root,
		Scanner:     sc,
		CodeChunker: chunk.NewCodeChunker(),
		MDChunker:   chunk.NewMarkdownChunker(),
		Embedder:    embedder,
		Backend:     backend,
		GraphStore:  gstore,
		GraphEnable: cfg.Graph.Enabled,
		Logger:      slog.Default(),
	})

	qe := query.New(backend, embedder, gstore, graphEntities(ctx, gstore))

	agg := health.New(identity, backend, queue, graphInfo(gstore))

	return &stack{
		cfg:          cfg,
		paths:        paths,
		backend:      backend,
		embedder:     embedder,
		graphStore:   gstore,
		queue:        queue,
		orchestrator: orch,
		queryEngine:  qe,
		health:       agg,
	}, nil
}

func buildBackend(ctx context.Context, cfg *config.Config, paths statepaths.Paths, dimensions int) (store.Backend, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return store.NewPostgresBackend(ctx, cfg.Storage.DatabaseURL, cfg.Storage.PoolSize, dimensions)
	default:
		vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
		if err != nil {
			return nil, fmt.Errorf("create vector store: %w", err)
		}
		keyword, err := store.NewBM25IndexWithBackend(paths.KeywordDir, store.DefaultBM25Config(), cfg.Search.BM25Backend)
		if err != nil {
			return nil, fmt.Errorf("create keyword index: %w", err)
		}
		return store.NewEmbeddedBackend(vectors, keyword, dimensions), nil
	}
}

func buildGraphStore(cfg *config.Config, paths statepaths.Paths) (graph.Store, error) {
	switch cfg.Graph.Store {
	case "kuzu":
		return graph.NewBoltStore(filepath.Join(paths.GraphDir, "graph.bolt"))
	default:
		return graph.NewSimpleStore(filepath.Join(paths.GraphDir, "graph.json")), nil
	}
}

// graphEntities snapshots every entity currently in gstore, for seeding
// query-time graph traversal. Returns nil when graph indexing is disabled.
func graphEntities(ctx context.Context, gstore graph.Store) []*graph.Entity {
	switch s := gstore.(type) {
	case nil:
		return nil
	case interface{ AllEntities() []*graph.Entity }:
		return s.AllEntities()
	case interface {
		AllEntities() ([]*graph.Entity, error)
	}:
		entities, err := s.AllEntities()
		if err != nil {
			slog.Error("read graph entities", slog.String("error", err.Error()))
			return nil
		}
		return entities
	default:
		return nil
	}
}

func graphInfo(gstore graph.Store) health.GraphInfo {
	if gstore == nil {
		return nil
	}
	if gi, ok := gstore.(health.GraphInfo); ok {
		return gi
	}
	return nil
}

// httpServer builds the chi-routed HTTP surface for this stack. ShutdownFunc
// is filled in by the caller once the lifecycle.Controller exists.
func (s *stack) httpServer() *httpapi.Server {
	return &httpapi.Server{
		Health:       s.health,
		Queue:        s.queue,
		Orchestra:    s.orchestrator,
		Query:        s.queryEngine,
		Backend:      s.backend,
		Logger:       slog.Default(),
	}
}

func (s *stack) Close() error {
	var firstErr error
	if s.graphStore != nil {
		if err := s.graphStore.Persist(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.graphStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.queue.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
