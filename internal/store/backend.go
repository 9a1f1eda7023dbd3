package store

import (
	"context"
	"time"
)

// Backend is the storage-backend contract every implementation (embedded or
// Postgres) satisfies. It is the seam the ingestion and query orchestrators
// program against so they never know which concrete store they're talking to.
type Backend interface {
	// Initialize prepares schema/indexes; idempotent across repeated calls.
	Initialize(ctx context.Context) error

	// UpsertDocuments inserts or replaces documents by ID. Re-upserting an
	// existing ID replaces its content, embedding, and metadata in place;
	// get_count is unaffected by replacement.
	UpsertDocuments(ctx context.Context, docs []*IndexedDocument) error

	// GetCount returns the number of documents currently stored.
	GetCount(ctx context.Context) (int, error)

	// CountsBySourceType breaks GetCount down by each document's SourceType,
	// for the aggregated health snapshot.
	CountsBySourceType(ctx context.Context) (map[string]int, error)

	// VectorSearch returns the k nearest neighbors to query by cosine distance.
	VectorSearch(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// KeywordSearch returns BM25-scored matches for query.
	KeywordSearch(ctx context.Context, query string, k int) ([]*BM25Result, error)

	// HybridSearchWithRRF runs both searches and fuses them with Reciprocal
	// Rank Fusion, weighting vector contributions by alpha and keyword
	// contributions by (1-alpha).
	HybridSearchWithRRF(ctx context.Context, query string, queryVector []float32, k int, alpha float64) ([]*FusedDocument, error)

	// GetMetadata batch-fetches SourceType/Language/FilePath for chunkIDs,
	// the lookup the query orchestrator uses to apply source_type/language
	// filters to a result set after retrieval. Missing IDs are simply absent
	// from the returned map, not an error.
	GetMetadata(ctx context.Context, chunkIDs []string) (map[string]*IndexedDocument, error)

	// Reset deletes all documents and resets the backend to its empty state.
	Reset(ctx context.Context) error

	// PoolStatus reports connection/resource pool health for diagnostics.
	PoolStatus(ctx context.Context) (PoolStatus, error)

	// Close releases backend resources.
	Close() error
}

// IndexedDocument is the unit of storage: a chunk's content, its embedding,
// and the metadata needed to answer filtered queries without re-reading the
// source file.
type IndexedDocument struct {
	ChunkID     string
	FilePath    string
	Content     string
	Embedding   []float32
	SourceType  string
	Language    string
	HeadingPath []string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// FusedDocument is one hybrid-search result after RRF combination, carrying
// enough of the original document to render without a second lookup.
type FusedDocument struct {
	ChunkID   string
	FilePath  string
	Content   string
	Score     float64
	VecRank   int
	KeyRank   int
}

// PoolStatus summarizes a backend's connection pool for GET /health/postgres
// and the embedded equivalent.
type PoolStatus struct {
	Backend        string
	Healthy        bool
	OpenConns      int
	InUseConns     int
	MaxConns       int
	LastError      string
}
