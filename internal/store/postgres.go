package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresBackend implements Backend against PostgreSQL+pgvector: a
// documents table with VECTOR, TSVECTOR, and JSONB columns, an HNSW ANN
// index, and GIN indexes for keyword search, grounded on the other_examples
// postgres vectorstore file's pgxpool/pgvector-go pairing.
type PostgresBackend struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresBackend connects to dsn and ensures schema exists, retrying
// schema initialization up to 5 times with exponential backoff (0.5s
// doubling to an 8s cap) since Postgres may still be starting up alongside
// the instance.
func NewPostgresBackend(ctx context.Context, dsn string, maxConns, dimensions int) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	b := &PostgresBackend{pool: pool, dim: dimensions}
	if err := b.initWithBackoff(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) initWithBackoff(ctx context.Context) error {
	delay := 500 * time.Millisecond
	const maxDelay = 8 * time.Second
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := b.Initialize(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == 5 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("initialize postgres schema after 5 attempts: %w", lastErr)
}

func (b *PostgresBackend) Initialize(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	chunk_id    TEXT PRIMARY KEY,
	file_path   TEXT NOT NULL,
	content     TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	embedding   vector(%[1]d),
	content_tsv TSVECTOR NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS documents_tsv_idx ON documents USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS documents_metadata_idx ON documents USING GIN (metadata);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_indexes
		WHERE schemaname = current_schema() AND indexname = 'documents_embedding_hnsw_idx'
	) THEN
		EXECUTE 'CREATE INDEX documents_embedding_hnsw_idx ON documents USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64);';
	END IF;
END
$$;
`, b.dim)

	_, err := b.pool.Exec(ctx, stmt)
	return err
}

func (b *PostgresBackend) UpsertDocuments(ctx context.Context, docs []*IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range docs {
		if len(d.Embedding) > 0 && b.dim > 0 && len(d.Embedding) != b.dim {
			return ErrDimensionMismatch{Expected: b.dim, Got: len(d.Embedding)}
		}
		metadata := metadataJSON(d.Metadata)
		_, err := tx.Exec(ctx, `
INSERT INTO documents (chunk_id, file_path, content, source_type, language, embedding, content_tsv, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, to_tsvector('english', $3), $7, $8)
ON CONFLICT (chunk_id) DO UPDATE SET
	file_path = EXCLUDED.file_path,
	content = EXCLUDED.content,
	source_type = EXCLUDED.source_type,
	language = EXCLUDED.language,
	embedding = EXCLUDED.embedding,
	content_tsv = EXCLUDED.content_tsv,
	metadata = EXCLUDED.metadata
`, d.ChunkID, d.FilePath, d.Content, d.SourceType, d.Language, pgvector.NewVector(d.Embedding), metadata, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", d.ChunkID, err)
		}
	}
	return tx.Commit(ctx)
}

func (b *PostgresBackend) GetCount(ctx context.Context) (int, error) {
	var count int
	err := b.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	return count, err
}

func (b *PostgresBackend) CountsBySourceType(ctx context.Context) (map[string]int, error) {
	rows, err := b.pool.Query(ctx, `SELECT source_type, count(*) FROM documents GROUP BY source_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var sourceType string
		var count int
		if err := rows.Scan(&sourceType, &count); err != nil {
			return nil, err
		}
		out[sourceType] = count
	}
	return out, rows.Err()
}

func (b *PostgresBackend) VectorSearch(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if b.dim > 0 && len(query) != b.dim {
		return nil, ErrDimensionMismatch{Expected: b.dim, Got: len(query)}
	}
	rows, err := b.pool.Query(ctx, `
SELECT chunk_id, embedding <=> $1 AS distance
FROM documents
ORDER BY distance ASC, chunk_id ASC
LIMIT $2
`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VectorResult
	for rows.Next() {
		var r VectorResult
		var distance float64
		if err := rows.Scan(&r.ID, &distance); err != nil {
			return nil, err
		}
		r.Distance = float32(distance)
		r.Score = float32(1 - distance/2) // cosine distance in [0,2] -> similarity in [0,1]
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) KeywordSearch(ctx context.Context, query string, k int) ([]*BM25Result, error) {
	rows, err := b.pool.Query(ctx, `
SELECT chunk_id, ts_rank_cd(content_tsv, plainto_tsquery('english', $1)) AS rank
FROM documents
WHERE content_tsv @@ plainto_tsquery('english', $1)
ORDER BY rank DESC, chunk_id ASC
LIMIT $2
`, query, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BM25Result
	for rows.Next() {
		var r BM25Result
		if err := rows.Scan(&r.DocID, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) HybridSearchWithRRF(ctx context.Context, query string, queryVector []float32, k int, alpha float64) ([]*FusedDocument, error) {
	fanOut := k * 4
	if fanOut < 20 {
		fanOut = 20
	}

	vecResults, err := b.VectorSearch(ctx, queryVector, fanOut)
	if err != nil {
		return nil, err
	}
	bmResults, err := b.KeywordSearch(ctx, query, fanOut)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(bmResults, vecResults, alpha, rrfK)
	if len(fused) > k {
		fused = fused[:k]
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	docs, err := b.fetchDocs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range fused {
		if d, ok := docs[f.ChunkID]; ok {
			f.FilePath = d.FilePath
			f.Content = d.Content
		}
	}
	return fused, nil
}

func (b *PostgresBackend) fetchDocs(ctx context.Context, ids []string) (map[string]*IndexedDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := b.pool.Query(ctx, `SELECT chunk_id, file_path, content FROM documents WHERE chunk_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*IndexedDocument, len(ids))
	for rows.Next() {
		d := &IndexedDocument{}
		if err := rows.Scan(&d.ChunkID, &d.FilePath, &d.Content); err != nil {
			return nil, err
		}
		out[d.ChunkID] = d
	}
	return out, rows.Err()
}

// GetMetadata batch-fetches source_type/language for the query orchestrator's
// post-retrieval filter pass.
func (b *PostgresBackend) GetMetadata(ctx context.Context, chunkIDs []string) (map[string]*IndexedDocument, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := b.pool.Query(ctx, `
SELECT chunk_id, file_path, source_type, language
FROM documents
WHERE chunk_id = ANY($1)
`, chunkIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*IndexedDocument, len(chunkIDs))
	for rows.Next() {
		d := &IndexedDocument{}
		if err := rows.Scan(&d.ChunkID, &d.FilePath, &d.SourceType, &d.Language); err != nil {
			return nil, err
		}
		out[d.ChunkID] = d
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Reset(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `TRUNCATE TABLE documents`)
	return err
}

func (b *PostgresBackend) PoolStatus(ctx context.Context) (PoolStatus, error) {
	stat := b.pool.Stat()
	status := PoolStatus{
		Backend:    "postgres",
		OpenConns:  int(stat.TotalConns()),
		InUseConns: int(stat.AcquiredConns()),
		MaxConns:   int(stat.MaxConns()),
	}
	if err := b.pool.Ping(ctx); err != nil {
		status.LastError = err.Error()
		return status, err
	}
	status.Healthy = true
	return status, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func metadataJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return data
}
