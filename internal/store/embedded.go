package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// rrfK is the Reciprocal Rank Fusion smoothing constant, fixed at the
// literature's commonly cited default (used by Azure AI Search, OpenSearch).
const rrfK = 60

// EmbeddedBackend composes the pure-Go HNSW vector store and the BM25
// keyword index behind the Backend contract. It is the default backend,
// requiring no external service.
type EmbeddedBackend struct {
	mu       sync.RWMutex
	vectors  *HNSWStore
	keyword  BM25Index
	docs     map[string]*IndexedDocument
	dim      int
}

// NewEmbeddedBackend builds an embedded backend from already-constructed
// vector and keyword indexes (callers wire paths/config via NewHNSWStore and
// the bm25 factory).
func NewEmbeddedBackend(vectors *HNSWStore, keyword BM25Index, dimensions int) *EmbeddedBackend {
	return &EmbeddedBackend{
		vectors: vectors,
		keyword: keyword,
		docs:    make(map[string]*IndexedDocument),
		dim:     dimensions,
	}
}

func (b *EmbeddedBackend) Initialize(ctx context.Context) error {
	return nil // both sub-stores are ready to use once constructed.
}

func (b *EmbeddedBackend) UpsertDocuments(ctx context.Context, docs []*IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	bmDocs := make([]*Document, 0, len(docs))

	for _, d := range docs {
		if len(d.Embedding) > 0 && b.dim > 0 && len(d.Embedding) != b.dim {
			return ErrDimensionMismatch{Expected: b.dim, Got: len(d.Embedding)}
		}
		ids = append(ids, d.ChunkID)
		vectors = append(vectors, d.Embedding)
		bmDocs = append(bmDocs, &Document{ID: d.ChunkID, Content: d.Content})
	}

	if err := b.vectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	if err := b.keyword.Index(ctx, bmDocs); err != nil {
		return fmt.Errorf("keyword upsert: %w", err)
	}

	b.mu.Lock()
	for _, d := range docs {
		b.docs[d.ChunkID] = d
	}
	b.mu.Unlock()
	return nil
}

func (b *EmbeddedBackend) GetCount(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs), nil
}

func (b *EmbeddedBackend) CountsBySourceType(ctx context.Context) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int)
	for _, d := range b.docs {
		out[d.SourceType]++
	}
	return out, nil
}

func (b *EmbeddedBackend) VectorSearch(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if b.dim > 0 && len(query) != b.dim {
		return nil, ErrDimensionMismatch{Expected: b.dim, Got: len(query)}
	}
	results, err := b.vectors.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	stableSortVector(results)
	return results, nil
}

func (b *EmbeddedBackend) KeywordSearch(ctx context.Context, query string, k int) ([]*BM25Result, error) {
	results, err := b.keyword.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	stableSortBM25(results)
	return results, nil
}

func (b *EmbeddedBackend) HybridSearchWithRRF(ctx context.Context, query string, queryVector []float32, k int, alpha float64) ([]*FusedDocument, error) {
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

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*FusedDocument, 0, k)
	for i, f := range fused {
		if i >= k {
			break
		}
		doc := b.docs[f.ChunkID]
		fd := &FusedDocument{ChunkID: f.ChunkID, Score: f.Score, VecRank: f.VecRank, KeyRank: f.KeyRank}
		if doc != nil {
			fd.FilePath = doc.FilePath
			fd.Content = doc.Content
		}
		out = append(out, fd)
	}
	return out, nil
}

func (b *EmbeddedBackend) GetMetadata(ctx context.Context, chunkIDs []string) (map[string]*IndexedDocument, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*IndexedDocument, len(chunkIDs))
	for _, id := range chunkIDs {
		if doc, ok := b.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (b *EmbeddedBackend) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.docs))
	for id := range b.docs {
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		if err := b.vectors.Delete(ctx, ids); err != nil {
			return err
		}
		if err := b.keyword.Delete(ctx, ids); err != nil {
			return err
		}
	}
	b.docs = make(map[string]*IndexedDocument)
	return nil
}

func (b *EmbeddedBackend) PoolStatus(ctx context.Context) (PoolStatus, error) {
	return PoolStatus{Backend: "embedded", Healthy: true, OpenConns: 1, InUseConns: 1, MaxConns: 1}, nil
}

func (b *EmbeddedBackend) Close() error {
	if err := b.vectors.Close(); err != nil {
		return err
	}
	return b.keyword.Close()
}

func stableSortVector(results []*VectorResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func stableSortBM25(results []*BM25Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

// rrfEntry is the internal accumulator used by fuseRRF.
type rrfEntry struct {
	chunkID string
	score   float64
	vecRank int
	keyRank int
}

// fuseRRF implements Reciprocal Rank Fusion with alpha weighting vector
// contributions and (1-alpha) weighting keyword contributions.
// alpha=0 is pure keyword, alpha=1 is pure vector.
func fuseRRF(bm25 []*BM25Result, vec []*VectorResult, alpha float64, k int) []*FusedDocument {
	if len(bm25) == 0 && len(vec) == 0 {
		return nil
	}

	entries := make(map[string]*rrfEntry)
	get := func(id string) *rrfEntry {
		e, ok := entries[id]
		if !ok {
			e = &rrfEntry{chunkID: id}
			entries[id] = e
		}
		return e
	}

	for rank, r := range bm25 {
		e := get(r.DocID)
		e.keyRank = rank + 1
		e.score += (1 - alpha) / float64(k+rank+1)
	}
	for rank, r := range vec {
		e := get(r.ID)
		e.vecRank = rank + 1
		e.score += alpha / float64(k+rank+1)
	}

	out := make([]*FusedDocument, 0, len(entries))
	for _, e := range entries {
		out = append(out, &FusedDocument{ChunkID: e.chunkID, Score: e.score, VecRank: e.vecRank, KeyRank: e.keyRank})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
