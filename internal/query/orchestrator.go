// Package query is the query orchestrator: mode dispatch over
// vector/bm25/hybrid/graph/multi, built against the store.Backend contract
// and extended with a graph mode.
package query

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/embed"
	"github.com/agent-brain/agentbrain/internal/graph"
	"github.com/agent-brain/agentbrain/internal/store"
)

// Mode is the closed set of retrieval strategies.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeBM25   Mode = "bm25"
	ModeHybrid Mode = "hybrid"
	ModeGraph  Mode = "graph"
	ModeMulti  Mode = "multi"
)

const (
	defaultTopK      = 5
	defaultThreshold = 0.3
	defaultAlpha     = 0.5
	multiRRFK        = 60
)

// Request is one query invocation's parameters.
type Request struct {
	Query          string
	Mode           Mode
	TopK           int
	Threshold      float64
	Alpha          float64
	SourceTypes    []string
	Languages      []string
	TraversalDepth int
}

// Result is one ranked hit, carrying per-mode scores plus a combined score.
type Result struct {
	ChunkID     string            `json:"chunk_id"`
	Text        string            `json:"text"`
	Source      string            `json:"source"`
	Score       float64           `json:"score"`
	VectorScore float64           `json:"vector_score,omitempty"`
	KeywordScore float64          `json:"keyword_score,omitempty"`
	GraphDepth  int               `json:"graph_depth,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Orchestrator dispatches a Request to the right backend call(s) and ranks
// the combined output.
type Orchestrator struct {
	backend  store.Backend
	embedder embed.Embedder
	graph    graph.Store // nil when graph indexing is disabled
	entities []*graph.Entity
}

func New(backend store.Backend, embedder embed.Embedder, g graph.Store, entities []*graph.Entity) *Orchestrator {
	return &Orchestrator{backend: backend, embedder: embedder, graph: g, entities: entities}
}

func normalize(req *Request) {
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.Threshold <= 0 {
		req.Threshold = defaultThreshold
	}
	if req.Alpha <= 0 {
		req.Alpha = defaultAlpha
	}
}

func (o *Orchestrator) Execute(ctx context.Context, req Request) ([]*Result, error) {
	normalize(&req)
	switch req.Mode {
	case ModeVector, "":
		return o.vector(ctx, req)
	case ModeBM25:
		return o.bm25(ctx, req)
	case ModeHybrid:
		return o.hybrid(ctx, req)
	case ModeGraph:
		return o.graphMode(ctx, req)
	case ModeMulti:
		return o.multi(ctx, req)
	default:
		return nil, apperrors.New(apperrors.KindInvalidArgument, "unknown query mode: "+string(req.Mode))
	}
}

// hasFilters reports whether req carries a source_type or language
// restriction the backend can't apply itself.
func hasFilters(req Request) bool {
	return len(req.SourceTypes) > 0 || len(req.Languages) > 0
}

// searchPool is how many candidates to pull from the backend before
// filtering and truncating to TopK: unfiltered requests need exactly TopK,
// but a filter can reject candidates, so filtered requests over-fetch the
// same way HybridSearchWithRRF's internal fan-out already does.
func searchPool(req Request) int {
	if !hasFilters(req) {
		return req.TopK
	}
	pool := req.TopK * 4
	if pool < 20 {
		pool = 20
	}
	return pool
}

// applyFilters drops results whose stored source_type/language doesn't match
// req, then truncates to TopK. A result whose chunk has no metadata on file
// (shouldn't happen outside tests) is dropped rather than kept, since it
// can't be shown to satisfy a filter it might violate.
func (o *Orchestrator) applyFilters(ctx context.Context, req Request, results []*Result) ([]*Result, error) {
	if !hasFilters(req) {
		if len(results) > req.TopK {
			results = results[:req.TopK]
		}
		return results, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	meta, err := o.backend.GetMetadata(ctx, ids)
	if err != nil {
		return nil, err
	}

	sourceTypes := toSet(req.SourceTypes)
	languages := toSet(req.Languages)

	out := make([]*Result, 0, req.TopK)
	for _, r := range results {
		doc, ok := meta[r.ChunkID]
		if !ok {
			continue
		}
		if len(sourceTypes) > 0 {
			if _, ok := sourceTypes[doc.SourceType]; !ok {
				continue
			}
		}
		if len(languages) > 0 {
			if _, ok := languages[doc.Language]; !ok {
				continue
			}
		}
		out = append(out, r)
		if len(out) >= req.TopK {
			break
		}
	}
	return out, nil
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (o *Orchestrator) vector(ctx context.Context, req Request) ([]*Result, error) {
	qv, err := o.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProviderUnavailable, err, "embed query")
	}
	hits, err := o.backend.VectorSearch(ctx, qv, searchPool(req))
	if err != nil {
		return nil, err
	}
	var out []*Result
	for _, h := range hits {
		if float64(h.Score) < req.Threshold {
			continue
		}
		out = append(out, &Result{ChunkID: h.ID, Score: float64(h.Score), VectorScore: float64(h.Score)})
	}
	return o.applyFilters(ctx, req, out)
}

func (o *Orchestrator) bm25(ctx context.Context, req Request) ([]*Result, error) {
	hits, err := o.backend.KeywordSearch(ctx, req.Query, searchPool(req))
	if err != nil {
		return nil, err
	}
	out := make([]*Result, len(hits))
	for i, h := range hits {
		out[i] = &Result{ChunkID: h.DocID, Score: h.Score, KeywordScore: h.Score}
	}
	return o.applyFilters(ctx, req, out)
}

func (o *Orchestrator) hybrid(ctx context.Context, req Request) ([]*Result, error) {
	qv, err := o.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProviderUnavailable, err, "embed query")
	}
	fused, err := o.backend.HybridSearchWithRRF(ctx, req.Query, qv, searchPool(req), req.Alpha)
	if err != nil {
		return nil, err
	}
	var out []*Result
	for _, f := range fused {
		if f.Score < req.Threshold {
			continue
		}
		out = append(out, &Result{ChunkID: f.ChunkID, Text: f.Content, Source: f.FilePath, Score: f.Score})
	}
	return o.applyFilters(ctx, req, out)
}

func (o *Orchestrator) graphMode(ctx context.Context, req Request) ([]*Result, error) {
	if o.graph == nil {
		return nil, apperrors.New(apperrors.KindGraphDisabled, "graph mode requires graph indexing to be enabled")
	}
	hits, err := graph.Query(ctx, o.graph, o.entities, req.Query, req.TraversalDepth)
	if err != nil {
		return nil, err
	}
	out := make([]*Result, 0, len(hits))
	for _, h := range hits {
		score := 1.0 / float64(h.Depth+1)
		if h.Orphaned {
			score /= 2 // orphaned triples stay queryable at a lowered rank weight
		}
		for _, chunkID := range h.ContributingIDs {
			out = append(out, &Result{ChunkID: chunkID, Score: score, GraphDepth: h.Depth})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return o.applyFilters(ctx, req, out)
}

// multi runs vector, keyword, and graph concurrently and fuses the three
// rankings with RRF (K=60), tie-breaking by chunk_id ascending.
func (o *Orchestrator) multi(ctx context.Context, req Request) ([]*Result, error) {
	var vec, bm []*Result
	var gr []*Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vec, err = o.vector(gctx, req)
		return err
	})
	g.Go(func() error {
		var err error
		bm, err = o.bm25(gctx, req)
		return err
	})
	g.Go(func() error {
		if o.graph == nil {
			return nil
		}
		var err error
		gr, err = o.graphMode(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	rrfAdd := func(results []*Result) {
		for rank, r := range results {
			scores[r.ChunkID] += 1.0 / float64(multiRRFK+rank+1)
		}
	}
	rrfAdd(vec)
	rrfAdd(bm)
	rrfAdd(gr)

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > req.TopK {
		ids = ids[:req.TopK]
	}

	out := make([]*Result, len(ids))
	for i, id := range ids {
		out[i] = &Result{ChunkID: id, Score: scores[id]}
	}
	return out, nil
}
