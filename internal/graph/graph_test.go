package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agent-brain/agentbrain/internal/chunk"
	"github.com/stretchr/testify/require"
)

func sampleChunk() *chunk.Chunk {
	return &chunk.Chunk{
		ID:       "chunk-sample",
		FilePath: "service/handler.go",
		Content:  "func HandleRequest() {}",
		Context:  "import \"net/http\"",
		Symbols: []*chunk.Symbol{
			{Name: "HandleRequest", Type: chunk.SymbolTypeFunction, StartLine: 1, EndLine: 3},
		},
	}
}

func buildSampleGraph(t *testing.T, s Store) []*Entity {
	t.Helper()
	ctx := context.Background()

	a := NewEntity("ServiceA", EntityClass)
	b := NewEntity("ServiceB", EntityClass)
	c := NewEntity("ServiceC", EntityClass)

	require.NoError(t, s.AddEntity(ctx, a))
	require.NoError(t, s.AddEntity(ctx, b))
	require.NoError(t, s.AddEntity(ctx, c))

	require.NoError(t, s.AddTriple(ctx, &Triple{Subject: a.ID, Predicate: PredExtends, Object: b.ID, SourceChunkID: "chunk-1"}))
	require.NoError(t, s.AddTriple(ctx, &Triple{Subject: b.ID, Predicate: PredExtends, Object: c.ID, SourceChunkID: "chunk-2"}))

	return []*Entity{a, b, c}
}

func TestSimpleStore_PersistAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")

	s := NewSimpleStore(path)
	buildSampleGraph(t, s)
	require.NoError(t, s.Persist(ctx))

	reloaded := NewSimpleStore(path)
	require.NoError(t, reloaded.Load(ctx))

	neighbors, err := reloaded.Neighbors(ctx, EntityID("ServiceB", EntityClass))
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
}

func TestQuery_BFSTraversalRanksByDepth(t *testing.T) {
	ctx := context.Background()
	s := NewSimpleStore(filepath.Join(t.TempDir(), "graph.json"))
	entities := buildSampleGraph(t, s)

	results, err := Query(ctx, s, entities, "ServiceA", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, entities[0].ID, results[0].Entity.ID) // seed itself, depth 0
	require.Equal(t, 0, results[0].Depth)

	// ServiceB is one hop away, ServiceC is two hops.
	var foundB, foundC bool
	for _, r := range results {
		switch r.Entity.ID {
		case entities[1].ID:
			foundB = true
			require.Equal(t, 1, r.Depth)
		case entities[2].ID:
			foundC = true
			require.Equal(t, 2, r.Depth)
		}
	}
	require.True(t, foundB)
	require.True(t, foundC)
}

func TestMarkOrphaned_RetainsTripleButFlagsIt(t *testing.T) {
	ctx := context.Background()
	s := NewSimpleStore(filepath.Join(t.TempDir(), "graph.json"))
	buildSampleGraph(t, s)

	require.NoError(t, s.MarkOrphaned(ctx, "chunk-1"))

	neighbors, err := s.Neighbors(ctx, EntityID("ServiceA", EntityClass))
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.True(t, neighbors[0].Orphaned)
}

func TestExtractAST_EmitsContainsAndDefinedIn(t *testing.T) {
	c := sampleChunk()
	ext := ExtractAST(c)

	var hasContains, hasDefinedIn bool
	for _, tr := range ext.Triples {
		switch tr.Predicate {
		case PredContains:
			hasContains = true
		case PredDefinedIn:
			hasDefinedIn = true
		}
	}
	require.True(t, hasContains)
	require.True(t, hasDefinedIn)
}
