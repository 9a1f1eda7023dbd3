package graph

import (
	"context"
	"sort"
	"strings"
)

// DefaultTraversalDepth is how many BFS hops a graph query follows from its
// seed entities.
const DefaultTraversalDepth = 2

// QueryResult is one entity reached by a graph traversal, with enough
// ranking signal for the query orchestrator to fuse it alongside vector/BM25
// hits.
type QueryResult struct {
	Entity          *Entity
	Depth           int
	ContributingIDs []string // source_chunk_id values along the path that reached this entity
	Orphaned        bool
}

// Query seeds entities whose normalized name shares a token with the query
// text, then BFS-traverses outward to depth hops, ranking by (shallower
// depth first, then more contributing triples first).
func Query(ctx context.Context, store Store, allEntities []*Entity, queryText string, depth int) ([]*QueryResult, error) {
	if depth <= 0 {
		depth = DefaultTraversalDepth
	}
	seeds := seedEntities(allEntities, queryText)
	if len(seeds) == 0 {
		return nil, nil
	}

	visited := make(map[string]*QueryResult)
	frontier := make([]string, 0, len(seeds))
	for _, e := range seeds {
		visited[e.ID] = &QueryResult{Entity: e, Depth: 0}
		frontier = append(frontier, e.ID)
	}

	for d := 1; d <= depth; d++ {
		var next []string
		for _, id := range frontier {
			triples, err := store.Neighbors(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, t := range triples {
				other := t.Object
				if other == id {
					other = t.Subject
				}
				if _, seen := visited[other]; seen {
					visited[other].ContributingIDs = append(visited[other].ContributingIDs, t.SourceChunkID)
					if t.Orphaned {
						visited[other].Orphaned = true
					}
					continue
				}
				ent, ok, err := store.Entity(ctx, other)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				visited[other] = &QueryResult{
					Entity:          ent,
					Depth:           d,
					ContributingIDs: []string{t.SourceChunkID},
					Orphaned:        t.Orphaned,
				}
				next = append(next, other)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	results := make([]*QueryResult, 0, len(visited))
	for _, r := range visited {
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Depth != results[j].Depth {
			return results[i].Depth < results[j].Depth
		}
		if len(results[i].ContributingIDs) != len(results[j].ContributingIDs) {
			return len(results[i].ContributingIDs) > len(results[j].ContributingIDs)
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})
	return results, nil
}

func seedEntities(all []*Entity, queryText string) []*Entity {
	tokens := tokenize(queryText)
	if len(tokens) == 0 {
		return nil
	}
	var seeds []*Entity
	for _, e := range all {
		nameTokens := tokenize(e.Name)
		if overlaps(tokens, nameTokens) {
			seeds = append(seeds, e)
		}
	}
	return seeds
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(w) > 0 {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
