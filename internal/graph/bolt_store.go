package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketEntities       = []byte("entities")
	bucketTriplesBySubj  = []byte("triples_by_subject")
	bucketTriplesByObj   = []byte("triples_by_object")
)

// BoltStore is the durable graph backend named "kuzu" in configuration for
// compatibility with the config schema's naming, but implemented with
// go.etcd.io/bbolt: already a transitive dependency via bleve's scorch/zap
// segments and promoted to direct here, since a pure-Go CozoDB binding
// doesn't exist (cozodb is cgo-only; see DESIGN.md). Three buckets give
// O(1) neighbor lookups without a full JSON round-trip on every traversal.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (creating if absent) the bbolt file at path and
// ensures its three buckets exist.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEntities, bucketTriplesBySubj, bucketTriplesByObj} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init graph buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) AddEntity(ctx context.Context, e *Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntities).Put([]byte(e.ID), data)
	})
}

// tripleRecord is keyed by subject/object bucket prefix + a sequence
// suffix so multiple triples between the same pair of entities coexist.
func (s *BoltStore) AddTriple(ctx context.Context, t *Triple) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		subjBucket := tx.Bucket(bucketTriplesBySubj)
		seq, _ := subjBucket.NextSequence()
		key := fmt.Sprintf("%s/%020d", t.Subject, seq)
		if err := subjBucket.Put([]byte(key), data); err != nil {
			return err
		}
		objBucket := tx.Bucket(bucketTriplesByObj)
		objKey := fmt.Sprintf("%s/%020d", t.Object, seq)
		return objBucket.Put([]byte(objKey), data)
	})
}

func (s *BoltStore) Neighbors(ctx context.Context, entityID string) ([]*Triple, error) {
	var out []*Triple
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := []byte(entityID + "/")
		for _, bucketName := range [][]byte{bucketTriplesBySubj, bucketTriplesByObj} {
			c := tx.Bucket(bucketName).Cursor()
			for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
				var t Triple
				if err := json.Unmarshal(v, &t); err != nil {
					return err
				}
				out = append(out, &t)
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) Entity(ctx context.Context, entityID string) (*Entity, bool, error) {
	var e Entity
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get([]byte(entityID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil || !found {
		return nil, false, err
	}
	return &e, true, nil
}

// MarkOrphaned scans both triple buckets and rewrites records whose
// SourceChunkID matches. bbolt has no secondary index on SourceChunkID, so
// this is a linear scan; rebuilds (the only time chunks are replaced)
// already touch every triple.
func (s *BoltStore) MarkOrphaned(ctx context.Context, chunkID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucketName := range [][]byte{bucketTriplesBySubj, bucketTriplesByObj} {
			b := tx.Bucket(bucketName)
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var t Triple
				if err := json.Unmarshal(v, &t); err != nil {
					return err
				}
				if t.SourceChunkID != chunkID || t.Orphaned {
					continue
				}
				t.Orphaned = true
				data, err := json.Marshal(&t)
				if err != nil {
					return err
				}
				if err := b.Put(k, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Persist is a no-op: bbolt commits each Update transaction durably.
func (s *BoltStore) Persist(ctx context.Context) error { return nil }

// Load is a no-op: bbolt state is already on disk and reopened by NewBoltStore.
func (s *BoltStore) Load(ctx context.Context) error { return nil }

func (s *BoltStore) Close() error { return s.db.Close() }

// EntityCount, RelationshipCount, and StoreType satisfy health.GraphInfo.
func (s *BoltStore) EntityCount() int {
	count := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketEntities).Stats().KeyN
		return nil
	})
	return count
}

func (s *BoltStore) RelationshipCount() int {
	count := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketTriplesBySubj).Stats().KeyN
		return nil
	})
	return count
}

func (s *BoltStore) StoreType() string { return "bolt" }

// AllEntities returns every known entity, for seeding graph-mode query
// traversal (graph.Query needs the full candidate set to match against).
func (s *BoltStore) AllEntities() ([]*Entity, error) {
	var out []*Entity
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEntities).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
