package memory

import (
	"context"
	"maps"
	"sync"
)

// Revisions implements storage.RevisionStore in memory.
type Revisions struct {
	mu         sync.Mutex
	revisions  map[string]int64
	tombstones map[string]map[string]int64
}

// NewRevisions creates an empty revision store.
func NewRevisions() *Revisions {
	return &Revisions{
		revisions:  make(map[string]int64),
		tombstones: make(map[string]map[string]int64),
	}
}

func (r *Revisions) Current(_ context.Context, collection string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revisions[collection], nil
}

func (r *Revisions) Bump(_ context.Context, collection string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revisions[collection]++
	return r.revisions[collection], nil
}

func (r *Revisions) Tombstone(_ context.Context, collection, name string, revision int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tombstones[collection] == nil {
		r.tombstones[collection] = make(map[string]int64)
	}
	r.tombstones[collection][name] = revision
	return nil
}

func (r *Revisions) Tombstones(_ context.Context, collection string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.tombstones[collection]), nil
}
