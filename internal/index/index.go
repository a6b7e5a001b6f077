package index

import (
	"sort"
	"sync"

	"mediadupfinder/internal/models"
)

// Index maps a coarse hash to the assets that produced it. Workers insert
// under the lock; the refinement pass works on a Snapshot.
type Index struct {
	mu      sync.Mutex
	buckets map[uint64][]models.AssetRef
	size    int
}

// New creates an empty Index
func New() *Index {
	return &Index{buckets: make(map[uint64][]models.AssetRef)}
}

// Insert adds ref under hash
func (ix *Index) Insert(hash uint64, ref models.AssetRef) {
	ix.mu.Lock()
	ix.buckets[hash] = append(ix.buckets[hash], ref)
	ix.size++
	ix.mu.Unlock()
}

// Reset empties the index for a new scan session
func (ix *Index) Reset() {
	ix.mu.Lock()
	ix.buckets = make(map[uint64][]models.AssetRef)
	ix.size = 0
	ix.mu.Unlock()
}

// Remove drops the given asset IDs from every bucket
func (ix *Index) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for h, refs := range ix.buckets {
		kept := refs[:0]
		for _, r := range refs {
			if gone[r.ID] {
				ix.size--
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(ix.buckets, h)
			continue
		}
		ix.buckets[h] = kept
	}
}

// Len returns the number of inserted assets
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.size
}

// Snapshot is a point-in-time copy of the index
type Snapshot map[uint64][]models.AssetRef

// Snapshot copies the index so readers never hold the lock during refinement
func (ix *Index) Snapshot() Snapshot {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	snap := make(Snapshot, len(ix.buckets))
	for h, refs := range ix.buckets {
		snap[h] = append([]models.AssetRef(nil), refs...)
	}
	return snap
}

// Bucket is one coarse-hash key and its candidates
type Bucket struct {
	Hash   uint64
	Assets []models.AssetRef
}

// Candidates returns the buckets holding at least two assets, each sorted
// oldest first, ordered by their oldest member
func (s Snapshot) Candidates() []Bucket {
	var out []Bucket
	for h, refs := range s {
		if len(refs) < 2 {
			continue
		}
		assets := append([]models.AssetRef(nil), refs...)
		models.SortOldestFirst(assets)
		out = append(out, Bucket{Hash: h, Assets: assets})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Assets[0], out[j].Assets[0]
		if a.ID == b.ID {
			return out[i].Hash < out[j].Hash
		}
		return models.Older(a, b)
	})
	return out
}
