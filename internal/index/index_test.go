package index

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"mediadupfinder/internal/models"
)

func TestIndex_InsertAndSnapshot(t *testing.T) {
	ix := New()
	ix.Insert(1, models.AssetRef{ID: "a"})
	ix.Insert(1, models.AssetRef{ID: "b"})
	ix.Insert(2, models.AssetRef{ID: "c"})

	if ix.Len() != 3 {
		t.Errorf("Len = %d, want 3", ix.Len())
	}

	snap := ix.Snapshot()
	if len(snap[1]) != 2 || len(snap[2]) != 1 {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	// the snapshot must not alias the index
	ix.Insert(1, models.AssetRef{ID: "d"})
	if len(snap[1]) != 2 {
		t.Errorf("snapshot changed after insert: %d members", len(snap[1]))
	}
}

func TestIndex_Reset(t *testing.T) {
	ix := New()
	ix.Insert(7, models.AssetRef{ID: "a"})
	ix.Reset()

	if ix.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", ix.Len())
	}
	if len(ix.Snapshot()) != 0 {
		t.Error("snapshot after reset should be empty")
	}
}

func TestIndex_ConcurrentInsert(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ix.Insert(uint64(i%4), models.AssetRef{ID: fmt.Sprintf("%d-%d", w, i)})
			}
		}(w)
	}
	wg.Wait()

	if ix.Len() != 800 {
		t.Errorf("Len = %d, want 800", ix.Len())
	}
	total := 0
	for _, refs := range ix.Snapshot() {
		total += len(refs)
	}
	if total != 800 {
		t.Errorf("snapshot holds %d refs, want 800", total)
	}
}

func TestSnapshot_Candidates(t *testing.T) {
	now := time.Now()
	snap := Snapshot{
		1: {
			{ID: "new", CreationDate: now},
			{ID: "old", CreationDate: now.Add(-time.Hour)},
		},
		2: {{ID: "single"}},
		3: {
			{ID: "oldest", CreationDate: now.Add(-2 * time.Hour)},
			{ID: "other", CreationDate: now},
		},
	}

	buckets := snap.Candidates()
	if len(buckets) != 2 {
		t.Fatalf("expected 2 candidate buckets, got %d", len(buckets))
	}
	if buckets[0].Hash != 3 {
		t.Errorf("first bucket = %d, want 3 (holds the oldest asset)", buckets[0].Hash)
	}
	if buckets[1].Assets[0].ID != "old" {
		t.Errorf("bucket members not sorted oldest first: %v", buckets[1].Assets)
	}
}

func TestIndex_Remove(t *testing.T) {
	ix := New()
	ix.Insert(1, models.AssetRef{ID: "a"})
	ix.Insert(1, models.AssetRef{ID: "b"})
	ix.Insert(2, models.AssetRef{ID: "c"})

	snap := ix.Snapshot()
	ix.Remove("a", "c", "unknown")

	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
	after := ix.Snapshot()
	if len(after) != 1 || len(after[1]) != 1 || after[1][0].ID != "b" {
		t.Errorf("unexpected index after remove: %v", after)
	}
	if len(snap[1]) != 2 {
		t.Error("earlier snapshot must not be affected by Remove")
	}
}
