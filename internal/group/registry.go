package group

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mediadupfinder/internal/models"
)

// Registry remembers emitted groups by their member-ID set. Two groups are
// the same group when their sets of asset IDs are equal, regardless of
// member order.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]string
	newID func() string
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[string]string),
		newID: uuid.NewString,
	}
}

// Key returns the canonical identity of a member-ID set
func Key(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// Emit builds the group anchored at anchor. isNew is false when the same
// member set was emitted before, in which case the earlier ID is reused.
func (r *Registry) Emit(anchor models.AssetRef, others []models.AssetRef) (models.DuplicateGroup, bool) {
	ids := make([]string, 0, len(others)+1)
	ids = append(ids, anchor.ID)
	for _, o := range others {
		ids = append(ids, o.ID)
	}
	key := Key(ids)

	r.mu.Lock()
	id, seen := r.byKey[key]
	if !seen {
		id = r.newID()
		r.byKey[key] = id
	}
	r.mu.Unlock()

	return models.NewDuplicateGroup(id, anchor, others), !seen
}

// Len returns the number of distinct emitted groups
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Reset forgets every emitted group
func (r *Registry) Reset() {
	r.mu.Lock()
	r.byKey = make(map[string]string)
	r.mu.Unlock()
}
