package session

import "mediadupfinder/internal/models"

// Reconcile applies deletions reported by the media store to the published
// cache. Deleted members leave their group; a group left with fewer than two
// members is dropped; a month bucket left empty is dropped. When the anchor
// is deleted the next remaining member becomes the anchor and is unselected.
// IDs that appear in no group or bucket are ignored. The IDs are also
// remembered until the next Start so that a later Publish cannot bring
// them back.
func (s *Session) Reconcile(deleted []models.AssetRef) {
	if len(deleted) == 0 {
		return
	}
	gone := make(map[string]bool, len(deleted))
	for _, d := range deleted {
		gone[d.ID] = true
	}

	s.mu.Lock()
	if s.deleted == nil {
		s.deleted = make(map[string]bool, len(gone))
	}
	for id := range gone {
		s.deleted[id] = true
	}
	groups, changedGroups := reconcileGroups(s.groups, gone)
	buckets, changedBuckets := reconcileBuckets(s.buckets, gone)
	s.groups = groups
	s.buckets = buckets
	s.mu.Unlock()

	if changedGroups || changedBuckets {
		s.log.Debug().Str("class", string(s.class)).Int("deleted", len(deleted)).Msg("cache reconciled")
		s.notify()
	}
}

func reconcileGroups(groups []models.DuplicateGroup, gone map[string]bool) ([]models.DuplicateGroup, bool) {
	changed := false
	out := groups[:0]
	for _, g := range groups {
		kept := g.Members[:0]
		anchorGone := false
		for i, m := range g.Members {
			if gone[m.Asset.ID] {
				changed = true
				if i == 0 {
					anchorGone = true
				}
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) < 2 {
			continue
		}
		if anchorGone {
			kept[0].Selected = false
		}
		g.Members = kept
		out = append(out, g)
	}
	// clear the tail so dropped groups are not pinned by the backing array
	for i := len(out); i < len(groups); i++ {
		groups[i] = models.DuplicateGroup{}
	}
	return out, changed
}

func reconcileBuckets(buckets []models.MonthBucket, gone map[string]bool) ([]models.MonthBucket, bool) {
	changed := false
	out := buckets[:0]
	for _, b := range buckets {
		kept := b.Members[:0]
		for _, a := range b.Members {
			if gone[a.ID] {
				changed = true
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			continue
		}
		b.Members = kept
		out = append(out, b)
	}
	return out, changed
}
