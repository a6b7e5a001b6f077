package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadupfinder/internal/models"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name    string
		groups  []models.DuplicateGroup
		deleted []string
		want    map[string][]string // group ID -> remaining member IDs
	}{
		{
			name:    "unknown asset is a no-op",
			groups:  []models.DuplicateGroup{group("g1", "a", "b")},
			deleted: []string{"zzz"},
			want:    map[string][]string{"g1": {"a", "b"}},
		},
		{
			name:    "member removed",
			groups:  []models.DuplicateGroup{group("g1", "a", "b", "c")},
			deleted: []string{"c"},
			want:    map[string][]string{"g1": {"a", "b"}},
		},
		{
			name:    "group of three loses two and is dropped",
			groups:  []models.DuplicateGroup{group("g1", "a", "b", "c")},
			deleted: []string{"b", "c"},
			want:    map[string][]string{},
		},
		{
			name:    "only the affected group changes",
			groups:  []models.DuplicateGroup{group("g1", "a", "b"), group("g2", "c", "d", "e")},
			deleted: []string{"b", "e"},
			want:    map[string][]string{"g2": {"c", "d"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(models.ClassPhoto)
			s.Start(10)
			s.Publish(tt.groups)

			var deleted []models.AssetRef
			for _, id := range tt.deleted {
				deleted = append(deleted, asset(id))
			}
			s.Reconcile(deleted)

			st := s.Status()
			got := make(map[string][]string, len(st.Groups))
			for _, g := range st.Groups {
				got[g.ID] = g.IDs()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcile_AnchorDeletedPromotesNextMember(t *testing.T) {
	s := New(models.ClassPhoto)
	s.Start(3)
	s.Publish([]models.DuplicateGroup{group("g1", "a", "b", "c")})

	s.Reconcile([]models.AssetRef{asset("a")})

	st := s.Status()
	require.Len(t, st.Groups, 1)
	g := st.Groups[0]
	assert.Equal(t, "b", g.Anchor().ID)
	assert.False(t, g.Members[0].Selected)
	assert.True(t, g.Members[1].Selected)
}

func TestReconcile_MonthBuckets(t *testing.T) {
	s := New(models.ClassScreenshot)
	s.Start(3)
	s.SetMonthBuckets([]models.MonthBucket{
		{Title: "May 2024", Year: 2024, Month: time.May, Members: []models.AssetRef{asset("a"), asset("b")}},
		{Title: "April 2024", Year: 2024, Month: time.April, Members: []models.AssetRef{asset("c")}},
	})

	s.Reconcile([]models.AssetRef{asset("a"), asset("c")})

	buckets := s.MonthBuckets()
	require.Len(t, buckets, 1)
	assert.Equal(t, "May 2024", buckets[0].Title)
	require.Len(t, buckets[0].Members, 1)
	assert.Equal(t, "b", buckets[0].Members[0].ID)
}

func TestReconcile_NoChangeNoSignal(t *testing.T) {
	s := New(models.ClassPhoto)
	s.Start(2)
	s.Publish([]models.DuplicateGroup{group("g1", "a", "b")})

	ch, cancel := s.Subscribe()
	defer cancel()

	s.Reconcile([]models.AssetRef{asset("nope")})
	select {
	case <-ch:
		t.Error("no-op reconcile should not notify")
	default:
	}
}

func TestReconcile_LaterPublishCannotRestoreDeleted(t *testing.T) {
	s := New(models.ClassPhoto)
	s.Start(4)
	s.Publish([]models.DuplicateGroup{group("g1", "a", "b"), group("g2", "c", "d", "e")})

	s.Reconcile([]models.AssetRef{asset("b"), asset("c")})

	// a refinement pass built from an index snapshot taken before the delete
	s.Publish([]models.DuplicateGroup{group("g1", "a", "b"), group("g2", "c", "d", "e")})

	st := s.Status()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, "g2", st.Groups[0].ID)
	assert.Equal(t, []string{"d", "e"}, st.Groups[0].IDs())
	assert.False(t, st.Groups[0].Members[0].Selected)
	assert.True(t, st.Groups[0].Members[1].Selected)
}

func TestReconcile_DeletedSetClearedByStart(t *testing.T) {
	s := New(models.ClassPhoto)
	s.Start(2)
	s.Reconcile([]models.AssetRef{asset("b")})
	s.Finish(false)

	require.True(t, s.Start(2))
	s.Publish([]models.DuplicateGroup{group("g1", "a", "b")})

	st := s.Status()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, []string{"a", "b"}, st.Groups[0].IDs())
}
