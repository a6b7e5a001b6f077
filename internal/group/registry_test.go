package group

import (
	"testing"

	"mediadupfinder/internal/models"
)

func TestKey_OrderIndependent(t *testing.T) {
	if Key([]string{"b", "a", "c"}) != Key([]string{"c", "b", "a"}) {
		t.Error("keys for the same set should match")
	}
	if Key([]string{"a", "b"}) == Key([]string{"a", "b", "c"}) {
		t.Error("keys for different sets should differ")
	}
}

func TestRegistry_Emit(t *testing.T) {
	r := NewRegistry()
	a, b, c := models.AssetRef{ID: "a"}, models.AssetRef{ID: "b"}, models.AssetRef{ID: "c"}

	g1, isNew := r.Emit(a, []models.AssetRef{b})
	if !isNew {
		t.Error("first emission should be new")
	}
	g2, isNew := r.Emit(b, []models.AssetRef{a})
	if isNew {
		t.Error("same member set should not be emitted twice")
	}
	if g1.ID != g2.ID {
		t.Errorf("IDs differ for the same set: %s != %s", g1.ID, g2.ID)
	}

	g3, isNew := r.Emit(a, []models.AssetRef{b, c})
	if !isNew || g3.ID == g1.ID {
		t.Error("a larger set is a different group")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	g4, isNew := r.Emit(c, []models.AssetRef{b, a})
	if isNew || g4.ID != g3.ID {
		t.Error("member order should not change the group identity")
	}

	r.Reset()
	if r.Len() != 0 {
		t.Error("Reset should empty the registry")
	}
}
