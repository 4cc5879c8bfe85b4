package explorer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpandedSet(t *testing.T) {
	s := NewExpandedSet("a", "b", "a")
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if s.Add("b") {
		t.Error("Add of existing id reported true")
	}
	if !s.Add("c") {
		t.Error("Add of new id reported false")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, s.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}

	if !s.Remove("b") || s.Remove("b") {
		t.Error("Remove should report presence once")
	}
	if s.Has("b") || !s.Has("c") {
		t.Error("Has mismatch after Remove")
	}
	if diff := cmp.Diff([]string{"a", "c"}, s.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandedSet_Retain(t *testing.T) {
	s := NewExpandedSet("a", "b", "c", "d")
	removed := s.Retain(func(id string) bool { return id == "a" || id == "d" })
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if diff := cmp.Diff([]string{"a", "d"}, s.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	s.Add("b")
	if diff := cmp.Diff([]string{"a", "d", "b"}, s.IDs()); diff != "" {
		t.Errorf("re-add order mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandedSet_IDsIsCopy(t *testing.T) {
	s := NewExpandedSet("a")
	ids := s.IDs()
	ids[0] = "z"
	if !s.Has("a") || s.IDs()[0] != "a" {
		t.Error("mutating IDs() result changed the set")
	}
}
