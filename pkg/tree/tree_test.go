package tree

import (
	"strings"
	"testing"

	"github.com/gridexplore/explorer/pkg/models"
)

func sampleForest() []*models.DirectoryNode {
	return []*models.DirectoryNode{
		{ElementUUID: "a", ElementName: "A", Children: []*models.DirectoryNode{
			{ElementUUID: "a1", ElementName: "A1", ParentUUID: "a"},
			{ElementUUID: "a2", ElementName: "A2", ParentUUID: "a", Children: []*models.DirectoryNode{
				{ElementUUID: "a21", ElementName: "A21", ParentUUID: "a2"},
			}},
		}},
		{ElementUUID: "b", ElementName: "B"},
	}
}

func TestFindByID(t *testing.T) {
	roots := sampleForest()

	tests := []struct {
		id    string
		found bool
	}{
		{"a", true},
		{"a21", true},
		{"b", true},
		{"nonexistent", false},
	}
	for _, tt := range tests {
		node := FindByID(roots, tt.id)
		if (node != nil) != tt.found {
			t.Errorf("FindByID(%q) found=%v, want %v", tt.id, node != nil, tt.found)
		}
		if node != nil && node.ElementUUID != tt.id {
			t.Errorf("FindByID(%q).ElementUUID = %q", tt.id, node.ElementUUID)
		}
	}

	if FindByID(nil, "a") != nil {
		t.Error("FindByID(nil, a) should return nil")
	}
}

func TestCountNodes(t *testing.T) {
	if got := CountNodes(sampleForest()); got != 5 {
		t.Errorf("CountNodes = %d, want 5", got)
	}
	if got := CountNodes(nil); got != 0 {
		t.Errorf("CountNodes(nil) = %d, want 0", got)
	}
}

func TestFlatten(t *testing.T) {
	roots := sampleForest()
	flat := Flatten(roots)
	if len(flat) != 5 {
		t.Errorf("Flatten returned %d nodes, want 5", len(flat))
	}
	for _, id := range []string{"a", "a1", "a2", "a21", "b"} {
		if _, ok := flat[id]; !ok {
			t.Errorf("Flatten missing id %q", id)
		}
	}
	if flat["a21"] != roots[0].Children[1].Children[0] {
		t.Error("Flatten copied a node")
	}

	if len(Flatten(nil)) != 0 {
		t.Error("Flatten(nil) should return empty map")
	}
}

func TestCheckConsistency(t *testing.T) {
	roots := sampleForest()
	if err := CheckConsistency(roots, Flatten(roots)); err != nil {
		t.Fatalf("consistent forest reported: %v", err)
	}

	extra := Flatten(roots)
	extra["ghost"] = &models.DirectoryNode{ElementUUID: "ghost"}
	if err := CheckConsistency(roots, extra); err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("unreachable node not reported: %v", err)
	}

	copied := Flatten(roots)
	copied["a1"] = copied["a1"].Clone()
	if err := CheckConsistency(roots, copied); err == nil || !strings.Contains(err.Error(), "identity") {
		t.Errorf("copied node not reported: %v", err)
	}

	unsorted := []*models.DirectoryNode{
		{ElementUUID: "z", ElementName: "Z"},
		{ElementUUID: "y", ElementName: "Y"},
	}
	if err := CheckConsistency(unsorted, Flatten(unsorted)); err == nil || !strings.Contains(err.Error(), "sorted") {
		t.Errorf("unsorted siblings not reported: %v", err)
	}

	wrongParent := []*models.DirectoryNode{
		{ElementUUID: "p", ElementName: "P", Children: []*models.DirectoryNode{
			{ElementUUID: "c", ElementName: "C", ParentUUID: "elsewhere"},
		}},
	}
	if err := CheckConsistency(wrongParent, Flatten(wrongParent)); err == nil || !strings.Contains(err.Error(), "parent") {
		t.Errorf("wrong parent not reported: %v", err)
	}
}

func TestChildIDs(t *testing.T) {
	roots := sampleForest()
	got := ChildIDs(roots[0])
	if len(got) != 2 || got[0] != "a1" || got[1] != "a2" {
		t.Errorf("ChildIDs = %v", got)
	}
	if ChildIDs(nil) != nil {
		t.Error("ChildIDs(nil) should be nil")
	}
}
