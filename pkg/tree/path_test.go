package tree

import (
	"testing"

	"github.com/gridexplore/explorer/pkg/models"
)

func pathIDs(path []*models.DirectoryNode) []string {
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.ElementUUID
	}
	return ids
}

func TestBuildPathToFromMap(t *testing.T) {
	m := NodeMap{
		"A": {ElementUUID: "A", ElementName: "a"},
		"B": {ElementUUID: "B", ElementName: "b", ParentUUID: "A"},
		"C": {ElementUUID: "C", ElementName: "c", ParentUUID: "B"},
		"D": {ElementUUID: "D", ElementName: "d", ParentUUID: "missing"},
	}

	tests := []struct {
		name   string
		nodeID string
		m      NodeMap
		want   []string
	}{
		{"full chain", "C", m, []string{"A", "B", "C"}},
		{"root", "A", m, []string{"A"}},
		{"no id", "", m, []string{}},
		{"unknown id", "Z", m, []string{}},
		{"nil map", "C", nil, []string{}},
		{"partial chain", "D", m, []string{"D"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pathIDs(BuildPathToFromMap(tt.nodeID, tt.m))
			if len(got) != len(tt.want) {
				t.Fatalf("path = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("path = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuildPathToFromMap_ReturnsCopies(t *testing.T) {
	m := NodeMap{
		"A": {ElementUUID: "A", ElementName: "a"},
		"B": {ElementUUID: "B", ElementName: "b", ParentUUID: "A"},
	}

	path := BuildPathToFromMap("B", m)
	if path[1] == m["B"] {
		t.Fatal("path shares node objects with the map")
	}
	path[1].ElementName = "changed"
	if m["B"].ElementName != "b" {
		t.Error("editing the path mutated the map")
	}
}

func TestBuildPathToFromMap_StopsOnCycle(t *testing.T) {
	m := NodeMap{
		"A": {ElementUUID: "A", ParentUUID: "B"},
		"B": {ElementUUID: "B", ParentUUID: "A"},
	}
	if got := BuildPathToFromMap("A", m); len(got) != 2 {
		t.Errorf("path length = %d, want 2", len(got))
	}
}

func TestBuildPathToFromMap_AfterReconcile(t *testing.T) {
	_, m := sampleTree(t)
	got := pathIDs(BuildPathToFromMap("a11", m))
	want := []string{"a", "a1", "a11"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("path = %v, want %v", got, want)
	}
}
