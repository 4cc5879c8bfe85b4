package tree

import (
	"reflect"
	"testing"

	"github.com/gridexplore/explorer/pkg/models"
)

func dir(id, name string, count int) *models.DirectoryNode {
	return &models.DirectoryNode{ElementUUID: id, ElementName: name, SubdirectoriesCount: count}
}

func sameMap(a, b NodeMap) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func requireConsistent(t *testing.T, roots []*models.DirectoryNode, m NodeMap) {
	t.Helper()
	if err := CheckConsistency(roots, m); err != nil {
		t.Fatalf("inconsistent tree: %v", err)
	}
}

// sampleTree loads roots a ("Alpha") and b ("Beta"), then opens a and its
// child a1:
//
//	Alpha
//	  One
//	    Deep
//	Beta
func sampleTree(t *testing.T) ([]*models.DirectoryNode, NodeMap) {
	t.Helper()
	roots, m := UpdatedTree(nil, NodeMap{}, "", []*models.DirectoryNode{
		dir("b", "Beta", 0),
		dir("a", "Alpha", 1),
	})
	roots, m = UpdatedTree(roots, m, "a", []*models.DirectoryNode{dir("a1", "One", 1)})
	roots, m = UpdatedTree(roots, m, "a1", []*models.DirectoryNode{dir("a11", "Deep", 0)})
	requireConsistent(t, roots, m)
	return roots, m
}
