// Package tree reconciles the locally cached directory forest with partial
// server responses.
//
// Every function in this package is pure: arguments are never mutated and
// unchanged nodes are returned by reference, so callers can compare
// pointers to detect what moved.
package tree

import (
	"errors"
	"fmt"

	"github.com/gridexplore/explorer/pkg/models"
)

// NodeMap indexes every loaded directory by its element id.
type NodeMap map[string]*models.DirectoryNode

// Children is the accessor used with FlattenDownNodes for directory nodes.
func Children(n *models.DirectoryNode) []*models.DirectoryNode {
	return n.Children
}

// FindByID finds a node by id in a forest (recursive).
func FindByID(roots []*models.DirectoryNode, id string) *models.DirectoryNode {
	for _, root := range roots {
		if root.ElementUUID == id {
			return root
		}
		if found := FindByID(root.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes counts all nodes in a forest.
func CountNodes(roots []*models.DirectoryNode) int {
	count := 0
	for _, root := range roots {
		count += 1 + CountNodes(root.Children)
	}
	return count
}

// Flatten returns all nodes of a forest in a map keyed by id.
func Flatten(roots []*models.DirectoryNode) NodeMap {
	result := make(NodeMap)
	for _, root := range roots {
		for _, n := range FlattenDownNodes(root, Children) {
			result[n.ElementUUID] = n
		}
	}
	return result
}

// ChildIDs lists the ids of a node's children in display order.
func ChildIDs(n *models.DirectoryNode) []string {
	if n == nil {
		return nil
	}
	ids := make([]string, len(n.Children))
	for i, c := range n.Children {
		ids[i] = c.ElementUUID
	}
	return ids
}

// CheckConsistency verifies that roots and m describe the same forest:
// every reachable node is indexed under its own id (same pointer), nothing
// else is indexed, parent links match, and siblings are sorted by name.
func CheckConsistency(roots []*models.DirectoryNode, m NodeMap) error {
	var problems []error
	reached := make(map[string]struct{}, len(m))

	var walk func(parentID string, nodes []*models.DirectoryNode)
	walk = func(parentID string, nodes []*models.DirectoryNode) {
		if !IsSortedByName(nodes) {
			problems = append(problems, fmt.Errorf("children of %q are not sorted", parentID))
		}
		for _, n := range nodes {
			if _, dup := reached[n.ElementUUID]; dup {
				problems = append(problems, fmt.Errorf("node %q reachable twice", n.ElementUUID))
				continue
			}
			reached[n.ElementUUID] = struct{}{}
			if n.ParentUUID != parentID {
				problems = append(problems, fmt.Errorf("node %q has parent %q, found under %q", n.ElementUUID, n.ParentUUID, parentID))
			}
			if m[n.ElementUUID] != n {
				problems = append(problems, fmt.Errorf("node %q is not indexed by identity", n.ElementUUID))
			}
			walk(n.ElementUUID, n.Children)
		}
	}
	walk("", roots)

	for id := range m {
		if _, ok := reached[id]; !ok {
			problems = append(problems, fmt.Errorf("node %q is indexed but unreachable", id))
		}
	}
	return errors.Join(problems...)
}
