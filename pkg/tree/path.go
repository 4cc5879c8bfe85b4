package tree

import (
	"slices"

	"github.com/gridexplore/explorer/pkg/models"
)

// BuildPathToFromMap returns copies of the nodes from the top-most known
// ancestor of nodeID down to nodeID itself.
//
// An empty nodeID, a nil map or an id missing from the map yield an empty
// path. The walk stops at the first parent that is not in the map, so a
// partially loaded chain produces a partial path rather than an error.
func BuildPathToFromMap(nodeID string, nodeMap NodeMap) []*models.DirectoryNode {
	path := []*models.DirectoryNode{}
	if nodeID == "" || nodeMap == nil {
		return path
	}

	visited := make(map[string]struct{})
	current, ok := nodeMap[nodeID]
	for ok {
		if _, loop := visited[current.ElementUUID]; loop {
			break
		}
		visited[current.ElementUUID] = struct{}{}
		path = append(path, current.Clone())
		if current.IsRoot() {
			break
		}
		current, ok = nodeMap[current.ParentUUID]
	}

	slices.Reverse(path)
	return path
}
