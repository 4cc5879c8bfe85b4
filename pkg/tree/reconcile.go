package tree

import (
	"slices"

	"github.com/gridexplore/explorer/pkg/models"
)

// Report describes what a Reconcile call changed.
type Report struct {
	NodeID string

	// Unchanged is set when the fetched children matched the cached ones
	// and the previous roots and map were returned as is.
	Unchanged bool

	Added      []string
	Updated    []string
	Removed    []string
	Reparented []string

	// ReparentSources lists every distinct former parent of a reparented
	// child, in input order. Only the last one is rebuilt.
	ReparentSources []string
}

// Changed reports whether the call produced a new tree.
func (r Report) Changed() bool {
	return !r.Unchanged
}

// UpdatedTree replaces the children of nodeID with the freshly fetched
// children and returns the next roots and node map. An empty nodeID means
// children are the root directories.
//
// Children whose name, subdirectory count and parent are unchanged keep
// their previous object. Previous children absent from the new list are
// removed from the map together with their whole subtree.
func UpdatedTree(prevRoots []*models.DirectoryNode, prevMap NodeMap, nodeID string, children []*models.DirectoryNode) ([]*models.DirectoryNode, NodeMap) {
	roots, nodes, _ := Reconcile(prevRoots, prevMap, nodeID, children)
	return roots, nodes
}

// Reconcile is UpdatedTree with a report of the ids it touched.
func Reconcile(prevRoots []*models.DirectoryNode, prevMap NodeMap, nodeID string, children []*models.DirectoryNode) ([]*models.DirectoryNode, NodeMap, Report) {
	report := Report{NodeID: nodeID}

	sorted := make([]*models.DirectoryNode, 0, len(children))
	incoming := make(map[string]struct{}, len(children))
	for _, c := range children {
		if c == nil || c.ElementUUID == "" {
			continue
		}
		if _, dup := incoming[c.ElementUUID]; dup {
			continue
		}
		incoming[c.ElementUUID] = struct{}{}
		sorted = append(sorted, c)
	}
	SortByName(sorted)

	var (
		oldParent   string
		hasReparent bool
	)
	nextChildren := make([]*models.DirectoryNode, 0, len(sorted))
	for _, n := range sorted {
		prev, known := prevMap[n.ElementUUID]
		switch {
		case !known:
			created := n.Clone()
			created.Children = []*models.DirectoryNode{}
			created.ParentUUID = nodeID
			nextChildren = append(nextChildren, created)
			report.Added = append(report.Added, n.ElementUUID)

		case prev.ElementName == n.ElementName &&
			prev.SubdirectoriesCount == n.SubdirectoriesCount &&
			prev.ParentUUID == nodeID:
			nextChildren = append(nextChildren, prev)

		default:
			if prev.ParentUUID != nodeID {
				oldParent, hasReparent = prev.ParentUUID, true
				report.Reparented = append(report.Reparented, n.ElementUUID)
				if !slices.Contains(report.ReparentSources, prev.ParentUUID) {
					report.ReparentSources = append(report.ReparentSources, prev.ParentUUID)
				}
			} else {
				report.Updated = append(report.Updated, n.ElementUUID)
			}
			updated := prev.Clone()
			updated.ElementName = n.ElementName
			updated.SubdirectoriesCount = n.SubdirectoriesCount
			updated.ParentUUID = nodeID
			nextChildren = append(nextChildren, updated)
		}
	}

	var prevChildren []*models.DirectoryNode
	prevTarget, targetKnown := prevMap[nodeID]
	if nodeID == "" {
		prevChildren = prevRoots
	} else if targetKnown {
		prevChildren = prevTarget.Children
	}
	if (nodeID == "" || targetKnown) && sameNodes(prevChildren, nextChildren) {
		return prevRoots, prevMap, Report{NodeID: nodeID, Unchanged: true}
	}

	nextIDs := make(map[string]struct{}, len(nextChildren))
	for _, n := range nextChildren {
		nextIDs[n.ElementUUID] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(nextIDs)+1)
	for id := range nextIDs {
		excluded[id] = struct{}{}
	}
	if nodeID != "" {
		excluded[nodeID] = struct{}{}
	}
	// A removed child's subtree goes, except below nodes that reappear in
	// the new list: those moved here and keep their own children.
	survivorChildren := func(n *models.DirectoryNode) []*models.DirectoryNode {
		if _, moved := nextIDs[n.ElementUUID]; moved {
			return nil
		}
		return n.Children
	}
	for _, c := range prevChildren {
		if _, kept := nextIDs[c.ElementUUID]; kept {
			continue
		}
		for _, gone := range FlattenDownNodes(c, survivorChildren) {
			excluded[gone.ElementUUID] = struct{}{}
			if _, moved := nextIDs[gone.ElementUUID]; !moved {
				report.Removed = append(report.Removed, gone.ElementUUID)
			}
		}
	}

	nextMap := make(NodeMap, len(prevMap)+len(nextChildren))
	for id, n := range prevMap {
		if _, skip := excluded[id]; !skip {
			nextMap[id] = n
		}
	}
	for _, n := range nextChildren {
		nextMap[n.ElementUUID] = n
	}

	// The former parent of a reparented child loses it. Its rebuilt chain
	// may run through one of the new children, so those are re-read from
	// nextMap afterwards.
	if hasReparent && oldParent != "" {
		if op, ok := nextMap[oldParent]; ok {
			shrunk := op.Clone()
			shrunk.Children = withoutIDs(op.Children, nextIDs)
			shrunk.SubdirectoriesCount = len(shrunk.Children)
			for _, n := range RefreshedUpNodes(nextMap, shrunk) {
				nextMap[n.ElementUUID] = n
			}
			for i, n := range nextChildren {
				nextChildren[i] = nextMap[n.ElementUUID]
			}
		}
	}

	if nodeID != "" {
		var target *models.DirectoryNode
		if targetKnown {
			target = prevTarget.Clone()
		} else {
			target = &models.DirectoryNode{ElementUUID: nodeID}
		}
		target.Children = nextChildren
		target.SubdirectoriesCount = len(nextChildren)
		for _, n := range RefreshedUpNodes(nextMap, target) {
			nextMap[n.ElementUUID] = n
		}
	}

	var nextRoots []*models.DirectoryNode
	if nodeID == "" {
		nextRoots = nextChildren
	} else {
		movedFromRoots := hasReparent && oldParent == ""
		nextRoots = make([]*models.DirectoryNode, 0, len(prevRoots))
		for _, r := range prevRoots {
			if _, moved := nextIDs[r.ElementUUID]; moved && movedFromRoots {
				continue
			}
			if n, ok := nextMap[r.ElementUUID]; ok {
				nextRoots = append(nextRoots, n)
			}
		}
	}

	return nextRoots, nextMap, report
}
