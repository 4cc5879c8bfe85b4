package tree

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gridexplore/explorer/pkg/models"
)

// ErrNotAList is reported when a server response carries no children list.
var ErrNotAList = errors.New("server children is not a list")

// ValidationError is returned by UpdatedNodeStore when the server children
// cannot be applied. Nothing is applied in that case.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid server children: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// NodeChanges lists the ids touched by one UpdatedNodeStore call.
type NodeChanges struct {
	Added   []string
	Updated []string
	Deleted []string
}

// NodeStore is the recursive representation of the forest: a silent root
// with an empty id whose children are the root directories, plus id
// indexes for the whole forest and for each root subtree.
type NodeStore struct {
	SilentRoot     *models.DirectoryNode
	AllIDToNode    NodeMap
	ByRootIDToNode map[string]NodeMap

	// Changes describes the call that produced this store.
	Changes NodeChanges
}

// NewNodeStore returns a store with no directories.
func NewNodeStore() *NodeStore {
	return &NodeStore{
		SilentRoot:     &models.DirectoryNode{Children: []*models.DirectoryNode{}},
		AllIDToNode:    NodeMap{},
		ByRootIDToNode: map[string]NodeMap{},
	}
}

// UpdatedNodeStore applies the children of parentID fetched from the server
// to store and returns the next store. An empty parentID targets the
// silent root.
//
// When deletes is false the update is purely additive: previous children
// missing from serverChildren are kept. An unknown parentID returns store
// unchanged. A structurally invalid serverChildren returns a
// *ValidationError and no store.
func UpdatedNodeStore(store *NodeStore, parentID string, serverChildren []*models.DirectoryNode, deletes bool) (*NodeStore, error) {
	if err := validateChildren(serverChildren); err != nil {
		return nil, err
	}
	if store == nil || store.SilentRoot == nil {
		store = NewNodeStore()
	}

	changes := &NodeChanges{}
	nextRoot, found := recursUpdate(store.SilentRoot, parentID, serverChildren, deletes, changes)
	if !found || nextRoot == store.SilentRoot {
		return store, nil
	}

	byRoot := make(map[string]NodeMap, len(nextRoot.Children))
	all := make(NodeMap)
	for _, root := range nextRoot.Children {
		m, ok := store.ByRootIDToNode[root.ElementUUID]
		if !ok || m[root.ElementUUID] != root {
			m = Flatten([]*models.DirectoryNode{root})
		}
		byRoot[root.ElementUUID] = m
		for id, n := range m {
			all[id] = n
		}
	}

	return &NodeStore{
		SilentRoot:     nextRoot,
		AllIDToNode:    all,
		ByRootIDToNode: byRoot,
		Changes:        *changes,
	}, nil
}

func validateChildren(children []*models.DirectoryNode) error {
	if children == nil {
		return &ValidationError{Problems: []error{ErrNotAList}}
	}
	var problems []error
	seen := make(map[string]struct{}, len(children))
	for i, c := range children {
		switch {
		case c == nil:
			problems = append(problems, fmt.Errorf("child %d is null", i))
		case c.ElementUUID == "":
			problems = append(problems, fmt.Errorf("child %d (%q) has no elementUuid", i, c.ElementName))
		default:
			if _, dup := seen[c.ElementUUID]; dup {
				problems = append(problems, fmt.Errorf("child %q listed twice", c.ElementUUID))
			}
			seen[c.ElementUUID] = struct{}{}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// recursUpdate returns node with the update applied below it, and whether
// parentID was found. node itself is returned when nothing changed.
func recursUpdate(node *models.DirectoryNode, parentID string, serverChildren []*models.DirectoryNode, deletes bool, changes *NodeChanges) (*models.DirectoryNode, bool) {
	if node.ElementUUID == parentID {
		return updateNodeWithChildren(node, serverChildren, deletes, changes), true
	}
	return searchUpdateDown(node, parentID, serverChildren, deletes, changes)
}

func searchUpdateDown(node *models.DirectoryNode, parentID string, serverChildren []*models.DirectoryNode, deletes bool, changes *NodeChanges) (*models.DirectoryNode, bool) {
	for i, child := range node.Children {
		next, found := recursUpdate(child, parentID, serverChildren, deletes, changes)
		if !found {
			continue
		}
		if next == child {
			return node, true
		}
		updated := node.Clone()
		updated.Children = slices.Clone(node.Children)
		updated.Children[i] = next
		return updated, true
	}
	return node, false
}

func updateNodeWithChildren(node *models.DirectoryNode, serverChildren []*models.DirectoryNode, deletes bool, changes *NodeChanges) *models.DirectoryNode {
	prevByID := make(map[string]*models.DirectoryNode, len(node.Children))
	for _, c := range node.Children {
		prevByID[c.ElementUUID] = c
	}

	listed := make(map[string]struct{}, len(serverChildren))
	next := make([]*models.DirectoryNode, 0, len(serverChildren))
	for _, sc := range serverChildren {
		listed[sc.ElementUUID] = struct{}{}

		prev, ok := prevByID[sc.ElementUUID]
		if !ok {
			created := sc.Clone()
			created.ParentUUID = node.ElementUUID
			created.Children = []*models.DirectoryNode{}
			next = append(next, created)
			changes.Added = append(changes.Added, sc.ElementUUID)
			continue
		}

		candidate := sc.Clone()
		candidate.ParentUUID = node.ElementUUID
		candidate.Children = prev.Children
		_, differs := FirstDiffExcept(prev.Fields(), candidate.Fields(),
			models.FieldChildren, models.FieldParentUUID, "rootUuid")
		if !differs && prev.ParentUUID == node.ElementUUID {
			next = append(next, prev)
			continue
		}
		next = append(next, candidate)
		changes.Updated = append(changes.Updated, sc.ElementUUID)
	}

	for _, prev := range node.Children {
		if _, ok := listed[prev.ElementUUID]; ok {
			continue
		}
		if !deletes {
			next = append(next, prev)
			continue
		}
		for _, gone := range FlattenDownNodes(prev, Children) {
			changes.Deleted = append(changes.Deleted, gone.ElementUUID)
		}
	}

	SortByName(next)
	if sameNodes(next, node.Children) {
		return node
	}
	updated := node.Clone()
	updated.Children = next
	updated.SubdirectoriesCount = len(next)
	return updated
}

// MakePathFromTip searches the tree under root for id and returns the
// nodes from the top-most directory down to it. The silent root is not
// part of the path. A missing id yields nil.
func MakePathFromTip(root *models.DirectoryNode, id string) []*models.DirectoryNode {
	if root == nil || id == "" {
		return nil
	}

	var tip []*models.DirectoryNode
	var search func(n *models.DirectoryNode) bool
	search = func(n *models.DirectoryNode) bool {
		if n.ElementUUID == id {
			tip = append(tip, n)
			return true
		}
		for _, c := range n.Children {
			if search(c) {
				if n.ElementUUID != "" {
					tip = append(tip, n)
				}
				return true
			}
		}
		return false
	}
	if !search(root) {
		return nil
	}
	slices.Reverse(tip)
	return tip
}
