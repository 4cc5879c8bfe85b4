package tree

import (
	"reflect"
	"slices"

	"github.com/gridexplore/explorer/pkg/models"
)

// FirstDiffExcept compares two plain objects field by field, keys in sorted
// order, and returns the dotted path of the first field that differs.
// Excluded keys are skipped at the top level. Nested maps are compared
// recursively. When one side has a key the other lacks, the path of the
// first such key is returned. ok is false when both objects are equal.
func FirstDiffExcept(a, b map[string]any, excluded ...string) (path string, ok bool) {
	skip := make(map[string]struct{}, len(excluded))
	for _, k := range excluded {
		skip[k] = struct{}{}
	}
	return firstDiff(a, b, skip, "")
}

func firstDiff(a, b map[string]any, skip map[string]struct{}, prefix string) (string, bool) {
	aKeys := sortedKeys(a, skip)
	bKeys := sortedKeys(b, skip)

	for i := 0; i < len(aKeys) && i < len(bKeys); i++ {
		if aKeys[i] != bKeys[i] {
			return prefix + min(aKeys[i], bKeys[i]), true
		}
		key := aKeys[i]
		av, bv := a[key], b[key]

		am, aIsMap := av.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if aIsMap && bIsMap {
			if p, differs := firstDiff(am, bm, nil, prefix+key+"."); differs {
				return p, true
			}
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return prefix + key, true
		}
	}

	switch {
	case len(aKeys) > len(bKeys):
		return prefix + aKeys[len(bKeys)], true
	case len(bKeys) > len(aKeys):
		return prefix + bKeys[len(aKeys)], true
	}
	return "", false
}

func sortedKeys(m map[string]any, skip map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, skipped := skip[k]; !skipped {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// FlattenDownNodes returns node and all of its descendants in pre-order.
func FlattenDownNodes[T any](node T, childrenOf func(T) []T) []T {
	out := []T{node}
	for _, child := range childrenOf(node) {
		out = append(out, FlattenDownNodes(child, childrenOf)...)
	}
	return out
}

// RefreshedUpNodes propagates a replaced node up to its root. The result
// starts with node and continues with a rebuilt copy of each ancestor whose
// children slice points at the rebuilt level below it. The chain ends at a
// root or at the first ancestor missing from m. Siblings along the way are
// shared with the previous tree.
func RefreshedUpNodes(m NodeMap, node *models.DirectoryNode) []*models.DirectoryNode {
	if node == nil || node.ElementUUID == "" {
		return nil
	}

	chain := []*models.DirectoryNode{node}
	seen := map[string]struct{}{node.ElementUUID: {}}
	for current := node; !current.IsRoot(); {
		parent, ok := m[current.ParentUUID]
		if !ok {
			break
		}
		if _, loop := seen[parent.ElementUUID]; loop {
			break
		}
		seen[parent.ElementUUID] = struct{}{}

		next := parent.Clone()
		next.Children = substituteChild(parent.Children, current)
		if len(next.Children) != len(parent.Children) {
			next.SubdirectoriesCount = len(next.Children)
		}
		chain = append(chain, next)
		current = next
	}
	return chain
}

// substituteChild returns a copy of children with the entry sharing
// child's id replaced. A child the parent did not list yet is inserted at
// its sorted position.
func substituteChild(children []*models.DirectoryNode, child *models.DirectoryNode) []*models.DirectoryNode {
	out := slices.Clone(children)
	for i, c := range out {
		if c.ElementUUID == child.ElementUUID {
			out[i] = child
			return out
		}
	}
	out = append(out, child)
	SortByName(out)
	return out
}

// sameNodes reports element-wise pointer equality.
func sameNodes(a, b []*models.DirectoryNode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// withoutIDs returns the nodes whose id is not in ids.
func withoutIDs(nodes []*models.DirectoryNode, ids map[string]struct{}) []*models.DirectoryNode {
	out := make([]*models.DirectoryNode, 0, len(nodes))
	for _, n := range nodes {
		if _, drop := ids[n.ElementUUID]; !drop {
			out = append(out, n)
		}
	}
	return out
}
