package explorer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/gridexplore/explorer/internal/events"
	"github.com/gridexplore/explorer/internal/snapshot"
	"github.com/gridexplore/explorer/pkg/models"
	"github.com/gridexplore/explorer/pkg/tree"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore() *Store {
	return NewStore(StoreOptions{Logger: zap.NewNop(), CheckConsistency: true})
}

func dir(id, name string) *models.DirectoryNode {
	return &models.DirectoryNode{ElementUUID: id, ElementName: name, Attributes: map[string]any{"type": models.TypeDirectory}}
}

func newID() string {
	return uuid.NewString()
}

func ids(nodes []*models.DirectoryNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ElementUUID
	}
	return out
}

// loadSample builds: Alpha(a) -> One(a1) -> Deep(a11), Beta(b).
func loadSample(t *testing.T, s *Store) (a, a1, a11, b string) {
	t.Helper()
	a, a1, a11, b = newID(), newID(), newID(), newID()
	s.ApplyRoots([]*models.DirectoryNode{dir(b, "Beta"), dir(a, "Alpha")})
	s.ApplyChildren(a, []*models.DirectoryNode{dir(a1, "One")})
	s.ApplyChildren(a1, []*models.DirectoryNode{dir(a11, "Deep")})
	return
}

func TestStore_ApplyRootsAndChildren(t *testing.T) {
	s := newTestStore()
	a, a1, a11, b := loadSample(t, s)

	v := s.Snapshot()
	require.Equal(t, []string{a, b}, ids(v.Roots))
	require.Len(t, v.Nodes, 4)
	require.Equal(t, []string{a11}, tree.ChildIDs(v.Nodes[a1]))
	require.NoError(t, tree.CheckConsistency(v.Roots, v.Nodes))
}

func TestStore_UnchangedKeepsView(t *testing.T) {
	s := newTestStore()
	a, a1, _, _ := loadSample(t, s)
	before := s.Snapshot()

	same := dir(a1, "One")
	same.SubdirectoriesCount = 1
	report := s.ApplyChildren(a, []*models.DirectoryNode{same})
	require.True(t, report.Unchanged)

	after := s.Snapshot()
	require.Same(t, before.Roots[0], after.Roots[0])
}

func TestStore_SelectReturnsBreadcrumb(t *testing.T) {
	s := newTestStore()
	a, a1, a11, _ := loadSample(t, s)

	path := s.Select(a11)
	require.Equal(t, []string{a, a1, a11}, ids(path))
	require.Equal(t, a11, s.Selected())
	require.Equal(t, []string{a, a1, a11}, ids(s.Path()))

	require.Empty(t, s.Select("unknown"))
	require.Equal(t, a11, s.Selected(), "unknown id must not change selection")
}

func TestStore_DeletionFallsBackToNearestAncestor(t *testing.T) {
	s := newTestStore()
	a, a1, a11, _ := loadSample(t, s)
	s.Select(a11)

	s.ApplyChildren(a, []*models.DirectoryNode{})

	require.Equal(t, a, s.Selected())
	_, ok := s.Node(a1)
	require.False(t, ok)
}

func TestStore_DeletedRootClearsSelection(t *testing.T) {
	s := newTestStore()
	a, _, a11, b := loadSample(t, s)
	s.Select(a11)

	s.ApplyRoots([]*models.DirectoryNode{dir(b, "Beta")})

	require.Equal(t, RootID, s.Selected())
	_, ok := s.Node(a)
	require.False(t, ok)
}

func TestStore_ExpandCollapse(t *testing.T) {
	s := newTestStore()
	a, a1, a11, b := loadSample(t, s)

	require.True(t, s.Expand(a))
	require.True(t, s.Expand(a1))
	require.True(t, s.Expand(b))
	require.False(t, s.Expand("unknown"))
	require.Equal(t, []string{a, a1, b}, s.Expanded())
	require.False(t, s.IsExpanded(a11))

	s.Collapse(a)
	require.Equal(t, []string{b}, s.Expanded(), "collapsing drops expanded descendants")
	require.False(t, s.IsExpanded(a1))
}

func TestStore_DeletionPrunesExpanded(t *testing.T) {
	s := newTestStore()
	a, a1, a11, b := loadSample(t, s)
	s.Expand(a)
	s.Expand(a1)
	s.Expand(a11)
	s.Expand(b)

	s.ApplyChildren(a, []*models.DirectoryNode{})

	if diff := cmp.Diff([]string{a, b}, s.Expanded()); diff != "" {
		t.Errorf("expanded mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_StaleTicketDropped(t *testing.T) {
	s := newTestStore()
	a, a1, _, _ := loadSample(t, s)

	older := s.Begin(a)
	newer := s.Begin(a)
	renamed := dir(a1, "Uno")

	_, applied := s.ApplyTicket(newer, []*models.DirectoryNode{renamed})
	require.True(t, applied)

	_, applied = s.ApplyTicket(older, []*models.DirectoryNode{})
	require.False(t, applied, "older response must be dropped")

	n, ok := s.Node(a1)
	require.True(t, ok)
	require.Equal(t, "Uno", n.ElementName)
}

func TestStore_TicketsArePerNode(t *testing.T) {
	s := newTestStore()
	a, _, _, b := loadSample(t, s)

	ta := s.Begin(a)
	tb := s.Begin(b)
	child := newID()

	_, ok := s.ApplyTicket(tb, []*models.DirectoryNode{dir(child, "Gamma")})
	require.True(t, ok)
	_, ok = s.ApplyTicket(ta, []*models.DirectoryNode{})
	require.True(t, ok, "a ticket for another node does not make this one stale")
}

func TestStore_LateResponseForDeletedDirectoryDropped(t *testing.T) {
	s := newTestStore()
	a, a1, a11, _ := loadSample(t, s)

	inflight := s.Begin(a1)
	s.ApplyChildren(a, []*models.DirectoryNode{})

	late := newID()
	_, applied := s.ApplyTicket(inflight, []*models.DirectoryNode{dir(late, "Late")})
	require.False(t, applied)

	for _, id := range []string{a1, a11, late} {
		_, ok := s.Node(id)
		require.False(t, ok, "%s must stay out of the tree", id)
	}
	v := s.Snapshot()
	require.NoError(t, tree.CheckConsistency(v.Roots, v.Nodes))
}

func TestStore_PublishesEvents(t *testing.T) {
	b := events.NewBroadcaster()
	s := NewStore(StoreOptions{Events: b, Logger: zap.NewNop()})
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	root := newID()
	s.ApplyRoots([]*models.DirectoryNode{dir(root, "Root")})
	s.ApplyRoots([]*models.DirectoryNode{dir(root, "Root")})
	s.Expand(root)
	s.Select(root)

	var got []string
	for len(ch) > 0 {
		got = append(got, (<-ch).Type)
	}
	require.Equal(t, []string{events.EventRoots, events.EventExpand, events.EventSelect}, got)
}

func TestStore_Restore(t *testing.T) {
	s := newTestStore()
	a, a1, a11, _ := loadSample(t, s)
	s.Expand(a)
	s.Select(a1)

	ctx := context.Background()
	backend := &snapshot.FileBackend{Path: filepath.Join(t.TempDir(), "tree.json")}
	v := s.Snapshot()
	require.NoError(t, snapshot.Save(ctx, backend, v.Roots, append(v.Expanded, "gone"), v.Selected))

	st, err := snapshot.Load(ctx, backend)
	require.NoError(t, err)

	restored := newTestStore()
	restored.Restore(st)
	require.Equal(t, []string{a}, restored.Expanded())
	require.Equal(t, a1, restored.Selected())
	_, ok := restored.Node(a11)
	require.True(t, ok)

	// reconciliation keeps working on a restored forest
	restored.ApplyChildren(a1, []*models.DirectoryNode{})
	_, ok = restored.Node(a11)
	require.False(t, ok)
}
