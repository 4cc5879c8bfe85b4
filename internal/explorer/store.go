// Package explorer holds the client-side explorer state and keeps it in
// sync with the directory server.
//
// Store is the single writer of the cached forest: every mutation runs the
// pure reconciliation in pkg/tree and swaps in its result under a lock.
// Readers get immutable views and never block reconciliation for long.
package explorer

import (
	"sync"

	"github.com/gridexplore/explorer/internal/events"
	"github.com/gridexplore/explorer/internal/logging"
	"github.com/gridexplore/explorer/internal/metrics"
	"github.com/gridexplore/explorer/internal/snapshot"
	"github.com/gridexplore/explorer/pkg/models"
	"github.com/gridexplore/explorer/pkg/tree"
	"go.uber.org/zap"
)

// RootID is the node id under which root directories are reconciled.
const RootID = ""

// Ticket orders responses for one node. It is issued before a fetch and
// presented with its result.
type Ticket struct {
	NodeID string
	Seq    uint64
}

// View is an immutable snapshot of the explorer state. Roots, Nodes and
// the nodes they reference must not be modified.
type View struct {
	Roots    []*models.DirectoryNode
	Nodes    tree.NodeMap
	Selected string
	Expanded []string
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Events *events.Broadcaster
	Logger *zap.Logger

	// CheckConsistency validates the forest after every change and logs
	// violations. Costs a full walk per change.
	CheckConsistency bool
}

// Store is the explorer state: loaded forest, selection and expanded set.
type Store struct {
	events *events.Broadcaster
	log    *zap.Logger
	check  bool

	mu       sync.RWMutex
	roots    []*models.DirectoryNode
	nodes    tree.NodeMap
	selected string
	expanded *ExpandedSet
	issued   uint64
	applied  map[string]uint64
}

// NewStore returns an empty store.
func NewStore(opts StoreOptions) *Store {
	if opts.Events == nil {
		opts.Events = events.NewBroadcaster()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Named("store")
	}
	return &Store{
		events:   opts.Events,
		log:      opts.Logger,
		check:    opts.CheckConsistency,
		roots:    []*models.DirectoryNode{},
		nodes:    tree.NodeMap{},
		expanded: NewExpandedSet(),
		applied:  make(map[string]uint64),
	}
}

// Events returns the broadcaster the store publishes to.
func (s *Store) Events() *events.Broadcaster {
	return s.events
}

// Restore replaces the state with a saved one. Expanded ids and the
// selection are kept only if the saved forest knows them.
func (s *Store) Restore(st *snapshot.State) {
	s.mu.Lock()
	s.roots = st.Roots
	s.nodes = st.Nodes
	s.expanded = NewExpandedSet()
	for _, id := range st.Expanded {
		if _, ok := s.nodes[id]; ok {
			s.expanded.Add(id)
		}
	}
	s.selected = ""
	if _, ok := s.nodes[st.Selected]; ok {
		s.selected = st.Selected
	}
	size := len(s.nodes)
	s.mu.Unlock()

	metrics.SetTreeSize(size)
	s.log.Info("restored snapshot",
		zap.Int("nodes", size),
		zap.Time("saved_at", st.SavedAt),
		zap.String("locale", st.Locale))
	s.events.Publish(events.TreeEvent{Type: events.EventRoots})
}

// Begin issues a ticket for a fetch of nodeID's children.
func (s *Store) Begin(nodeID string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return Ticket{NodeID: nodeID, Seq: s.issued}
}

// ApplyRoots reconciles the root directories.
func (s *Store) ApplyRoots(roots []*models.DirectoryNode) tree.Report {
	report, _ := s.ApplyTicket(s.Begin(RootID), roots)
	return report
}

// ApplyChildren reconciles the children of nodeID. Callers filter out
// non-directory elements first.
func (s *Store) ApplyChildren(nodeID string, children []*models.DirectoryNode) tree.Report {
	report, _ := s.ApplyTicket(s.Begin(nodeID), children)
	return report
}

// ApplyTicket reconciles a fetched child list. It returns false without
// touching the state when a response with a later ticket for the same node
// has already been applied, or when the directory left the tree while its
// fetch was in flight.
func (s *Store) ApplyTicket(t Ticket, children []*models.DirectoryNode) (tree.Report, bool) {
	s.mu.Lock()

	if last := s.applied[t.NodeID]; t.Seq < last {
		s.mu.Unlock()
		metrics.RecordStaleResponse()
		s.log.Debug("dropping stale response",
			logging.NodeID(t.NodeID),
			zap.Uint64("ticket", t.Seq),
			zap.Uint64("applied", last))
		return tree.Report{NodeID: t.NodeID, Unchanged: true}, false
	}
	if _, known := s.nodes[t.NodeID]; t.NodeID != RootID && !known {
		s.mu.Unlock()
		metrics.RecordStaleResponse()
		s.log.Debug("dropping response for a directory no longer in the tree",
			logging.NodeID(t.NodeID),
			zap.Uint64("ticket", t.Seq))
		return tree.Report{NodeID: t.NodeID, Unchanged: true}, false
	}
	s.applied[t.NodeID] = t.Seq

	prevNodes := s.nodes
	roots, nodes, report := tree.Reconcile(s.roots, s.nodes, t.NodeID, children)
	if report.Unchanged {
		s.mu.Unlock()
		metrics.RecordReconcile(false, 0, 0, 0, 0, 0)
		return report, true
	}

	s.roots, s.nodes = roots, nodes
	pruned := s.expanded.Retain(func(id string) bool {
		_, ok := nodes[id]
		return ok
	})
	selectionMoved := false
	if s.selected != "" {
		if _, ok := nodes[s.selected]; !ok {
			s.selected = nearestKnownAncestor(s.selected, prevNodes, nodes)
			selectionMoved = true
		}
	}
	selected := s.selected
	var consistency error
	if s.check {
		consistency = tree.CheckConsistency(roots, nodes)
	}
	s.mu.Unlock()

	metrics.RecordReconcile(true, len(report.Added), len(report.Updated), len(report.Removed),
		len(report.Reparented), len(report.ReparentSources))
	metrics.SetTreeSize(len(nodes))

	s.log.Debug("reconciled",
		logging.NodeID(t.NodeID),
		zap.Int("added", len(report.Added)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("reparented", len(report.Reparented)),
		zap.Int("expanded_pruned", pruned))
	if len(report.ReparentSources) > 1 {
		s.log.Warn("children moved from several parents, only the last was rebuilt",
			logging.NodeID(t.NodeID),
			logging.Strings("sources", report.ReparentSources))
	}
	if consistency != nil {
		s.log.Error("tree inconsistent after reconcile", logging.NodeID(t.NodeID), zap.Error(consistency))
	}

	evType := events.EventChildren
	if t.NodeID == RootID {
		evType = events.EventRoots
	}
	s.events.Publish(events.TreeEvent{Type: evType, NodeID: t.NodeID})
	if selectionMoved {
		s.events.Publish(events.TreeEvent{Type: events.EventSelect, NodeID: selected})
	}
	return report, true
}

// nearestKnownAncestor walks the previous parent chain of id and returns the
// first ancestor still present in next, or RootID.
func nearestKnownAncestor(id string, prev, next tree.NodeMap) string {
	path := tree.BuildPathToFromMap(id, prev)
	for i := len(path) - 2; i >= 0; i-- {
		if _, ok := next[path[i].ElementUUID]; ok {
			return path[i].ElementUUID
		}
	}
	return RootID
}

// Select makes id the selected directory and returns its breadcrumb from
// the top-most known ancestor. Unknown ids leave the selection untouched
// and return an empty path.
func (s *Store) Select(id string) []*models.DirectoryNode {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return []*models.DirectoryNode{}
	}
	s.selected = id
	path := tree.BuildPathToFromMap(id, s.nodes)
	s.mu.Unlock()

	s.events.Publish(events.TreeEvent{Type: events.EventSelect, NodeID: id})
	return path
}

// Selected returns the selected directory id, RootID when none.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Path returns the breadcrumb of the current selection.
func (s *Store) Path() []*models.DirectoryNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tree.BuildPathToFromMap(s.selected, s.nodes)
}

// Node returns a loaded directory.
func (s *Store) Node(id string) (*models.DirectoryNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Snapshot returns the current state.
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Roots:    s.roots,
		Nodes:    s.nodes,
		Selected: s.selected,
		Expanded: s.expanded.IDs(),
	}
}

// Expand marks a known directory as expanded.
func (s *Store) Expand(id string) bool {
	s.mu.Lock()
	_, known := s.nodes[id]
	added := known && s.expanded.Add(id)
	s.mu.Unlock()

	if added {
		s.events.Publish(events.TreeEvent{Type: events.EventExpand, NodeID: id})
	}
	return known
}

// Collapse un-expands id and every expanded directory below it.
func (s *Store) Collapse(id string) {
	s.mu.Lock()
	below := make(map[string]struct{})
	if n, ok := s.nodes[id]; ok {
		for _, d := range tree.FlattenDownNodes(n, tree.Children) {
			below[d.ElementUUID] = struct{}{}
		}
	}
	below[id] = struct{}{}
	removed := s.expanded.Retain(func(other string) bool {
		_, drop := below[other]
		return !drop
	})
	s.mu.Unlock()

	if removed > 0 {
		s.events.Publish(events.TreeEvent{Type: events.EventCollapse, NodeID: id})
	}
}

// IsExpanded reports whether id is expanded.
func (s *Store) IsExpanded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded.Has(id)
}

// Expanded returns the expanded ids in the order they were opened.
func (s *Store) Expanded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded.IDs()
}
