package explorer

// ExpandedSet is the ordered set of expanded directory ids. Insertion order
// is kept so refreshes run top-down in the order the user opened folders.
// It is not safe for concurrent use; the Store guards it.
type ExpandedSet struct {
	order []string
	index map[string]struct{}
}

// NewExpandedSet returns a set holding ids, duplicates dropped.
func NewExpandedSet(ids ...string) *ExpandedSet {
	s := &ExpandedSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was absent.
func (s *ExpandedSet) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Remove deletes id and reports whether it was present.
func (s *ExpandedSet) Remove(id string) bool {
	return s.Retain(func(other string) bool { return other != id }) > 0
}

// Has reports whether id is in the set.
func (s *ExpandedSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids.
func (s *ExpandedSet) Len() int {
	return len(s.order)
}

// IDs returns a copy of the ids in insertion order.
func (s *ExpandedSet) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Retain keeps the ids for which keep returns true and returns how many
// were removed.
func (s *ExpandedSet) Retain(keep func(id string) bool) int {
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if keep(id) {
			kept = append(kept, id)
			continue
		}
		delete(s.index, id)
		removed++
	}
	clear(s.order[len(kept):])
	s.order = kept
	return removed
}
