// Package snapshot persists the loaded directory forest so the explorer
// can start warm while the server is unreachable.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gridexplore/explorer/pkg/models"
	"github.com/gridexplore/explorer/pkg/tree"
)

const formatVersion = 1

// ErrNotFound is returned when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// Backend stores one snapshot document.
type Backend interface {
	// Read returns the stored document, or ErrNotFound.
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the stored document. Readers never see a partial one.
	Write(ctx context.Context, data []byte) error

	// String describes the location for logs.
	String() string
}

// State is a saved explorer state.
type State struct {
	SavedAt  time.Time
	Locale   string // collation locale at save time
	Roots    []*models.DirectoryNode
	Nodes    tree.NodeMap
	Expanded []string
	Selected string
}

type document struct {
	Version  int                     `json:"version"`
	SavedAt  time.Time               `json:"savedAt"`
	Locale   string                  `json:"locale,omitempty"`
	Roots    []*models.DirectoryNode `json:"roots"`
	Expanded []string                `json:"expanded,omitempty"`
	Selected string                  `json:"selected,omitempty"`
}

// Encode serializes a state.
func Encode(roots []*models.DirectoryNode, expanded []string, selected string) ([]byte, error) {
	if roots == nil {
		roots = []*models.DirectoryNode{}
	}
	data, err := json.Marshal(document{
		Version:  formatVersion,
		SavedAt:  time.Now().UTC(),
		Locale:   tree.CollationLocale(),
		Roots:    roots,
		Expanded: expanded,
		Selected: selected,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a document and rebuilds its forest for the active
// collation locale: siblings are re-sorted, parent links are reset from the
// nesting and a directory listed more than once is kept at its first
// position only.
func Decode(data []byte) (*State, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("snapshot version %d not supported", doc.Version)
	}

	roots := rebuild("", doc.Roots, make(map[string]struct{}))
	nodes := tree.Flatten(roots)
	if err := tree.CheckConsistency(roots, nodes); err != nil {
		return nil, err
	}

	return &State{
		SavedAt:  doc.SavedAt,
		Locale:   doc.Locale,
		Roots:    roots,
		Nodes:    nodes,
		Expanded: doc.Expanded,
		Selected: doc.Selected,
	}, nil
}

func rebuild(parentID string, nodes []*models.DirectoryNode, seen map[string]struct{}) []*models.DirectoryNode {
	out := make([]*models.DirectoryNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ElementUUID == "" {
			continue
		}
		if _, dup := seen[n.ElementUUID]; dup {
			continue
		}
		seen[n.ElementUUID] = struct{}{}
		c := n.Clone()
		c.ParentUUID = parentID
		c.Children = rebuild(n.ElementUUID, n.Children, seen)
		out = append(out, c)
	}
	tree.SortByName(out)
	return out
}

// Save encodes the state and writes it to b.
func Save(ctx context.Context, b Backend, roots []*models.DirectoryNode, expanded []string, selected string) error {
	data, err := Encode(roots, expanded, selected)
	if err != nil {
		return err
	}
	if err := b.Write(ctx, data); err != nil {
		return fmt.Errorf("save snapshot to %s: %w", b, err)
	}
	return nil
}

// Load reads and decodes the state stored in b.
func Load(ctx context.Context, b Backend) (*State, error) {
	data, err := b.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read snapshot from %s: %w", b, err)
	}
	st, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", b, err)
	}
	return st, nil
}
