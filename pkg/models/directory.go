// Package models contains the data types shared by the tree core, the
// REST client and the explorer store.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Element types reported by the directory server.
const (
	TypeDirectory       = "DIRECTORY"
	TypeStudy           = "STUDY"
	TypeCase            = "CASE"
	TypeFilter          = "FILTER"
	TypeContingencyList = "CONTINGENCY_LIST"
	TypeParameters      = "PARAMETERS"
)

// Keys of the fields the tree core interprets. Everything else is carried
// through Attributes untouched.
const (
	FieldElementUUID         = "elementUuid"
	FieldElementName         = "elementName"
	FieldParentUUID          = "parentUuid"
	FieldChildren            = "children"
	FieldSubdirectoriesCount = "subdirectoriesCount"
	FieldType                = "type"
)

// DirectoryNode is the cached client-side view of one server directory.
//
// An empty ParentUUID marks a root directory. Nodes are treated as
// immutable once they are reachable from a tree: updates produce a copy.
type DirectoryNode struct {
	ElementUUID         string
	ElementName         string
	ParentUUID          string
	Children            []*DirectoryNode
	SubdirectoriesCount int

	// Attributes holds every other server field (owner, access rights,
	// timestamps, ...) verbatim.
	Attributes map[string]any
}

// IsRoot reports whether the node sits at the top of the forest.
func (n *DirectoryNode) IsRoot() bool {
	return n.ParentUUID == ""
}

// ElementType returns the server element type, if any.
func (n *DirectoryNode) ElementType() string {
	if n == nil || n.Attributes == nil {
		return ""
	}
	t, _ := n.Attributes[FieldType].(string)
	return t
}

// IsDirectory reports whether the element is a directory. Elements that do
// not carry a type are assumed to be directories.
func (n *DirectoryNode) IsDirectory() bool {
	t := n.ElementType()
	return t == "" || t == TypeDirectory
}

// Clone returns a shallow copy. Children and Attributes are shared.
func (n *DirectoryNode) Clone() *DirectoryNode {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// Fields returns the node as a plain field map, without children. Nested
// attribute maps are shared, not copied.
func (n *DirectoryNode) Fields() map[string]any {
	m := make(map[string]any, len(n.Attributes)+4)
	for k, v := range n.Attributes {
		m[k] = v
	}
	m[FieldElementUUID] = n.ElementUUID
	m[FieldElementName] = n.ElementName
	m[FieldParentUUID] = n.ParentUUID
	m[FieldSubdirectoriesCount] = n.SubdirectoriesCount
	return m
}

// MarshalJSON writes the known fields and the passthrough attributes as one
// flat object. A root node is written with "parentUuid": null.
func (n *DirectoryNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Attributes)+5)
	for k, v := range n.Attributes {
		m[k] = v
	}
	m[FieldElementUUID] = n.ElementUUID
	m[FieldElementName] = n.ElementName
	if n.ParentUUID == "" {
		m[FieldParentUUID] = nil
	} else {
		m[FieldParentUUID] = n.ParentUUID
	}
	m[FieldSubdirectoriesCount] = n.SubdirectoriesCount
	children := n.Children
	if children == nil {
		children = []*DirectoryNode{}
	}
	m[FieldChildren] = children
	return json.Marshal(m)
}

// UnmarshalJSON reads a server element. Unknown keys land in Attributes,
// numbers are kept as json.Number so they round-trip verbatim.
func (n *DirectoryNode) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := DirectoryNode{}
	for key, value := range raw {
		var err error
		switch key {
		case FieldElementUUID:
			err = decodeNullableString(value, &out.ElementUUID)
		case FieldElementName:
			err = decodeNullableString(value, &out.ElementName)
		case FieldParentUUID:
			err = decodeNullableString(value, &out.ParentUUID)
		case FieldSubdirectoriesCount:
			if !isNull(value) {
				err = json.Unmarshal(value, &out.SubdirectoriesCount)
			}
		case FieldChildren:
			if !isNull(value) {
				err = json.Unmarshal(value, &out.Children)
			}
		default:
			var v any
			dec := json.NewDecoder(bytes.NewReader(value))
			dec.UseNumber()
			if err = dec.Decode(&v); err == nil {
				if out.Attributes == nil {
					out.Attributes = make(map[string]any)
				}
				out.Attributes[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}

	*n = out
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeNullableString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		*dst = ""
		return nil
	}
	return json.Unmarshal(raw, dst)
}
