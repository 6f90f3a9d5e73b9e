package hierarchy

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/ir"
)

// Document is the persisted JSON shape of a hierarchy.
// Nodes appear in canonical identity order so equal hierarchies encode to
// identical bytes regardless of insertion order.
type Document struct {
	Version string         `json:"version"`
	Root    uuid.UUID      `json:"root"`
	Nodes   []DocumentNode `json:"nodes"`
}

// DocumentNode is one node inside a Document.
type DocumentNode struct {
	ID         uuid.UUID              `json:"id"`
	Name       string                 `json:"name"`
	Components map[string]ir.IRObject `json:"components"`
	Transform  *DocumentTransform     `json:"transform,omitempty"`
}

// DocumentTransform carries the ordered child list.
type DocumentTransform struct {
	Children []uuid.UUID `json:"children"`
}

// MarshalDocument encodes h as canonical JSON (RFC 8785).
func MarshalDocument(h *Hierarchy) ([]byte, error) {
	data, err := ir.MarshalCanonical(documentObject(h))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// Digest returns the content digest of h's canonical document.
func Digest(h *Hierarchy) (string, error) {
	data, err := MarshalDocument(h)
	if err != nil {
		return "", err
	}
	return ir.DigestBytes(ir.DomainHierarchy, data), nil
}

// NodeDigest returns the content digest of a single node.
func NodeDigest(n *Node) (string, error) {
	return ir.Digest(ir.DomainNode, nodeObject(n))
}

func documentObject(h *Hierarchy) ir.IRObject {
	nodes := make(ir.IRArray, 0, h.Len())
	for _, id := range h.SortedIDs() {
		nodes = append(nodes, nodeObject(h.Lookup(id)))
	}
	return ir.IRObject{
		"version": ir.IRString(ir.DocumentVersion),
		"root":    ir.IRString(h.Root.String()),
		"nodes":   nodes,
	}
}

func nodeObject(n *Node) ir.IRObject {
	components := make(ir.IRObject, len(n.Components))
	for kind, fields := range n.Components {
		if fields == nil {
			fields = ir.IRObject{}
		}
		components[kind] = fields
	}
	obj := ir.IRObject{
		"id":         ir.IRString(n.ID.String()),
		"name":       ir.IRString(n.Name),
		"components": components,
	}
	if n.Transform != nil {
		children := make(ir.IRArray, len(n.Transform.Children))
		for i, c := range n.Transform.Children {
			children[i] = ir.IRString(c.String())
		}
		obj["transform"] = ir.IRObject{"children": children}
	}
	return obj
}

// UnmarshalDocument decodes a document produced by MarshalDocument.
// The result is not validated; call Validate when the source is untrusted.
func UnmarshalDocument(data []byte) (*Hierarchy, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Version != ir.DocumentVersion {
		return nil, fmt.Errorf("unmarshal document: unsupported version %q", doc.Version)
	}
	return doc.Hierarchy()
}

// Hierarchy builds the arena described by the document.
func (d *Document) Hierarchy() (*Hierarchy, error) {
	h := New(d.Root)
	for _, dn := range d.Nodes {
		n := &Node{ID: dn.ID, Name: dn.Name, Components: dn.Components}
		if n.Components == nil {
			n.Components = map[string]ir.IRObject{}
		}
		if dn.Transform != nil {
			n.Transform = &Transform{Children: dn.Transform.Children}
			if n.Transform.Children == nil {
				n.Transform.Children = []ID{}
			}
		}
		if err := h.Add(n); err != nil {
			return nil, fmt.Errorf("document node: %w", err)
		}
	}
	return h, nil
}
