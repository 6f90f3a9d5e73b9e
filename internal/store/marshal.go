package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
)

// marshalHierarchy converts a hierarchy to its canonical document TEXT and digest.
func marshalHierarchy(h *hierarchy.Hierarchy) (doc, digest string, err error) {
	data, err := hierarchy.MarshalDocument(h)
	if err != nil {
		return "", "", fmt.Errorf("marshal hierarchy: %w", err)
	}
	return string(data), ir.DigestBytes(ir.DomainHierarchy, data), nil
}

// unmarshalHierarchy parses a canonical document TEXT.
func unmarshalHierarchy(doc string) (*hierarchy.Hierarchy, error) {
	h, err := hierarchy.UnmarshalDocument([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("unmarshal hierarchy: %w", err)
	}
	return h, nil
}

// marshalMapping converts a dest -> source mapping to canonical JSON TEXT.
// Keys and values are UUID strings.
func marshalMapping(m map[hierarchy.ID]hierarchy.ID) (string, error) {
	obj := make(ir.IRObject, len(m))
	for dest, src := range m {
		obj[dest.String()] = ir.IRString(src.String())
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal id mapping: %w", err)
	}
	return string(data), nil
}

// unmarshalMapping parses TEXT produced by marshalMapping.
func unmarshalMapping(data string) (map[hierarchy.ID]hierarchy.ID, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal id mapping: %w", err)
	}
	out := make(map[hierarchy.ID]hierarchy.ID, len(raw))
	for k, v := range raw {
		dest, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("unmarshal id mapping: key %q: %w", k, err)
		}
		src, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("unmarshal id mapping: value %q: %w", v, err)
		}
		out[dest] = src
	}
	return out, nil
}

// parseID parses a UUID column.
func parseID(column, s string) (hierarchy.ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s %q: %w", column, s, err)
	}
	return id, nil
}
