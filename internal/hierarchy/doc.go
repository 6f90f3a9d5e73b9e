// Package hierarchy models node graphs as an arena keyed by identity.
//
// A Hierarchy owns its nodes; structural links (Transform children) and
// semantic links (ir.IRRef component fields) are identities resolved through
// the arena, never pointers. This package provides the structural accessors,
// deep copy, reference rewrite, forest validation, and the canonical document
// codec that the import and sync layers build on.
package hierarchy
