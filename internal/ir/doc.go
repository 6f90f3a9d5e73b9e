// Package ir provides the constrained value model for node component fields.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps the value model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types and NO null anywhere - use int64 for numbers
//   - Identity-valued fields are IRRef, never plain strings, so reference
//     rewriting can find them without knowing component schemas
//   - Canonical JSON (RFC 8785) is the only encoding used for digests and
//     persisted documents
package ir
