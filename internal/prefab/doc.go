// Package prefab imports subgraphs of one hierarchy into another and keeps
// the resulting instances synchronized with their source.
//
// Import extracts the subgraph under a source root, gives every node a fresh
// identity and returns the instance together with an ImportRecord: the source
// locator, a base snapshot and the destination -> source identity mapping.
//
// Update runs a sync session. It merges every tracked node three ways (base
// snapshot, local node, current source node) with the policy the caller
// passes in, attaches nodes that appeared upstream, respects local deletions,
// and reconciles the parent relation back into a forest. Non-fatal repairs
// come back as Warnings next to the result; fatal failures come back as
// *Error and leave the inputs untouched.
package prefab
