// Package merge provides the per-node three-way merge used by synchronization.
//
// Inputs are the base (last synchronized source state), local (current
// destination state) and remote (current source state) versions of one node,
// all expressed in destination identities. The Policy is always passed
// explicitly; there is no package-level default in effect at merge time.
package merge
