// Package workspace coordinates imports and sync sessions over a store.
//
// A Workspace loads assets and import records, hands them to a
// prefab.Syncer, and publishes each successful session with a single
// store.CommitSync. Failed update sessions are journaled in the run log and
// leave the destination asset unchanged.
//
// Concurrency: sessions are serialized per destination asset. UpdateAll fans
// out across destinations with a bounded errgroup.
package workspace
