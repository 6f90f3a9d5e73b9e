// Package remap gives a cloned subgraph fresh identities.
//
// Remap is used once per import to turn a source subgraph into an instance
// that can live next to the source (or another instance of it) in the same
// destination. Assign is used by synchronization to give nodes added upstream
// their destination identities. Both check candidates against caller-supplied
// reserved sets, so the generator only has to be unlikely to collide.
package remap
