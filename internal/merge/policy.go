package merge

import (
	"fmt"
	"strings"
)

// Policy decides what a three-way merge does when local and remote both
// changed the same field, and when a node was deleted upstream.
type Policy string

const (
	// RemoteAsNewBase treats remote as the new ancestor and replays local
	// edits on top of it. Conflicting fields keep the local value and are
	// marked. A node deleted upstream is kept when it was edited locally.
	RemoteAsNewBase Policy = "remote-as-new-base"

	// PreferLocal resolves conflicts like RemoteAsNewBase, and never follows
	// an upstream deletion.
	PreferLocal Policy = "prefer-local"

	// PreferRemote resolves conflicts to the remote value and always
	// follows upstream deletions.
	PreferRemote Policy = "prefer-remote"

	// Strict turns every conflict into a hard failure.
	Strict Policy = "strict"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = RemoteAsNewBase

// Policies returns every supported policy.
func Policies() []Policy {
	return []Policy{RemoteAsNewBase, PreferLocal, PreferRemote, Strict}
}

// Valid reports whether p is a supported policy.
func (p Policy) Valid() bool {
	switch p {
	case RemoteAsNewBase, PreferLocal, PreferRemote, Strict:
		return true
	}
	return false
}

// ParsePolicy parses a policy name. The empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return DefaultPolicy, nil
	}
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown merge policy %q (want one of %v)", s, Policies())
	}
	return p, nil
}

// Side names which input a conflict was resolved to.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// resolve picks the side for a conflicting field. ok is false under Strict.
func (p Policy) resolve() (Side, bool) {
	switch p {
	case PreferRemote:
		return SideRemote, true
	case Strict:
		return "", false
	default:
		return SideLocal, true
	}
}
