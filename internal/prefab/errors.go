package prefab

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
)

// Error represents a fatal import or synchronization failure.
//
// Fatal errors are raised before any result is published: the input
// hierarchies and the import record are left exactly as they were.
//
// Error includes structured fields for diagnostics and CLI reporting.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node identifies the node involved, when there is one.
	Node hierarchy.ID

	// Locator identifies the asset involved, when known.
	Locator string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes fatal errors.
type ErrorCode string

const (
	// CodeUnsupportedRoot indicates extraction was asked to start below the
	// hierarchy's designated root.
	CodeUnsupportedRoot ErrorCode = "UNSUPPORTED_ROOT"

	// CodeUnknownInstance indicates the destination root has no matching
	// import record.
	CodeUnknownInstance ErrorCode = "UNKNOWN_INSTANCE"

	// CodeMergeConflict indicates the merge primitive reported a hard failure.
	CodeMergeConflict ErrorCode = "MERGE_CONFLICT"

	// CodeInvalidResult indicates the synchronized hierarchy broke the forest
	// invariant and was discarded.
	CodeInvalidResult ErrorCode = "INVALID_RESULT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.Node != uuid.Nil {
		ctx = append(ctx, "node="+e.Node.String())
	}
	if e.Locator != "" {
		ctx = append(ctx, "asset="+e.Locator)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// IsUnsupportedRoot returns true if err is an UNSUPPORTED_ROOT error.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedRoot(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeUnsupportedRoot
}

// IsUnknownInstance returns true if err is an UNKNOWN_INSTANCE error.
func IsUnknownInstance(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeUnknownInstance
}

// IsMergeConflict returns true if err is a MERGE_CONFLICT error.
func IsMergeConflict(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeMergeConflict
}

// IsInvalidResult returns true if err is an INVALID_RESULT error.
func IsInvalidResult(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeInvalidResult
}

// NewUnsupportedRootError creates an Error for extraction below the root.
func NewUnsupportedRootError(requested, actual hierarchy.ID) *Error {
	return &Error{
		Code:    CodeUnsupportedRoot,
		Message: fmt.Sprintf("only the designated root %s can be extracted", actual),
		Node:    requested,
	}
}

// NewUnknownInstanceError creates an Error for a destination root without
// a matching import record.
func NewUnknownInstanceError(instance hierarchy.ID, reason string, cause error) *Error {
	return &Error{
		Code:    CodeUnknownInstance,
		Message: reason,
		Node:    instance,
		Err:     cause,
	}
}
