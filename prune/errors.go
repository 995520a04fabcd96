package prune

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedOperation is returned when propagation reaches an op with no rule.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrConflictingConstraint is returned when the closure would empty a dimension,
	// shrink it below the minimum width, or touch a frozen layer.
	ErrConflictingConstraint = errors.New("conflicting constraint")
	// ErrAmbiguousReshape is returned when a reshape mixes the channel dimension
	// with another dimension.
	ErrAmbiguousReshape = errors.New("ambiguous reshape")
	// ErrTracingIncomplete is returned when the forward pass cannot be fully
	// attributed to recorded ops.
	ErrTracingIncomplete = errors.New("tracing incomplete")
	// ErrInvalidIndex is returned for empty, negative or out-of-range trigger indices.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrUnknownModule is returned when a module has no node in the graph.
	ErrUnknownModule = errors.New("unknown module")
	// ErrGroupConsumed is returned when a group is applied a second time.
	ErrGroupConsumed = errors.New("group already applied")
	// ErrStaleGroup is returned when the network no longer matches the group.
	ErrStaleGroup = errors.New("stale group")
)

// Error reports a failure at a specific node. It unwraps to one of the Err
// sentinels above.
type Error struct {
	Err    error
	Node   *Node
	Reason string
}

func newError(err error, n *Node, format string, args ...interface{}) *Error {
	return &Error{Err: err, Node: n, Reason: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Node == nil {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v at %s: %s", e.Err, e.Node, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause lets errors.Cause reach the sentinel.
func (e *Error) Cause() error {
	return e.Err
}
