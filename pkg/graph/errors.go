package graph

import (
	"fmt"
	"runtime"
)

// SourceRef records where in user code a binding was written. It is
// carried on every push and used solely in diagnostics.
type SourceRef struct {
	File string
	Line int
}

// callerRef captures the source location skip frames above the caller.
func callerRef(skip int) SourceRef {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return SourceRef{}
	}
	return SourceRef{File: file, Line: line}
}

// IsZero reports whether no location was recorded.
func (s SourceRef) IsZero() bool { return s.File == "" }

func (s SourceRef) String() string {
	if s.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// ErrKind classifies an elaboration failure.
type ErrKind int

const (
	ErrOutOfScope        ErrKind = iota // node used outside an active scope
	ErrFrozen                           // push after the side was observed
	ErrNotASink                         // inward binding on a node that accepts none
	ErrNotASource                       // outward binding on a node that emits none
	ErrStarShape                        // shape forbids the observed star pattern
	ErrUnderAssigned                    // known widths too small to resolve a star
	ErrOverAssigned                     // known widths exceed the node's capacity
	ErrArity                            // resolved port total outside the acceptance range
	ErrParamMismatch                    // parameter mapping produced the wrong count
	ErrBundleDisallowed                 // bundle side not defined for this shape
	ErrInternalInvariant                // mirrored bindings disagree; indicates a bug
)

func (k ErrKind) String() string {
	switch k {
	case ErrOutOfScope:
		return "out of scope"
	case ErrFrozen:
		return "frozen"
	case ErrNotASink:
		return "not a sink"
	case ErrNotASource:
		return "not a source"
	case ErrStarShape:
		return "star shape"
	case ErrUnderAssigned:
		return "under-assigned"
	case ErrOverAssigned:
		return "over-assigned"
	case ErrArity:
		return "arity"
	case ErrParamMismatch:
		return "parameter mismatch"
	case ErrBundleDisallowed:
		return "bundle disallowed"
	case ErrInternalInvariant:
		return "internal invariant"
	default:
		return fmt.Sprintf("ErrKind(%d)", int(k))
	}
}

// Error describes a single elaboration failure. Failures are fatal: they
// are cached by the node that produced them and abort elaboration.
type Error struct {
	Kind    ErrKind
	Node    string    // qualified node name, empty for scope-level failures
	Op      string    // the operation that failed, e.g. "star resolution"
	Src     SourceRef // push location, when one was recorded
	Message string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("graph: %s", e.Kind)
	if e.Node != "" {
		msg += fmt.Sprintf(": node %s", e.Node)
	}
	if e.Op != "" {
		msg += fmt.Sprintf(": %s", e.Op)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if !e.Src.IsZero() {
		msg += fmt.Sprintf(" (at %s)", e.Src)
	}
	return msg
}

// fail builds an *Error carrying the node's qualified name.
func (n *Node) fail(kind ErrKind, op string, src SourceRef, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Node:    n.FullName(),
		Op:      op,
		Src:     src,
		Message: fmt.Sprintf(format, args...),
	}
}
