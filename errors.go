package vsengine

import (
	"errors"
	"fmt"

	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/numindex"
	"github.com/vsdb/vsengine/planner"
	"github.com/vsdb/vsengine/schema"
	"github.com/vsdb/vsengine/vecindex"
)

// Kind classifies an Error the way callers across a cluster boundary
// need to react to it: retry, surface to the client, or treat as a
// programming error.
type Kind int

const (
	KindUnknown Kind = iota
	KindParseError
	KindNotFound
	KindInvalidArgument
	KindConflict
	KindResourceExhausted
	KindInternal
	KindDeadlineExceeded
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindParseError:
		return "parse_error"
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindInternal:
		return "internal"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the boundary error type every exported Engine method
// returns. Op names the failing operation; Err is the underlying cause
// and is reachable via errors.Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vsengine: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// notFoundError wraps a plain "no such X" condition raised directly by
// this package, as opposed to a component it composes.
type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

// conflictError wraps a plain "already exists" condition raised
// directly by this package.
type conflictError struct{ msg string }

func (e *conflictError) Error() string { return e.msg }

// translateError classifies an internal package error into the
// boundary taxonomy. Errors already wrapped by this package pass
// through unchanged.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	var perr *filter.ParseError
	if errors.As(err, &perr) {
		return &Error{Kind: KindParseError, Op: op, Err: err}
	}

	if errors.Is(err, vecindex.ErrNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	var dm *vecindex.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: err}
	}
	var nf *notFoundError
	if errors.As(err, &nf) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	var ce *conflictError
	if errors.As(err, &ce) {
		return &Error{Kind: KindConflict, Op: op, Err: err}
	}
	var dup *schema.ErrDuplicateAttribute
	if errors.As(err, &dup) {
		return &Error{Kind: KindConflict, Op: op, Err: err}
	}
	var unk *planner.ErrUnknownVectorAttribute
	if errors.As(err, &unk) {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: err}
	}
	var np *numindex.ParseError
	if errors.As(err, &np) {
		return &Error{Kind: KindParseError, Op: op, Err: err}
	}

	return &Error{Kind: KindInternal, Op: op, Err: err}
}
