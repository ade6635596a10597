package ssa

import "github.com/pkg/errors"

// Structural-failure sentinel errors (§7). Recovered structural
// failures substitute InvalidAction/InvalidValue and log a warning;
// these sentinels must never be wired into a real graph edge (the
// graph's mutators already suppress edges touching an invalid ref).
var (
	// ErrBlockNotFound is the underlying cause attached when a lookup
	// for the block containing an address comes up empty.
	ErrBlockNotFound = errors.New("block not found")
	// ErrNoPredecessor is the underlying cause attached when a
	// predecessor-dependent query finds none.
	ErrNoPredecessor = errors.New("no predecessor")
	// ErrMissingOperand is the underlying cause attached when an
	// operand lookup comes up empty mid-construction.
	ErrMissingOperand = errors.New("missing operand")
)

// StructuralError wraps one of the sentinel causes above with the
// address/context that triggered it, per §7's "structural failure"
// error kind.
type StructuralError struct {
	cause error
	addr  string
}

func newStructuralError(cause error, addr string) *StructuralError {
	return &StructuralError{cause: cause, addr: addr}
}

func (e *StructuralError) Error() string {
	return errors.Wrapf(e.cause, "structural failure @ %s", e.addr).Error()
}

func (e *StructuralError) Unwrap() error { return e.cause }

// UnimplementedError names an RTL construct the driver does not
// translate. The construct driver does not return it: an unimplemented
// token inside an RTL string is reported as a plain error, which
// Process logs before skipping that one instruction, so no RTL
// construct ends construction of the whole function.
type UnimplementedError struct {
	Construct string
}

func (e *UnimplementedError) Error() string {
	return "unimplemented RTL construct: " + e.Construct
}
