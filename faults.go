package trampoline

import "fmt"

// FaultKind classifies a fatal trampoline fault: invariant violation or
// compilation failure, the only two kinds that are actually errors.
// Slot-ownership mismatches and missing delegate specialisations are not
// errors and never produce a Fault.
//
// Same two-axis shape as a typical compiler error type (what went wrong,
// how severe), trimmed to the one severity this core ever produces, since
// nothing here is recoverable.
type FaultKind int

const (
	// InvariantViolation covers corrupt input from the compiler/AOT layer:
	// an out-of-range IMT slot, a missing Invoke method, a nil method
	// lookup that should have been impossible.
	InvariantViolation FaultKind = iota
	// CompilationFailure covers the compiler collaborator failing to
	// produce code for a method that must be compiled.
	CompilationFailure
)

func (k FaultKind) String() string {
	switch k {
	case InvariantViolation:
		return "invariant violation"
	case CompilationFailure:
		return "compilation failure"
	default:
		return "unknown fault"
	}
}

// Fault is the panic value raised for any condition classified as fatal.
// The embedding runtime has no recovery path for either kind: the caller
// is already inside a call prologue expecting a resolved address, so a
// Fault is meant to propagate to the process's top-level crash handler,
// not to be recovered by the trampoline itself.
type Fault struct {
	Kind      FaultKind
	Component string // e.g. "magic", "imt", "delegate"
	Message   string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.Component, f.Kind, f.Message)
}

// fatalf raises a Fault of the given kind from the named component.
func fatalf(kind FaultKind, component, format string, args ...any) {
	panic(&Fault{Kind: kind, Component: component, Message: fmt.Sprintf(format, args...)})
}

// assert raises an InvariantViolation Fault if cond is false.
func assert(component string, cond bool, format string, args ...any) {
	if !cond {
		fatalf(InvariantViolation, component, format, args...)
	}
}
