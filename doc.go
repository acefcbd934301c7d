// Package trampoline implements the trampoline dispatch core of a managed
// code execution runtime: the glue generated JIT/AOT code calls into the
// first (and sometimes every) time it reaches an unresolved method.
//
// The core compiles the target on demand, resolves virtual and interface
// dispatch through a class's dispatch tables, and patches the originating
// call site so later calls bypass the trampoline entirely. Machine-code
// generation, metadata loading, garbage collection, AOT image loading and
// architecture-specific code emission are deliberately out of scope here;
// they are modeled as the injected collaborator interfaces in
// interfaces.go and supplied by the embedding runtime.
package trampoline
