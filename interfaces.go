package trampoline

// Registers is an opaque, architecture-defined snapshot of the calling
// thread's register state at the moment a trampoline was entered. The
// core never interprets it, only Architecture implementations, which know
// the calling convention and register layout of the machine code that
// called in, may look inside.
type Registers any

// Compiler produces machine code for a method. Implementations must be
// thread-safe and may block. A failure to compile is fatal: the
// trampoline has no fallback address to return, so Compile should panic
// with a *Fault (CompilationFailure) rather than returning an error the
// core could shrug off.
type Compiler interface {
	Compile(m *Method) Address
}

// Metadata loads method and class descriptors and answers layout
// questions about where an interface was placed within a class's vtable.
type Metadata interface {
	GetMethod(image any, token uint32) *Method
	ClassInterfaceOffset(class, iface *Class) int
}

// AOTService resolves AOT-compiled code: pre-compiled method bodies by
// (domain, image, token), GOT-entry classification, and PLT lookups.
type AOTService interface {
	GetMethodFromToken(domain *Domain, image any, token uint32) (Address, bool)
	IsGOTEntry(code Address, slot Address) bool
	GetPLTEntry(code Address) (Address, bool)
	PLTResolve(module any, pltInfoOffset int32, code Address) Address
}

// Marshal builds wrapper methods: the synchronized-method wrapper used by
// the AOT trampoline (4.D) and the generic delegate-invoke wrapper used as
// the fallback in the delegate trampoline (4.G).
type Marshal interface {
	SynchronizedWrapper(m *Method) *Method
	DelegateInvokeWrapper(invoke *Method) *Method
}

// Architecture abstracts every register- and instruction-layout-specific
// operation the core needs. None of these are implemented by the core
// itself, architecture-specific code-emission and register decoding stay
// out of scope here; the embedding runtime supplies one implementation
// per target architecture. See cmd/trampolinedemo for a reference
// implementation used by the demo CLI; the package tests use the fakes in
// fixtures_test.go.
type Architecture interface {
	// FindThisArgument recovers the dispatch object ("this") from the
	// calling convention for a virtual/interface call to m.
	FindThisArgument(regs Registers, m *Method) *Object
	// FindIMTMethod recovers the interface method the caller intended to
	// invoke from an architecture-specific register.
	FindIMTMethod(regs Registers) *Method
	// VCallSlotAddr returns the address of the vtable/IMT slot the caller
	// dispatched through, or 0 if the call was not made through a slot.
	VCallSlotAddr(code Address, regs Registers) (Address, bool)
	// GetThisArgFromCall recovers the delegate/object argument for a call
	// whose signature is sig (used by the delegate trampoline, which
	// cannot assume a vtable-slot calling convention).
	GetThisArgFromCall(sig *Signature, regs Registers, code Address) *DelegateObject
	// UnboxTrampoline produces a thin stub that strips a boxed header
	// before jumping to a value-type method's compiled body.
	UnboxTrampoline(m *Method, code Address) Address
	// DelegateInvokeImpl produces a specialised Invoke thunk for the given
	// signature and target-presence, or 0 if none is available for this
	// shape. Not an error, the caller falls back to the generic wrapper.
	DelegateInvokeImpl(sig *Signature, hasTarget bool) (Address, bool)
	// PatchPLTEntry rewrites an AOT PLT stub to jump to target.
	PatchPLTEntry(plt Address, target Address)
	// PatchCallsite rewrites a direct call instruction at code to target.
	PatchCallsite(code Address, target Address)
	// NullifyPLTEntry rewrites a PLT stub used for class-init dispatch
	// into a no-op branch past the call.
	NullifyPLTEntry(plt Address)
	// NullifyClassInitTrampoline rewrites the direct call instruction at
	// code in place so the class-init trampoline is never re-entered.
	NullifyClassInitTrampoline(code Address, regs Registers)
}

// DomainService answers process-wide questions about domains: which one
// is current, which is the root, and whether two JIT-info records share a
// domain.
type DomainService interface {
	Current() *Domain
	Root() *Domain
	JITInfoFind(d *Domain, code Address) (*JITInfo, bool)
	SameDomain(a, b *JITInfo) bool
}

// ClassInitRunner runs a class's static initialiser. Implementations must
// be idempotent: calling it twice for the same vtable must run the
// initialiser at most once. Modeled as its own small interface rather
// than overloading DomainService with an unrelated concern.
type ClassInitRunner interface {
	ClassInit(vt *VTable)
}

// MemChecker answers whether the process runs under a memory checker
// (e.g. Valgrind) that would object to self-modifying code. The class-init
// trampoline consults this before nullifying its own call site.
type MemChecker interface {
	RunningUnderMemcheck() bool
}

// Runtime bundles every injected collaborator the trampoline entry points
// need. Constructing one is the embedding runtime's job; the core only
// ever reads from it.
//
// vtables is a flat address-space registry mapping a vtable's base address
// to the VTable object that owns it, so a raw slot Address recovered from
// a register snapshot can be resolved back to the (atomic) storage word it
// names. Grounded on the address-keyed VTable map pattern used for
// C++ vtable/relocation resolution in the retrieval pack's vtable emulator
// reference (internal/emulator/vtable.go's VTableMap.Tables); the core
// only ever owns vtables it was told about via RegisterVTable.
type Runtime struct {
	Compiler   Compiler
	Metadata   Metadata
	AOT        AOTService
	Marshal    Marshal
	Arch       Architecture
	Domains    DomainService
	MemChecker MemChecker
	ClassInits ClassInitRunner
	Verbose    bool

	vtables []*VTable
}

// RegisterVTable makes vt resolvable by address via loadWord/storeWord.
func (rt *Runtime) RegisterVTable(vt *VTable) {
	rt.vtables = append(rt.vtables, vt)
}

// findVTable locates the VTable owning addr, if any is registered.
func (rt *Runtime) findVTable(addr Address) (*VTable, int, bool, bool) {
	for _, vt := range rt.vtables {
		if idx, isIMT, ok := vt.locate(addr); ok {
			return vt, idx, isIMT, true
		}
	}
	return nil, 0, false, false
}

// loadWord atomically reads the vtable or IMT slot at addr.
func (rt *Runtime) loadWord(addr Address) Address {
	vt, idx, isIMT, ok := rt.findVTable(addr)
	assert("callsite", ok, "address %#x is not a known vtable/IMT slot", addr)
	if isIMT {
		return vt.LoadIMT(idx)
	}
	return vt.LoadSlot(idx)
}

// storeWord atomically writes val into the vtable or IMT slot at addr.
// Vtable slots are core-owned memory, so the write never goes through the
// Architecture collaborator the way PLT/direct call-site patches do.
func (rt *Runtime) storeWord(addr Address, val Address) {
	vt, idx, isIMT, ok := rt.findVTable(addr)
	assert("callsite", ok, "address %#x is not a known vtable/IMT slot", addr)
	if isIMT {
		vt.StoreIMT(idx, val)
		return
	}
	vt.StoreSlot(idx, val)
}

// tracef logs a diagnostic line when Verbose is set, mirroring the
// teacher's VerboseMode-gated fmt.Fprintf(os.Stderr, ...) tracing (e.g.
// add.go, plt_got.go) rather than introducing a logging library the
// teacher never reaches for.
func (rt *Runtime) tracef(format string, args ...any) {
	if rt.Verbose {
		tracePrintf(format, args...)
	}
}
