package trampoline

// ClassInit runs a type's static initialiser exactly once, then nullifies
// the trampoline's own call site so a later call proceeds as if the
// initialiser had always run.
//
// This trampoline never returns a resolved address, there is no return
// value, only a side effect on the call site.
func ClassInit(rt *Runtime, regs Registers, code Address, vtable *VTable) {
	plt, hasPLT := rt.AOT.GetPLTEntry(code)

	rt.ClassInits.ClassInit(vtable)

	if rt.MemChecker.RunningUnderMemcheck() {
		// A memory checker would flag the self-modifying write below as
		// an invalid instruction-stream mutation; leave the trampoline in
		// place rather than nullify it.
		return
	}

	if hasPLT {
		rt.Arch.NullifyPLTEntry(plt)
	} else {
		rt.Arch.NullifyClassInitTrampoline(code, regs)
	}

	rt.tracef("class-init: %s initialised, call site nullified", vtable.Class.Name)
}
