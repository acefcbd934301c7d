package trampoline

// Magic is the entry point for calls made from JIT-compiled code. It
// compiles the target method, then, unless the caller merely jumped into
// the trampoline with no call site to patch, classifies and patches the
// call site so later calls bypass the trampoline.
func Magic(rt *Runtime, regs Registers, code Address, m *Method) Address {
	const component = "magic"

	target := rt.Compiler.Compile(m)
	assert(component, target != 0, "compile(%s) returned a nil address", m.Name)

	// The method was jumped to, not called: there is no call site to
	// patch, just hand back the compiled address.
	if code == 0 {
		return target
	}

	site := Classify(rt, code, regs)
	switch site.Kind {
	case CallSiteVTable:
		if m.Class.IsValueType {
			target = rt.Arch.UnboxTrampoline(m, target)
		}

		assert(component, rt.loadWord(site.Slot) != 0, "vtable slot %#x held no trampoline", site.Slot)

		if slotPatchable(rt, code, site.Slot) {
			resolved := ResolveIMTSlot(rt, site.Slot, regs, m)
			rt.storeWord(resolved, target)
		}
	case CallSitePLT:
		rt.Arch.PatchPLTEntry(site.PLT, target)
	case CallSiteDirect:
		patchDirectCallsite(rt, code, target)
	}

	rt.tracef("magic: %s -> %#x (call site = %v)", m.Name, target, site.Kind)
	return target
}
