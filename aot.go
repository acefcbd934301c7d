package trampoline

import "encoding/binary"

// AOTMethodTrampoline is the entry point for calls made from AOT-compiled
// code, resolving the target method by (image, token) and preferring a
// pre-compiled AOT body over a fresh JIT compile.
//
// tokenBlob is the inline data following the trampoline's code: a
// pointer-sized image handle followed by a 32-bit token, in the running
// process's native endianness.
func AOTMethodTrampoline(rt *Runtime, regs Registers, code Address, tokenBlob []byte, image any) Address {
	const component = "aot-method"

	assert(component, len(tokenBlob) >= 12, "token blob too short: %d bytes", len(tokenBlob))
	token := binary.NativeEndian.Uint32(tokenBlob[8:12])

	var method *Method
	target, ok := rt.AOT.GetMethodFromToken(rt.Domains.Current(), image, token)
	if !ok {
		method = rt.Metadata.GetMethod(image, token)
		assert(component, method != nil, "get_method(image, %d) returned nil", token)
		if method.Synchronized() {
			method = rt.Marshal.SynchronizedWrapper(method)
		}
		target = rt.Compiler.Compile(method)
		assert(component, target != 0, "compile(%s) returned a nil address", method.Name)
	}

	site := Classify(rt, code, regs)
	var isGOT bool
	switch site.Kind {
	case CallSiteVTable:
		isGOT = rt.AOT.IsGOTEntry(code, site.Slot)
		if !isGOT {
			if method == nil {
				method = rt.Metadata.GetMethod(image, token)
			}
			if method.Class.IsValueType {
				target = rt.Arch.UnboxTrampoline(method, target)
			}
		}
	case CallSitePLT:
		rt.Arch.PatchPLTEntry(site.PLT, target)
		isGOT = false
	case CallSiteDirect:
		// No vtable slot and no PLT entry: nothing further to patch here.
		// This trampoline only ever patches a vtable slot or a PLT entry,
		// never a bare direct call site.
	}

	// AOT code is only installed in the root domain, so isGOT alongside
	// current being root is the inter-domain case: equivalent to OwnsSlot
	// but without forcing metadata realisation of the caller's method.
	// This check runs unconditionally after the classify/patch step
	// above, matching the source this was modeled on. site.Slot is 0 on
	// the PLT and direct-call branches, and OwnsSlot(0) is always false
	// (treat a null slot as not-owned rather than dereferencing it), so
	// the disjunction is false there regardless of isGOT.
	current := rt.Domains.Current()
	if (isGOT && current.IsRoot) || current.OwnsSlot(site.Slot) {
		rt.storeWord(site.Slot, target)
	}

	rt.tracef("aot-method: token=%d -> %#x (call site = %v)", token, target, site.Kind)
	return target
}

// AOTPLTTrampoline is the entry point for AOT calls made through the PLT
// table. It performs no patching itself, the PLT stub is updated by the
// resolver it delegates to.
func AOTPLTTrampoline(rt *Runtime, regs Registers, code Address, aotModule any, pltInfoOffsetReg int32) Address {
	target := rt.AOT.PLTResolve(aotModule, pltInfoOffsetReg, code)
	rt.tracef("aot-plt: offset=%d -> %#x", pltInfoOffsetReg, target)
	return target
}
