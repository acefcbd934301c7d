package trampoline

// DelegateTrampoline builds or fetches a cached thunk that implements a
// delegate's Invoke for a given signature and target-presence, writing it
// into the delegate's InvokeImpl field before returning it.
//
// The InvokeImpl state machine is one-way: uninitialised -> specialised
// thunk (terminal, when a cache hit or a freshly generated thunk exists)
// or uninitialised -> generic wrapper (terminal otherwise). Nothing here
// ever reverts a previously set InvokeImpl.
func DelegateTrampoline(rt *Runtime, regs Registers, code Address, klass *Class) Address {
	const component = "delegate"

	invoke := klass.MethodByName("Invoke")
	assert(component, invoke != nil, "class %s declares no Invoke method", klass.Name)

	delegate := rt.Arch.GetThisArgFromCall(invoke.Signature, regs, code)
	assert(component, delegate != nil, "get_this_arg_from_call returned nil")

	// If the delegate's raw method pointer is itself a trampoline, swap in
	// the compiled body so future invocations through it short-circuit.
	current := rt.Domains.Current()
	if ji, ok := rt.Domains.JITInfoFind(current, delegate.MethodPtr); ok {
		delegate.MethodPtr = rt.Compiler.Compile(ji.Method)
	}

	if !delegate.Multicast() {
		hasTarget := delegate.Target != nil
		cache := current.DelegateCache(hasTarget)

		thunk, hit := cache.Get(invoke.Signature)
		if hit {
			delegate.InvokeImpl = Address(thunk)
			return delegate.InvokeImpl
		}

		if addr, ok := rt.Arch.DelegateInvokeImpl(invoke.Signature, hasTarget); ok && addr != 0 {
			// No re-check for a concurrently inserted entry happens here,
			// deliberately. Both thunks are equivalent, and the loser's
			// storage becomes garbage until the domain is torn down.
			cache.Set(invoke.Signature, uintptr(addr))

			delegate.InvokeImpl = addr
			return delegate.InvokeImpl
		}
	}

	// Multicast, or no specialised thunk is available for this shape: the
	// general, unoptimised case.
	wrapper := rt.Marshal.DelegateInvokeWrapper(invoke)
	delegate.InvokeImpl = rt.Compiler.Compile(wrapper)
	rt.tracef("delegate: %s -> %#x (multicast=%v)", klass.Name, delegate.InvokeImpl, delegate.Multicast())
	return delegate.InvokeImpl
}
