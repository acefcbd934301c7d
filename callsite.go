package trampoline

// CallSiteKind classifies how a trampoline was reached.
type CallSiteKind int

const (
	// CallSiteDirect is a direct call instruction at a known code address.
	CallSiteDirect CallSiteKind = iota
	// CallSiteVTable is an indirect call through a vtable or IMT slot.
	CallSiteVTable
	// CallSitePLT is a call through an AOT PLT entry.
	CallSitePLT
)

// CallSite is the result of classifying the trampoline's caller.
type CallSite struct {
	Kind CallSiteKind
	Slot Address // valid iff Kind == CallSiteVTable
	PLT  Address // valid iff Kind == CallSitePLT
}

// Classify inspects the return address of the trampoline's caller and
// determines, in priority order, whether it used a vtable-indirect call,
// an AOT PLT entry, or a direct call.
func Classify(rt *Runtime, code Address, regs Registers) CallSite {
	if slot, ok := rt.Arch.VCallSlotAddr(code, regs); ok && slot != 0 {
		return CallSite{Kind: CallSiteVTable, Slot: slot}
	}
	if plt, ok := rt.AOT.GetPLTEntry(code); ok && plt != 0 {
		return CallSite{Kind: CallSitePLT, PLT: plt}
	}
	return CallSite{Kind: CallSiteDirect}
}

// slotPatchable reports whether the vtable/IMT slot at addr may be patched
// by the current domain: it must either be a known AOT GOT entry, or be
// owned by the current domain.
func slotPatchable(rt *Runtime, code Address, slot Address) bool {
	current := rt.Domains.Current()
	return rt.AOT.IsGOTEntry(code, slot) || current.OwnsSlot(slot)
}

// patchDirectCallsite patches a direct call instruction, but only when the
// originating and target code both have JIT info and belong to the same
// domain; cross-domain calls are intentionally left unpatched so the
// trampoline runs again next time.
func patchDirectCallsite(rt *Runtime, code, target Address) {
	current := rt.Domains.Current()
	originJI, originOK := rt.Domains.JITInfoFind(current, code)
	targetJI, targetOK := rt.Domains.JITInfoFind(current, target)
	if !originOK || !targetOK {
		return
	}
	if rt.Domains.SameDomain(originJI, targetJI) {
		rt.Arch.PatchCallsite(code, target)
	}
}
