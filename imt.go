package trampoline

// ResolveIMTSlot takes an observed dispatch slot address and the nominal
// method the caller thought it was invoking, classifies the slot and, if
// it addresses a colliding IMT slot, walks to the real vtable slot for
// the target interface method.
//
// The boundary cases (displacement == 0, == -IMTSize, == -1) are
// exercised in imt_test.go.
func ResolveIMTSlot(rt *Runtime, slot Address, regs Registers, method *Method) Address {
	const component = "imt"

	this := rt.Arch.FindThisArgument(regs, method)
	assert(component, this != nil, "find_this_argument returned nil for method %s", method.Name)
	vt := this.VTable
	assert(component, vt != nil, "dispatch object has no vtable")

	displacement := vt.Displacement(slot)
	if displacement >= 0 {
		// slot is in the vtable, not in the IMT.
		return slot
	}

	imtMethod := rt.Arch.FindIMTMethod(regs)
	assert(component, imtMethod != nil, "find_imt_method returned nil")

	interfaceOffset := rt.Metadata.ClassInterfaceOffset(vt.Class, imtMethod.Class)
	imtSlot := vt.IMTSize + displacement
	assert(component, imtSlot >= 0 && imtSlot < vt.IMTSize,
		"imt slot %d out of range [0,%d)", imtSlot, vt.IMTSize)

	if !vt.Colliding(imtSlot) {
		// Non-colliding: the observed slot already holds the single
		// possible target, no further resolution needed.
		return slot
	}

	vtableOffset := interfaceOffset + imtMethod.VTableSlotIndex
	assert(component, vtableOffset >= 0, "resolved vtable offset %d is negative", vtableOffset)
	return vt.SlotAddr(vtableOffset)
}
