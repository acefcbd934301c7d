package trampoline

import "testing"

func TestMagic_NoCallSite(t *testing.T) {
	rt, _, _ := newTestRuntime()
	m := &Method{Name: "Foo", Class: NewClass("Widget", false, nil)}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}

	got := Magic(rt, nil, 0, m)
	if got != 0xABCD {
		t.Fatalf("expected compiled address returned directly, got %#x", got)
	}
}

func TestMagic_DirectCallsite(t *testing.T) {
	rt, arch, domains := newTestRuntime()
	m := &Method{Name: "Foo", Class: NewClass("Widget", false, nil)}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}
	domains.jitInfo[0x100] = &JITInfo{Domain: domains.current}
	domains.jitInfo[0xABCD] = &JITInfo{Domain: domains.current}

	Magic(rt, nil, 0x100, m)

	if arch.callsitePatches[0x100] != 0xABCD {
		t.Error("expected a direct call site to be patched to the compiled address")
	}
}

func TestMagic_PLTCallsite(t *testing.T) {
	rt, arch, _ := newTestRuntime()
	m := &Method{Name: "Foo", Class: NewClass("Widget", false, nil)}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}
	rt.AOT.(*fakeAOT).pltEntries[0x100] = 0x3000

	Magic(rt, nil, 0x100, m)

	if arch.pltPatches[0x3000] != 0xABCD {
		t.Error("expected the PLT entry to be patched to the compiled address")
	}
}

func TestMagic_VTableCallsite_NonCollidingPatch(t *testing.T) {
	rt, arch, domains := newTestRuntime()
	class := NewClass("Widget", false, nil)
	vt := NewVTable(0x1000, class, domains.current, 4, 8)
	rt.RegisterVTable(vt)
	vt.StoreSlot(2, 0xDEAD) // existing trampoline placeholder
	domains.current.RegisterSlot(vt.SlotAddr(2))

	m := &Method{Name: "Foo", Class: class}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}
	arch.this = &Object{VTable: vt}
	arch.vcallSlot = vt.SlotAddr(2)
	arch.hasVCallSlot = true

	Magic(rt, nil, 0x100, m)

	if vt.LoadSlot(2) != 0xABCD {
		t.Errorf("expected vtable slot 2 patched to 0xABCD, got %#x", vt.LoadSlot(2))
	}
}

func TestMagic_VTableCallsite_ValueTypeUnboxes(t *testing.T) {
	rt, arch, domains := newTestRuntime()
	class := NewClass("Point", true, nil)
	vt := NewVTable(0x1000, class, domains.current, 4, 8)
	rt.RegisterVTable(vt)
	vt.StoreSlot(2, 0xDEAD)
	domains.current.RegisterSlot(vt.SlotAddr(2))

	m := &Method{Name: "Foo", Class: class}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}
	arch.this = &Object{VTable: vt}
	arch.vcallSlot = vt.SlotAddr(2)
	arch.hasVCallSlot = true
	arch.unboxResult = 0xF00D

	Magic(rt, nil, 0x100, m)

	if vt.LoadSlot(2) != 0xF00D {
		t.Errorf("expected value-type dispatch to store the unbox trampoline, got %#x", vt.LoadSlot(2))
	}
}

func TestMagic_VTableCallsite_UnpatchableSlotLeftAlone(t *testing.T) {
	rt, arch, domains := newTestRuntime()
	class := NewClass("Widget", false, nil)
	vt := NewVTable(0x1000, class, domains.current, 4, 8)
	rt.RegisterVTable(vt)
	vt.StoreSlot(2, 0xDEAD)
	// Deliberately not registered to the current domain, and not a GOT entry.

	m := &Method{Name: "Foo", Class: class}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}
	arch.this = &Object{VTable: vt}
	arch.vcallSlot = vt.SlotAddr(2)
	arch.hasVCallSlot = true

	Magic(rt, nil, 0x100, m)

	if vt.LoadSlot(2) != 0xDEAD {
		t.Errorf("expected an unowned, non-GOT slot to be left untouched, got %#x", vt.LoadSlot(2))
	}
}

func TestMagic_VTableCallsite_EmptySlotPanics(t *testing.T) {
	rt, arch, domains := newTestRuntime()
	class := NewClass("Widget", false, nil)
	vt := NewVTable(0x1000, class, domains.current, 4, 8)
	rt.RegisterVTable(vt)
	// slot 2 left at zero: no trampoline was ever installed there.

	m := &Method{Name: "Foo", Class: class}
	rt.Compiler = &fakeCompiler{compile: func(m *Method) Address { return 0xABCD }}
	arch.this = &Object{VTable: vt}
	arch.vcallSlot = vt.SlotAddr(2)
	arch.hasVCallSlot = true

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic for an empty vtable slot")
		} else if _, ok := r.(*Fault); !ok {
			t.Fatalf("expected *Fault panic, got %T", r)
		}
	}()
	Magic(rt, nil, 0x100, m)
}
