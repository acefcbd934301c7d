package main

import (
	"fmt"

	trampoline "github.com/xyproto/mtramp"
)

// demoCompiler "compiles" a method by allocating a fresh executable page
// and stamping its address in as the method's body.
type demoCompiler struct {
	pages *pageSet
}

func (c *demoCompiler) Compile(m *trampoline.Method) trampoline.Address {
	page := c.pages.allocate("compile:" + m.Name)
	return trampoline.Address(page.Addr())
}

// demoMetadata answers the handful of lookups the demo scenarios need.
type demoMetadata struct {
	methods         map[uint32]*trampoline.Method
	interfaceOffset int
}

func (m *demoMetadata) GetMethod(image any, token uint32) *trampoline.Method {
	return m.methods[token]
}

func (m *demoMetadata) ClassInterfaceOffset(class, iface *trampoline.Class) int {
	return m.interfaceOffset
}

// demoAOT models an AOT image with no precompiled bodies: every lookup
// misses, forcing the AOT trampoline down the JIT-compile path.
type demoAOT struct {
	plt map[trampoline.Address]trampoline.Address
}

func newDemoAOT() *demoAOT {
	return &demoAOT{plt: make(map[trampoline.Address]trampoline.Address)}
}

func (a *demoAOT) GetMethodFromToken(domain *trampoline.Domain, image any, token uint32) (trampoline.Address, bool) {
	return 0, false
}
func (a *demoAOT) IsGOTEntry(code, slot trampoline.Address) bool { return false }
func (a *demoAOT) GetPLTEntry(code trampoline.Address) (trampoline.Address, bool) {
	plt, ok := a.plt[code]
	return plt, ok
}
func (a *demoAOT) PLTResolve(module any, pltInfoOffset int32, code trampoline.Address) trampoline.Address {
	return 0
}

type demoMarshal struct{ compiler *demoCompiler }

func (m *demoMarshal) SynchronizedWrapper(method *trampoline.Method) *trampoline.Method {
	wrapped := *method
	wrapped.Name = method.Name + "$sync"
	return &wrapped
}

func (m *demoMarshal) DelegateInvokeWrapper(invoke *trampoline.Method) *trampoline.Method {
	wrapped := *invoke
	wrapped.Name = invoke.Name + "$generic"
	return &wrapped
}

// demoArch is a minimal concrete Architecture: no real register decoding,
// just enough bookkeeping to drive each scenario through its expected
// call-site kind and produce real patches against real executable pages.
type demoArch struct {
	pages *pageSet

	this      *trampoline.Object
	imtMethod *trampoline.Method
	vcallSlot trampoline.Address
	hasSlot   bool

	delegateObj      *trampoline.DelegateObject
	delegateInvoke   trampoline.Address
	hasDelegateThunk bool
}

func (a *demoArch) FindThisArgument(regs trampoline.Registers, m *trampoline.Method) *trampoline.Object {
	return a.this
}
func (a *demoArch) FindIMTMethod(regs trampoline.Registers) *trampoline.Method { return a.imtMethod }
func (a *demoArch) VCallSlotAddr(code trampoline.Address, regs trampoline.Registers) (trampoline.Address, bool) {
	return a.vcallSlot, a.hasSlot
}
func (a *demoArch) GetThisArgFromCall(sig *trampoline.Signature, regs trampoline.Registers, code trampoline.Address) *trampoline.DelegateObject {
	return a.delegateObj
}
func (a *demoArch) UnboxTrampoline(m *trampoline.Method, code trampoline.Address) trampoline.Address {
	page := a.pages.allocate("unbox:" + m.Name)
	return trampoline.Address(page.Addr())
}
func (a *demoArch) DelegateInvokeImpl(sig *trampoline.Signature, hasTarget bool) (trampoline.Address, bool) {
	return a.delegateInvoke, a.hasDelegateThunk
}
func (a *demoArch) PatchPLTEntry(plt, target trampoline.Address) {
	fmt.Printf("  patch PLT entry %#x -> %#x\n", plt, target)
}
func (a *demoArch) PatchCallsite(code, target trampoline.Address) {
	fmt.Printf("  patch direct call site %#x -> %#x\n", code, target)
}
func (a *demoArch) NullifyPLTEntry(plt trampoline.Address) {
	fmt.Printf("  nullify PLT entry %#x\n", plt)
}
func (a *demoArch) NullifyClassInitTrampoline(code trampoline.Address, regs trampoline.Registers) {
	fmt.Printf("  nullify direct class-init call site %#x\n", code)
}

type demoDomains struct {
	current, root *trampoline.Domain
	jitInfo       map[trampoline.Address]*trampoline.JITInfo
}

func (d *demoDomains) Current() *trampoline.Domain { return d.current }
func (d *demoDomains) Root() *trampoline.Domain     { return d.root }
func (d *demoDomains) JITInfoFind(dom *trampoline.Domain, code trampoline.Address) (*trampoline.JITInfo, bool) {
	ji, ok := d.jitInfo[code]
	return ji, ok
}
func (d *demoDomains) SameDomain(a, b *trampoline.JITInfo) bool {
	return a.Domain == b.Domain
}

type demoMemChecker struct{}

func (demoMemChecker) RunningUnderMemcheck() bool { return false }

type demoClassInit struct {
	ran map[*trampoline.VTable]int
}

func (c *demoClassInit) ClassInit(vt *trampoline.VTable) {
	if c.ran[vt] > 0 {
		return
	}
	c.ran[vt]++
	fmt.Printf("  class-init: %s (run #%d)\n", vt.Class.Name, c.ran[vt])
}

// demo wires every collaborator above into a Runtime and exposes named
// scenarios.
type demo struct {
	rt      *trampoline.Runtime
	pages   *pageSet
	arch    *demoArch
	domains *demoDomains
}

func newDemo(verbose bool) *demo {
	pages := newPageSet()
	domain := trampoline.NewDomain("root", true)
	domains := &demoDomains{current: domain, root: domain, jitInfo: make(map[trampoline.Address]*trampoline.JITInfo)}
	arch := &demoArch{pages: pages}
	compiler := &demoCompiler{pages: pages}

	rt := &trampoline.Runtime{
		Compiler:   compiler,
		Metadata:   &demoMetadata{methods: make(map[uint32]*trampoline.Method), interfaceOffset: 12},
		AOT:        newDemoAOT(),
		Marshal:    &demoMarshal{compiler: compiler},
		Arch:       arch,
		Domains:    domains,
		MemChecker: demoMemChecker{},
		ClassInits: &demoClassInit{ran: make(map[*trampoline.VTable]int)},
		Verbose:    verbose,
	}

	return &demo{rt: rt, pages: pages, arch: arch, domains: domains}
}

func (d *demo) run(scenario string) error {
	scenarios := map[string]func(){
		"s1": d.runS1NonIMTSlot,
		"s2": d.runS2NonCollidingIMT,
		"s3": d.runS3CollidingIMT,
		"s4": d.runS4ValueTypeUnbox,
		"s5": d.runS5ClassInitIdempotence,
		"s6": d.runS6DelegateCacheHit,
	}

	if scenario == "all" {
		for _, name := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
			fmt.Printf("== %s ==\n", name)
			scenarios[name]()
		}
		return nil
	}

	fn, ok := scenarios[scenario]
	if !ok {
		return fmt.Errorf("unknown scenario %q (want s1-s6 or all)", scenario)
	}
	fn()
	return nil
}

func (d *demo) newVTable(className string, imtSize, numSlots int) *trampoline.VTable {
	class := trampoline.NewClass(className, false, nil)
	page := d.pages.allocate("vtable:" + className)
	vt := trampoline.NewVTable(trampoline.Address(page.Addr()), class, d.domains.current, imtSize, numSlots)
	d.rt.RegisterVTable(vt)
	return vt
}

func (d *demo) runS1NonIMTSlot() {
	vt := d.newVTable("Widget", 4, 8)
	method := &trampoline.Method{Name: "Foo", Class: vt.Class}
	d.arch.this = &trampoline.Object{VTable: vt}

	slot := vt.SlotAddr(2)
	resolved := trampoline.ResolveIMTSlot(d.rt, slot, nil, method)
	fmt.Printf("  non-IMT slot %#x resolves unchanged: %#x\n", slot, resolved)
}

func (d *demo) runS2NonCollidingIMT() {
	vt := d.newVTable("Widget", 4, 8)
	method := &trampoline.Method{Name: "Foo", Class: vt.Class}
	d.arch.this = &trampoline.Object{VTable: vt}
	d.arch.imtMethod = &trampoline.Method{Name: "IFoo.Bar", Class: trampoline.NewClass("IFoo", false, nil)}

	slot := vt.IMTSlotAddr(2)
	resolved := trampoline.ResolveIMTSlot(d.rt, slot, nil, method)
	fmt.Printf("  non-colliding IMT slot %#x resolves unchanged: %#x\n", slot, resolved)
}

func (d *demo) runS3CollidingIMT() {
	vt := d.newVTable("Widget", 4, 8)
	method := &trampoline.Method{Name: "Foo", Class: vt.Class}
	d.arch.this = &trampoline.Object{VTable: vt}
	iface := trampoline.NewClass("IFoo", false, nil)
	d.arch.imtMethod = &trampoline.Method{Name: "IFoo.Bar", Class: iface, VTableSlotIndex: 1}

	slot := vt.IMTSlotAddr(2)
	vt.SetCollision(2)
	resolved := trampoline.ResolveIMTSlot(d.rt, slot, nil, method)
	fmt.Printf("  colliding IMT slot %#x resolves to vtable slot: %#x\n", slot, resolved)
}

func (d *demo) runS4ValueTypeUnbox() {
	class := trampoline.NewClass("Point", true, nil)
	page := d.pages.allocate("vtable:Point")
	vt := trampoline.NewVTable(trampoline.Address(page.Addr()), class, d.domains.current, 2, 4)
	d.rt.RegisterVTable(vt)
	d.domains.current.RegisterSlot(vt.SlotAddr(1))
	vt.StoreSlot(1, trampoline.Address(d.pages.allocate("placeholder").Addr()))

	method := &trampoline.Method{Name: "Distance", Class: class}
	d.rt.Metadata.(*demoMetadata).methods[1] = method
	d.arch.this = &trampoline.Object{VTable: vt}
	d.arch.vcallSlot = vt.SlotAddr(1)
	d.arch.hasSlot = true

	target := trampoline.Magic(d.rt, nil, 0x1, method)
	fmt.Printf("  value-type dispatch compiled/unboxed to %#x\n", target)
}

func (d *demo) runS5ClassInitIdempotence() {
	vt := d.newVTable("StaticHolder", 2, 4)

	trampoline.ClassInit(d.rt, nil, 0x2, vt)
	trampoline.ClassInit(d.rt, nil, 0x2, vt)

	ci := d.rt.ClassInits.(*demoClassInit)
	fmt.Printf("  class-init ran %d time(s) for %s across two calls\n", ci.ran[vt], vt.Class.Name)
}

func (d *demo) runS6DelegateCacheHit() {
	sig := &trampoline.Signature{Name: "void()"}
	invoke := &trampoline.Method{Name: "Invoke", Signature: sig}
	class := trampoline.NewClass("MyDelegate", false, []*trampoline.Method{invoke})

	delegate := &trampoline.DelegateObject{}
	d.arch.delegateObj = delegate
	d.arch.hasDelegateThunk = true
	d.arch.delegateInvoke = trampoline.Address(d.pages.allocate("delegate-thunk").Addr())

	first := trampoline.DelegateTrampoline(d.rt, nil, 0x3, class)
	d.arch.delegateObj = &trampoline.DelegateObject{}
	second := trampoline.DelegateTrampoline(d.rt, nil, 0x3, class)

	fmt.Printf("  first invoke thunk: %#x, second (cache hit) invoke thunk: %#x\n", first, second)
}
