package trampoline

import "sync"

// Test doubles for the collaborator interfaces in interfaces.go: small
// hand-rolled structs configured with closures or maps, no mocking
// framework.

type fakeCompiler struct {
	mu      sync.Mutex
	calls   int
	compile func(m *Method) Address
}

func (f *fakeCompiler) Compile(m *Method) Address {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.compile != nil {
		return f.compile(m)
	}
	return 0xC0DE
}

type fakeMetadata struct {
	interfaceOffset int
	methods         map[uint32]*Method
}

func (f *fakeMetadata) GetMethod(image any, token uint32) *Method {
	return f.methods[token]
}

func (f *fakeMetadata) ClassInterfaceOffset(class, iface *Class) int {
	return f.interfaceOffset
}

type fakeAOT struct {
	fromToken  Address
	hasToken   bool
	gotEntries map[Address]bool
	pltEntries map[Address]Address
	pltResolve Address
}

func (f *fakeAOT) GetMethodFromToken(domain *Domain, image any, token uint32) (Address, bool) {
	return f.fromToken, f.hasToken
}

func (f *fakeAOT) IsGOTEntry(code Address, slot Address) bool {
	return f.gotEntries[slot]
}

func (f *fakeAOT) GetPLTEntry(code Address) (Address, bool) {
	plt, ok := f.pltEntries[code]
	return plt, ok
}

func (f *fakeAOT) PLTResolve(module any, pltInfoOffset int32, code Address) Address {
	return f.pltResolve
}

type fakeMarshal struct {
	synchronizedWrapper func(m *Method) *Method
	delegateWrapper     func(m *Method) *Method
}

func (f *fakeMarshal) SynchronizedWrapper(m *Method) *Method {
	if f.synchronizedWrapper != nil {
		return f.synchronizedWrapper(m)
	}
	return m
}

func (f *fakeMarshal) DelegateInvokeWrapper(invoke *Method) *Method {
	if f.delegateWrapper != nil {
		return f.delegateWrapper(invoke)
	}
	return invoke
}

type fakeArch struct {
	this             *Object
	imtMethod        *Method
	vcallSlot        Address
	hasVCallSlot     bool
	thisArgForCall   *DelegateObject
	unboxResult      Address
	delegateInvoke   Address
	hasDelegateThunk bool

	pltPatches       map[Address]Address
	callsitePatches  map[Address]Address
	nullifiedPLT     []Address
	nullifiedDirects []Address
}

func newFakeArch() *fakeArch {
	return &fakeArch{
		pltPatches:      make(map[Address]Address),
		callsitePatches: make(map[Address]Address),
	}
}

func (f *fakeArch) FindThisArgument(regs Registers, m *Method) *Object { return f.this }
func (f *fakeArch) FindIMTMethod(regs Registers) *Method               { return f.imtMethod }
func (f *fakeArch) VCallSlotAddr(code Address, regs Registers) (Address, bool) {
	return f.vcallSlot, f.hasVCallSlot
}
func (f *fakeArch) GetThisArgFromCall(sig *Signature, regs Registers, code Address) *DelegateObject {
	return f.thisArgForCall
}
func (f *fakeArch) UnboxTrampoline(m *Method, code Address) Address { return f.unboxResult }
func (f *fakeArch) DelegateInvokeImpl(sig *Signature, hasTarget bool) (Address, bool) {
	return f.delegateInvoke, f.hasDelegateThunk
}
func (f *fakeArch) PatchPLTEntry(plt Address, target Address) { f.pltPatches[plt] = target }
func (f *fakeArch) PatchCallsite(code Address, target Address) {
	f.callsitePatches[code] = target
}
func (f *fakeArch) NullifyPLTEntry(plt Address) {
	f.nullifiedPLT = append(f.nullifiedPLT, plt)
}
func (f *fakeArch) NullifyClassInitTrampoline(code Address, regs Registers) {
	f.nullifiedDirects = append(f.nullifiedDirects, code)
}

type fakeDomains struct {
	current *Domain
	root    *Domain
	jitInfo map[Address]*JITInfo
	same    func(a, b *JITInfo) bool
}

func (f *fakeDomains) Current() *Domain { return f.current }
func (f *fakeDomains) Root() *Domain    { return f.root }
func (f *fakeDomains) JITInfoFind(d *Domain, code Address) (*JITInfo, bool) {
	ji, ok := f.jitInfo[code]
	return ji, ok
}
func (f *fakeDomains) SameDomain(a, b *JITInfo) bool {
	if f.same != nil {
		return f.same(a, b)
	}
	return a.Domain == b.Domain
}

type fakeMemChecker struct{ under bool }

func (f *fakeMemChecker) RunningUnderMemcheck() bool { return f.under }

type fakeClassInit struct {
	mu    sync.Mutex
	calls map[*VTable]int
}

func newFakeClassInit() *fakeClassInit {
	return &fakeClassInit{calls: make(map[*VTable]int)}
}

func (f *fakeClassInit) ClassInit(vt *VTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[vt]++
}

// newTestRuntime wires up a Runtime backed entirely by fakes, suitable as
// a starting point for each test to override the pieces it cares about.
func newTestRuntime() (*Runtime, *fakeArch, *fakeDomains) {
	domain := NewDomain("domain-0", true)
	arch := newFakeArch()
	domains := &fakeDomains{current: domain, root: domain, jitInfo: make(map[Address]*JITInfo)}

	rt := &Runtime{
		Compiler:   &fakeCompiler{},
		Metadata:   &fakeMetadata{methods: make(map[uint32]*Method)},
		AOT:        &fakeAOT{pltEntries: make(map[Address]Address), gotEntries: make(map[Address]bool)},
		Marshal:    &fakeMarshal{},
		Arch:       arch,
		Domains:    domains,
		MemChecker: &fakeMemChecker{},
		ClassInits: newFakeClassInit(),
	}
	return rt, arch, domains
}
