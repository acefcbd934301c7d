package trampoline

import (
	"sync"
	"sync/atomic"

	"github.com/xyproto/mtramp/internal/thunkcache"
)

// Address is a code or data address as seen by generated machine code.
// It is kept as a plain integer type rather than an unsafe.Pointer because
// the core never dereferences memory it does not itself own (vtable and
// IMT slots); everything else is opaque to architecture collaborators.
type Address uintptr

// WordSize is the size, in bytes, of a vtable/IMT slot. The core assumes a
// single pointer-sized word per slot, matching every architecture the
// embedding runtime targets.
const WordSize = 8

// ImplFlags mirrors a method's implementation-flags bitfield.
type ImplFlags uint32

// FlagSynchronized marks a method that must be wrapped so only one thread
// at a time executes its body (see the AOT method trampoline).
const FlagSynchronized ImplFlags = 1 << 0

// Signature identifies a method's calling shape. Two delegates that share a
// signature share cache entries; identity is pointer equality, never deep
// equality, matching the identity-hashed cache in the runtime this core was
// modeled on.
type Signature struct {
	Name string // for diagnostics only; never compared
}

// Class is the read-only class descriptor supplied by the metadata
// collaborator.
type Class struct {
	Name        string
	IsValueType bool
	methods     []*Method
}

// NewClass constructs a class descriptor with the given declared methods.
func NewClass(name string, isValueType bool, methods []*Method) *Class {
	return &Class{Name: name, IsValueType: isValueType, methods: methods}
}

// Methods iterates the class's declared methods (the metadata collaborator's
// class_methods_iter).
func (c *Class) Methods() []*Method {
	return c.methods
}

// MethodByName returns the first declared method with the given name, or
// nil. Used by the delegate trampoline to locate Invoke.
func (c *Class) MethodByName(name string) *Method {
	for _, m := range c.methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Method is the read-only method descriptor supplied by the metadata
// collaborator.
type Method struct {
	Name            string
	Class           *Class
	Signature       *Signature
	ImplFlags       ImplFlags
	VTableSlotIndex int
}

// Synchronized reports whether the method carries the SYNCHRONIZED
// implementation flag.
func (m *Method) Synchronized() bool {
	return m.ImplFlags&FlagSynchronized != 0
}

// Object is a dispatch object ("this"): an object header carrying a
// pointer to its VTable.
type Object struct {
	VTable *VTable
}

// Domain is an isolation unit. It owns the vtable slots allocated within
// it and two delegate-invoke thunk caches, one for delegates with a bound
// target and one without. The root domain additionally owns AOT-produced
// code.
type Domain struct {
	Name   string
	IsRoot bool

	mu    sync.Mutex
	slots map[Address]bool

	withTarget *thunkcache.Cache
	noTarget   *thunkcache.Cache
}

// NewDomain creates an empty domain. Vtable slots must be registered with
// RegisterSlot as they are allocated so OwnsSlot can answer later.
func NewDomain(name string, isRoot bool) *Domain {
	return &Domain{
		Name:       name,
		IsRoot:     isRoot,
		slots:      make(map[Address]bool),
		withTarget: thunkcache.New(name + ":with-target"),
		noTarget:   thunkcache.New(name + ":no-target"),
	}
}

// RegisterSlot records that the given vtable slot address is owned by this
// domain. Called by the embedding runtime when it allocates a vtable.
func (d *Domain) RegisterSlot(addr Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[addr] = true
}

// OwnsSlot reports whether slot was registered as belonging to this
// domain. A nil/zero slot never belongs to any domain: treat a null slot
// as not-owned rather than dereferencing it.
func (d *Domain) OwnsSlot(slot Address) bool {
	if slot == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[slot]
}

// DelegateCache returns the per-domain thunk cache for delegates that do
// (hasTarget=true) or do not (hasTarget=false) carry a bound target.
func (d *Domain) DelegateCache(hasTarget bool) *thunkcache.Cache {
	if hasTarget {
		return d.withTarget
	}
	return d.noTarget
}

// JITInfo describes an emitted code range, looked up by return address to
// determine the originating method and its owning domain.
type JITInfo struct {
	Method *Method
	Domain *Domain
	Start  Address
	End    Address
}

// DelegateObject is a first-class callable referencing a target object and
// a method. Multicast delegates chain through Prev.
type DelegateObject struct {
	Target     *Object
	MethodPtr  Address
	InvokeImpl Address
	Prev       *DelegateObject
}

// Multicast reports whether this delegate chains to another invocation.
func (d *DelegateObject) Multicast() bool {
	return d.Prev != nil
}

// VTable is a contiguous sequence of function-pointer-sized slots for a
// given (class, domain) pair, with a fixed-size IMT region immediately
// preceding slot zero: a negative displacement from BaseAddr indexes an
// IMT slot.
type VTable struct {
	BaseAddr Address
	Class    *Class
	Domain   *Domain
	IMTSize  int

	slots      []atomic.Uintptr
	imt        []atomic.Uintptr
	collisions uint64 // bit i set iff IMT slot i is a colliding dispatch thunk
}

// NewVTable allocates a vtable with numSlots vtable slots and an IMT region
// of imtSize words immediately preceding it. BaseAddr is the address of
// slot 0; the IMT region occupies [BaseAddr-imtSize*WordSize, BaseAddr).
func NewVTable(base Address, class *Class, domain *Domain, imtSize, numSlots int) *VTable {
	return &VTable{
		BaseAddr: base,
		Class:    class,
		Domain:   domain,
		IMTSize:  imtSize,
		slots:    make([]atomic.Uintptr, numSlots),
		imt:      make([]atomic.Uintptr, imtSize),
	}
}

// SlotAddr returns the address of vtable slot i.
func (vt *VTable) SlotAddr(i int) Address {
	return vt.BaseAddr + Address(i*WordSize)
}

// IMTSlotAddr returns the address of IMT slot i.
func (vt *VTable) IMTSlotAddr(i int) Address {
	return vt.BaseAddr - Address(vt.IMTSize*WordSize) + Address(i*WordSize)
}

// Displacement returns (addr-BaseAddr) in words; it may be negative when
// addr falls inside the IMT region.
func (vt *VTable) Displacement(addr Address) int {
	return (int(addr) - int(vt.BaseAddr)) / WordSize
}

// SetCollision marks IMT slot i as a colliding dispatch thunk.
func (vt *VTable) SetCollision(i int) {
	vt.collisions |= 1 << uint(i)
}

// Colliding reports whether IMT slot i holds a dispatch thunk rather than
// a direct target.
func (vt *VTable) Colliding(i int) bool {
	return vt.collisions&(1<<uint(i)) != 0
}

// LoadSlot atomically reads vtable slot i.
func (vt *VTable) LoadSlot(i int) Address {
	return Address(vt.slots[i].Load())
}

// StoreSlot atomically writes vtable slot i as a single word, so
// concurrent readers on other processors never observe a torn value.
func (vt *VTable) StoreSlot(i int, val Address) {
	vt.slots[i].Store(uintptr(val))
}

// LoadIMT atomically reads IMT slot i.
func (vt *VTable) LoadIMT(i int) Address {
	return Address(vt.imt[i].Load())
}

// StoreIMT atomically writes IMT slot i.
func (vt *VTable) StoreIMT(i int, val Address) {
	vt.imt[i].Store(uintptr(val))
}

// NumSlots returns the number of vtable slots (excluding the IMT region).
func (vt *VTable) NumSlots() int {
	return len(vt.slots)
}

// locate translates a raw address into a (word index, is-IMT-region, ok)
// triple, or reports ok=false if addr falls outside this vtable's slots
// and IMT region entirely.
func (vt *VTable) locate(addr Address) (idx int, isIMT bool, ok bool) {
	d := vt.Displacement(addr)
	if d >= 0 && d < len(vt.slots) {
		return d, false, true
	}
	imtIdx := vt.IMTSize + d
	if d < 0 && imtIdx >= 0 && imtIdx < vt.IMTSize {
		return imtIdx, true, true
	}
	return 0, false, false
}
