//go:build !windows

// Package codepatcher allocates and manages executable memory pages for
// freshly generated trampolines and thunks (unbox trampolines, delegate
// invoke thunks, PLT stubs), and performs the word-atomic stores needed
// when overwriting code that another processor may be executing
// concurrently.
//
// Pages are allocated with golang.org/x/sys/unix rather than raw
// syscall numbers, and superseded pages are retired after a grace period
// instead of being freed immediately, since another thread may still be
// executing out of them.
package codepatcher

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// Page is a slab of executable memory owned by a Manager.
type Page struct {
	addr      unsafe.Pointer
	size      int
	allocated time.Time
}

// Addr returns the page's base address, suitable for use as a trampoline
// or thunk's Address.
func (p *Page) Addr() uintptr {
	return uintptr(p.addr)
}

// Manager allocates executable pages and retires superseded ones after a
// grace period: install the new page, then let anything still executing
// out of the old one drain before it is unmapped.
type Manager struct {
	grace time.Duration
	stale []*Page
}

// NewManager creates a page manager that waits grace before unmapping a
// superseded page (default: hotreload_unix.go's own 1 second).
func NewManager(grace time.Duration) *Manager {
	if grace <= 0 {
		grace = time.Second
	}
	return &Manager{grace: grace}
}

// Allocate maps a new read+write page large enough to hold size bytes of
// machine code. The page is not executable until Commit mprotects it, so
// a page is never simultaneously writable and executable from the moment
// code first lands in it.
func (m *Manager) Allocate(size int) (*Page, error) {
	allocSize := ((size + pageSize - 1) / pageSize) * pageSize
	if allocSize == 0 {
		allocSize = pageSize
	}

	data, err := unix.Mmap(-1, 0, allocSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("codepatcher: mmap failed: %w", err)
	}

	return &Page{addr: unsafe.Pointer(&data[0]), size: allocSize, allocated: time.Now()}, nil
}

// Commit copies code into page, then mprotects it read+exec so no thread
// can ever observe the page as both writable and executable. StoreWord
// below handles later single aligned word patches, briefly reopening
// write access for the duration of one store.
func (p *Page) Commit(code []byte) error {
	if len(code) > p.size {
		return fmt.Errorf("codepatcher: code size %d exceeds page size %d", len(code), p.size)
	}
	dst := unsafe.Slice((*byte)(p.addr), p.size)
	copy(dst, code)
	if err := unix.Mprotect(dst, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("codepatcher: mprotect rx failed: %w", err)
	}
	return nil
}

// StoreWord atomically writes a pointer-sized value at byteOffset within
// the page, used to patch a single PLT/GOT entry in place without
// recommitting the whole page. The page is toggled back to writable for
// the duration of the store and restored to read+exec before returning,
// so it is never left in a writable-and-executable state.
func (p *Page) StoreWord(byteOffset int, val uintptr) {
	dst := unsafe.Slice((*byte)(p.addr), p.size)
	if err := unix.Mprotect(dst, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		panic(fmt.Sprintf("codepatcher: mprotect rw failed: %v", err))
	}
	word := (*atomic.Uintptr)(unsafe.Add(p.addr, byteOffset))
	word.Store(val)
	if err := unix.Mprotect(dst, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		panic(fmt.Sprintf("codepatcher: mprotect rx failed: %v", err))
	}
}

// Retire marks page superseded. It is unmapped after the manager's grace
// period, giving any thread still executing inside it time to return.
func (m *Manager) Retire(page *Page) {
	m.stale = append(m.stale, page)
	go m.sweep()
}

func (m *Manager) sweep() {
	time.Sleep(m.grace)

	now := time.Now()
	remaining := m.stale[:0]
	for _, page := range m.stale {
		if now.Sub(page.allocated) >= m.grace {
			_ = page.free()
		} else {
			remaining = append(remaining, page)
		}
	}
	m.stale = remaining
}

func (p *Page) free() error {
	if p.addr == nil {
		return nil
	}
	data := unsafe.Slice((*byte)(p.addr), p.size)
	_ = unix.Madvise(data, unix.MADV_DONTNEED)
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("codepatcher: munmap failed: %w", err)
	}
	p.addr = nil
	return nil
}
