//go:build windows

package codepatcher

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const pageSize = 4096

// Page is a slab of executable memory owned by a Manager.
type Page struct {
	addr      unsafe.Pointer
	size      int
	allocated time.Time
}

// Addr returns the page's base address.
func (p *Page) Addr() uintptr {
	return uintptr(p.addr)
}

// Manager allocates executable pages via VirtualAlloc.
type Manager struct {
	grace time.Duration
	stale []*Page
}

// NewManager creates a page manager that waits grace before freeing a
// superseded page.
func NewManager(grace time.Duration) *Manager {
	if grace <= 0 {
		grace = time.Second
	}
	return &Manager{grace: grace}
}

// Allocate reserves and commits a page with read/write/execute protection.
func (m *Manager) Allocate(size int) (*Page, error) {
	allocSize := ((size + pageSize - 1) / pageSize) * pageSize
	if allocSize == 0 {
		allocSize = pageSize
	}

	addr, err := windows.VirtualAlloc(0, uintptr(allocSize),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("codepatcher: VirtualAlloc failed: %w", err)
	}

	return &Page{addr: unsafe.Pointer(addr), size: allocSize, allocated: time.Now()}, nil
}

// Commit copies code into page.
func (p *Page) Commit(code []byte) error {
	if len(code) > p.size {
		return fmt.Errorf("codepatcher: code size %d exceeds page size %d", len(code), p.size)
	}
	dst := unsafe.Slice((*byte)(p.addr), p.size)
	copy(dst, code)
	return nil
}

// StoreWord atomically writes a pointer-sized value at byteOffset within
// the page.
func (p *Page) StoreWord(byteOffset int, val uintptr) {
	word := (*atomic.Uintptr)(unsafe.Add(p.addr, byteOffset))
	word.Store(val)
}

// Retire marks page superseded; it is freed after the manager's grace
// period.
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
	if err := windows.VirtualFree(uintptr(p.addr), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("codepatcher: VirtualFree failed: %w", err)
	}
	p.addr = nil
	return nil
}
