// Package thunkcache implements the per-domain delegate-invoke thunk
// cache used by the delegate trampoline: a mapping from a method
// signature's pointer identity to a previously generated thunk address.
//
// The key space is pointer identity rather than a numeric value tag, so a
// native Go map already gives O(1) bucket lookup without reimplementing
// chaining by hand.
package thunkcache

import "sync"

// Signature is the minimal identity the cache keys on. Any distinct
// pointer is a distinct key, even if two signatures describe the same
// shape, matching the identity-hash semantics of the runtime this was
// modeled on (no Equal method is ever consulted).
type Signature = any

// Cache maps signature identity to a thunk address. The zero value is not
// usable; construct with New. A Cache is safe for concurrent use: Get and
// Set each take the lock for the duration of a single map access, so a
// get/generate/set sequence is naturally lock-drop-regenerate-relock
// without the caller needing to hold the lock across the generate step.
type Cache struct {
	mu      sync.Mutex
	name    string
	entries map[Signature]uintptr
}

// New creates an empty cache. name is used only for diagnostics.
func New(name string) *Cache {
	return &Cache{name: name, entries: make(map[Signature]uintptr)}
}

// Get looks up the thunk address cached for sig.
func (c *Cache) Get(sig Signature) (uintptr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.entries[sig]
	return addr, ok
}

// Set installs addr as the thunk for sig. No re-check for a
// concurrently-inserted entry happens here, deliberately: a racing Set
// simply overwrites, and the loser's thunk becomes unreachable garbage
// until the owning domain is torn down.
func (c *Cache) Set(sig Signature, addr uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sig] = addr
}

// Count returns the number of cached entries.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
