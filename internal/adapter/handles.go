package adapter

import (
	"sync"

	"github.com/cardlink/cardlink/internal/common/uuid"
)

// handleEntry is one slot in the handle arena. The entry mutex serializes
// requests targeting the same handle; the object's lifetime stays owned by
// the adapter and is never shared with the remote side.
type handleEntry struct {
	mu     sync.Mutex
	obj    any    // cardbus.Device or cardbus.Card
	parent string // owning device handle, set for cards
}

// handleTable is the arena mapping opaque handle strings to live objects.
type handleTable struct {
	mu      sync.RWMutex
	entries map[string]*handleEntry
}

func newHandleTable() *handleTable {
	return &handleTable{entries: make(map[string]*handleEntry)}
}

// mint registers obj under a fresh handle and returns it. Registration
// always precedes any response referencing the handle.
func (t *handleTable) mint(obj any, parent string) string {
	handle := uuid.NewString()
	t.mu.Lock()
	t.entries[handle] = &handleEntry{obj: obj, parent: parent}
	t.mu.Unlock()
	return handle
}

// get resolves a handle to its entry.
func (t *handleTable) get(handle string) (*handleEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[handle]
	return e, ok
}

// remove drops a handle from the arena, returning its object.
func (t *handleTable) remove(handle string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	if !ok {
		return nil, false
	}
	delete(t.entries, handle)
	return e.obj, true
}

// removeChildren drops every entry whose parent is the given handle,
// returning their objects. Used when a device release tears down its card
// sessions.
func (t *handleTable) removeChildren(parent string) []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []any
	for h, e := range t.entries {
		if e.parent == parent {
			out = append(out, e.obj)
			delete(t.entries, h)
		}
	}
	return out
}

// clear empties the arena, returning all objects.
func (t *handleTable) clear() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []any
	for _, e := range t.entries {
		out = append(out, e.obj)
	}
	t.entries = make(map[string]*handleEntry)
	return out
}
