package remote

import (
	"sync"

	"github.com/rexliu/geonb/pkg/jsonrpc"
)

// PendingTable maps correlation ids to unsettled calls.
type PendingTable struct {
	mu    sync.Mutex
	items map[jsonrpc.ID]*Deferred
}

func NewPendingTable() *PendingTable {
	return &PendingTable{items: make(map[jsonrpc.ID]*Deferred)}
}

// Insert registers d under its id.
func (t *PendingTable) Insert(d *Deferred) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[d.ID()] = d
}

// Take removes and returns the entry for id.
func (t *PendingTable) Take(id jsonrpc.ID) (*Deferred, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	return d, ok
}

// Get returns the entry for id without removing it.
func (t *PendingTable) Get(id jsonrpc.ID) (*Deferred, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.items[id]
	return d, ok
}

// Len returns the number of unsettled calls.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
