// Package peer is the in-memory peer directory: one Entry per connected
// peer, tracking its packet endpoint, its conversation table, and an
// optional redirect target (grounded on proc-factory.c's peer-lookup and
// redirect-before-create path, spec.md §3).
package peer

import (
	"sync"

	"github.com/ccnet-go/ccnet/pio"
	"github.com/ccnet-go/ccnet/proc"
)

// Entry is a single peer's directory record: its packet endpoint plus the
// conversation table keyed by processor id. It implements proc.Peer.
type Entry struct {
	name  string
	local bool

	endpoint *pio.Endpoint

	mu       sync.Mutex
	procs    map[uint32]proc.Processor
	nextID   uint32
	redirect *Entry
}

// NewEntry wraps ep as a directory entry named name. local marks a peer
// reachable without going through the network stack (loopback service
// processors skip the keepalive sweep; see proc.Factory.sweepOnce).
func NewEntry(name string, ep *pio.Endpoint, local bool) *Entry {
	return &Entry{
		name:     name,
		local:    local,
		endpoint: ep,
		procs:    make(map[uint32]proc.Processor),
	}
}

func (e *Entry) Name() string            { return e.name }
func (e *Entry) IsLocal() bool           { return e.local }
func (e *Entry) Endpoint() *pio.Endpoint { return e.endpoint }

// RedirectTo returns the peer a new conversation on e should actually be
// created against, or nil if e should be used directly. Followed exactly
// once by Factory.CreateMaster.
func (e *Entry) RedirectTo() proc.Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.redirect == nil {
		return nil
	}
	return e.redirect
}

// SetRedirect installs (or clears, with nil) e's redirect target.
func (e *Entry) SetRedirect(target *Entry) {
	e.mu.Lock()
	e.redirect = target
	e.mu.Unlock()
}

// NextRequestID allocates the next slave-space request id a master-side
// conversation created against e should carry; Factory.CreateMaster applies
// ToMaster to the result.
func (e *Entry) NextRequestID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return e.nextID
}

func (e *Entry) AddProcessor(p proc.Processor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.procs[p.ID()] = p
}

func (e *Entry) RemoveProcessor(id uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.procs, id)
}

// Processors returns a snapshot of e's conversation table, used by
// Factory.ShutdownForPeer; safe to range over while processors mutate the
// table concurrently through Shutdown.
func (e *Entry) Processors() []proc.Processor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]proc.Processor, 0, len(e.procs))
	for _, p := range e.procs {
		out = append(out, p)
	}
	return out
}

// Lookup returns the processor registered under id, or nil.
func (e *Entry) Lookup(id uint32) proc.Processor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs[id]
}

// Table is the directory of every currently-connected peer, keyed by
// whatever label the transport layer assigns (a remote address, a peer id
// string, etc).
type Table struct {
	mu    sync.Mutex
	peers map[string]*Entry
}

// NewTable builds an empty directory.
func NewTable() *Table {
	return &Table{peers: make(map[string]*Entry)}
}

// Put registers e under e.Name(), replacing any prior entry of the same name.
func (t *Table) Put(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[e.name] = e
}

// Get returns the entry named name, or nil.
func (t *Table) Get(name string) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers[name]
}

// Remove drops name from the directory.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, name)
}

// All returns a snapshot of every registered entry.
func (t *Table) All() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, 0, len(t.peers))
	for _, e := range t.peers {
		out = append(out, e)
	}
	return out
}

// Len reports how many peers are currently registered.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}
