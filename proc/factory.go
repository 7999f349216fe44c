package proc

import (
	"fmt"
	"sync"
	"time"
)

// Reference timing constants from the original keepalive sub-protocol.
const (
	// DefaultNoPacketTimeout is T1: how long a conversation may go without
	// a peer packet before a keepalive probe is sent.
	DefaultNoPacketTimeout = 10 * time.Second
	// ConnectionTimeout is added to T1 to form T2, and also bounds how
	// long a freshly created (never-received) processor may wait before
	// being reaped.
	ConnectionTimeout = 182 * time.Second
	// SweepPeriod is how often the keepalive sweep runs.
	SweepPeriod = 5 * time.Second
	// MaxProcsKeepalive bounds how many probes a single sweep tick may
	// issue; the remainder is deferred to the next tick.
	MaxProcsKeepalive = 50
)

// Constructor builds a Processor instance for a registered service name.
// Factories never call Start themselves; see Processor.Start.
type Constructor func(sess Session, peer Peer, factory *Factory, id uint32, service string) Processor

// Factory is the registry + lifecycle manager for conversation handlers:
// it creates them (master or slave side), tracks every live instance, and
// periodically sweeps the live set to probe or reap dead conversations.
type Factory struct {
	Session Session
	// IsServer mirrors the source's CCNET_SERVER build-time branch as a
	// runtime flag; it is not consulted by the core itself, only by
	// whatever registers recvlogin/sendlogin-style processors.
	IsServer bool

	// Trace receives structured debug/warning diagnostics; nil disables
	// tracing. The core never logs user-facing errors itself (see
	// SPEC_FULL.md §7).
	Trace func(format string, args ...interface{})

	NoPacketTimeout time.Duration

	regMu    sync.Mutex
	registry map[string]Constructor

	mu   sync.Mutex
	live map[Processor]struct{}

	recycleMu  sync.Mutex
	recycleCap int
	recycleLog []RecycleEntry

	stop chan struct{}
	once sync.Once
}

// RecycleEntry is an optional debug-only record of a recently closed
// handler.
type RecycleEntry struct {
	ServiceName string
	PeerLabel   string
	CreatedAt   time.Time
	DestroyedAt time.Time
	Reason      ShutdownReason
}

// NewFactory creates a factory bound to a session. RecycleLogCapacity == 0
// disables the recycle log.
func NewFactory(session Session, isServer bool, recycleLogCapacity int) *Factory {
	return &Factory{
		Session:         session,
		IsServer:        isServer,
		NoPacketTimeout: DefaultNoPacketTimeout,
		registry:        make(map[string]Constructor),
		live:            make(map[Processor]struct{}),
		recycleCap:      recycleLogCapacity,
		stop:            make(chan struct{}),
	}
}

func (f *Factory) trace(format string, args ...interface{}) {
	if f.Trace != nil {
		f.Trace(format, args...)
	}
}

// Register inserts a service-name -> constructor mapping. A duplicate name
// replaces the prior entry.
func (f *Factory) Register(serviceName string, ctor Constructor) {
	f.regMu.Lock()
	defer f.regMu.Unlock()
	f.registry[serviceName] = ctor
}

func (f *Factory) lookup(serviceName string) Constructor {
	f.regMu.Lock()
	defer f.regMu.Unlock()
	return f.registry[serviceName]
}

// CreateMaster creates a master-side processor for serviceName on peer (or
// on peer.RedirectTo(), followed exactly one hop). It returns nil if the
// service name is unregistered. Start is not called; the caller does so
// once it has installed any per-conversation state.
func (f *Factory) CreateMaster(serviceName string, peer Peer) Processor {
	ctor := f.lookup(serviceName)
	if ctor == nil {
		return nil
	}
	if redirect := peer.RedirectTo(); redirect != nil {
		peer = redirect
	}
	id := ToMaster(peer.NextRequestID())
	p := ctor(f.Session, peer, f, id, serviceName)
	f.attach(p)
	f.trace("[proc-factory] create master %s(%d)", serviceName, id)
	return p
}

// CreateSlave creates a slave-side processor for serviceName, using the id
// carried by the inbound conversation-initiation frame (normalized to the
// slave space). It returns nil if the service name is unregistered.
func (f *Factory) CreateSlave(serviceName string, peer Peer, reqID uint32) Processor {
	ctor := f.lookup(serviceName)
	if ctor == nil {
		return nil
	}
	id := ToSlave(reqID)
	p := ctor(f.Session, peer, f, id, serviceName)
	f.attach(p)
	f.trace("[proc-factory] create slave %s(%d)", serviceName, id)
	return p
}

func (f *Factory) attach(p Processor) {
	p.Peer().AddProcessor(p)
	f.mu.Lock()
	f.live[p] = struct{}{}
	f.mu.Unlock()
}

// Recycle unlinks p from the factory's live set. It is safe to call from
// within p's own Shutdown implementation. reason is recorded in the debug
// recycle log verbatim from whatever Shutdown call triggered it.
func (f *Factory) Recycle(p Processor, reason ShutdownReason) {
	f.mu.Lock()
	_, ok := f.live[p]
	delete(f.live, p)
	f.mu.Unlock()
	if !ok {
		return
	}

	if f.recycleCap > 0 {
		f.recycleMu.Lock()
		f.recycleLog = append(f.recycleLog, RecycleEntry{
			ServiceName: p.ServiceName(),
			CreatedAt:   p.StartTime(),
			DestroyedAt: f.Session.Now(),
			Reason:      reason,
		})
		if len(f.recycleLog) > f.recycleCap {
			f.recycleLog = f.recycleLog[len(f.recycleLog)-f.recycleCap:]
		}
		f.recycleMu.Unlock()
	}
}

// RecentlyRecycled returns a copy of the recycle log (debug only).
func (f *Factory) RecentlyRecycled() []RecycleEntry {
	f.recycleMu.Lock()
	defer f.recycleMu.Unlock()
	out := make([]RecycleEntry, len(f.recycleLog))
	copy(out, f.recycleLog)
	return out
}

// LiveCount returns the number of currently tracked processors.
func (f *Factory) LiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// ShutdownForPeer snapshots peer's conversation table and issues
// Shutdown(NETDOWN) on each entry. It does not assume the table stays
// intact during iteration.
func (f *Factory) ShutdownForPeer(peer Peer) {
	snapshot := peer.Processors()
	for _, p := range snapshot {
		p.Shutdown(ReasonNetDown)
	}
}

// StartSweep launches the periodic keepalive sweep goroutine. Stop ends it.
func (f *Factory) StartSweep() {
	go func() {
		ticker := time.NewTicker(SweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.sweepOnce(f.Session.Now())
			case <-f.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine.
func (f *Factory) Stop() {
	f.once.Do(func() { close(f.stop) })
}

// sweepOnce runs one pass of the central keepalive algorithm (spec.md
// §4.4). It snapshots the live set under the factory lock, then releases
// the lock before visiting processors, so KeepAlive/Shutdown calls (which
// recycle back through the same lock) never deadlock. Only one goroutine
// ever calls sweepOnce (the sweep goroutine started by StartSweep), so
// ticks never interleave with each other.
func (f *Factory) sweepOnce(now time.Time) {
	f.mu.Lock()
	snapshot := make([]Processor, 0, len(f.live))
	for p := range f.live {
		snapshot = append(snapshot, p)
	}
	f.mu.Unlock()

	t1 := f.NoPacketTimeout
	t2 := t1 + ConnectionTimeout
	count := 0

sweepLoop:
	for _, p := range snapshot {
		switch p.Kind() {
		case KindKeepalive:
			continue sweepLoop
		case KindServiceProxy, KindServiceStub:
			if o, ok := p.(Orphaner); ok && o.IsOrphan() {
				f.trace("[proc-factory] shutdown orphan %s(%d)", p.ServiceName(), p.ID())
				p.Shutdown(ReasonNotSet)
			}
			continue sweepLoop
		}

		if p.Peer().IsLocal() {
			continue sweepLoop
		}

		recv := p.LastRecv()
		if recv.IsZero() {
			if now.Sub(p.StartTime()) >= ConnectionTimeout {
				f.trace("[proc-factory] shutdown %s(%d) connect timeout", p.ServiceName(), p.ID())
				p.Shutdown(ReasonConnTimeout)
			}
			continue sweepLoop
		}

		if now.Sub(recv) <= t1 {
			continue sweepLoop
		}

		sentAt := p.LastKeepaliveSent()
		if !sentAt.After(recv) {
			p.KeepAlive()
			count++
			if count >= MaxProcsKeepalive {
				break sweepLoop
			}
			continue sweepLoop
		}

		if now.Sub(recv) > t2 {
			f.trace("[proc-factory] shutdown %s(%d) timeout", p.ServiceName(), p.ID())
			p.Shutdown(ReasonTimeout)
		}
	}
}

func (f *Factory) String() string {
	return fmt.Sprintf("Factory{live=%d server=%v}", f.LiveCount(), f.IsServer)
}
