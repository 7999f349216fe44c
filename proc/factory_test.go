package proc

import (
	"sync"
	"testing"
	"time"

	"github.com/ccnet-go/ccnet/pio"
)

// fakeSession is a virtual clock, letting tests advance time deterministically.
type fakeSession struct {
	mu  sync.Mutex
	now time.Time
}

func (s *fakeSession) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSession) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// fakePeer is a minimal in-memory Peer for tests.
type fakePeer struct {
	mu       sync.Mutex
	table    map[uint32]Processor
	local    bool
	redirect Peer
	nextID   uint32
}

func newFakePeer() *fakePeer {
	return &fakePeer{table: make(map[uint32]Processor)}
}

func (p *fakePeer) IsLocal() bool      { return p.local }
func (p *fakePeer) RedirectTo() Peer   { return p.redirect }
func (p *fakePeer) NextRequestID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return p.nextID
}
func (p *fakePeer) AddProcessor(pr Processor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table[pr.ID()] = pr
}
func (p *fakePeer) RemoveProcessor(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.table, id)
}
func (p *fakePeer) Processors() []Processor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Processor, 0, len(p.table))
	for _, pr := range p.table {
		out = append(out, pr)
	}
	return out
}
func (p *fakePeer) Endpoint() *pio.Endpoint { return nil }

func TestMasterSlaveIDRoundTrip(t *testing.T) {
	for _, x := range []uint32{0, 1, 42, 1<<30 - 1} {
		if got := ToSlave(ToMaster(x)); got != x {
			t.Fatalf("ToSlave(ToMaster(%d)) = %d", x, got)
		}
		master := ToMaster(x)
		if got := ToMaster(ToSlave(master)); got != master {
			t.Fatalf("ToMaster(ToSlave(%d)) = %d", master, got)
		}
	}
}

func TestIsMaster(t *testing.T) {
	if IsMaster(ToSlave(5)) {
		t.Fatal("slave id reported as master")
	}
	if !IsMaster(ToMaster(5)) {
		t.Fatal("master id not reported as master")
	}
}

// probeProcessor is a bare-bones Processor used to drive the sweep directly
// without a real pio.Endpoint.
type probeProcessor struct {
	Base
	keepAliveCalls int
	shutdownCalls  []ShutdownReason
}

func (p *probeProcessor) Start()                     {}
func (p *probeProcessor) HandlePacket(_ *pio.Packet) {}
func (p *probeProcessor) KeepAlive() {
	p.keepAliveCalls++
	p.MarkKeepaliveSent(p.Sess.Now())
}
func (p *probeProcessor) Shutdown(reason ShutdownReason) {
	p.shutdownCalls = append(p.shutdownCalls, reason)
	p.Fact.Recycle(p, reason)
}

func TestKeepaliveSweepProbeThenTimeout(t *testing.T) {
	sess := &fakeSession{now: time.Unix(0, 0)}
	f := NewFactory(sess, false, 0)
	f.NoPacketTimeout = 10 * time.Second

	peer := newFakePeer()
	proc := &probeProcessor{}
	proc.Init(sess, peer, f, ToMaster(1), "probe")
	f.mu.Lock()
	f.live[proc] = struct{}{}
	f.mu.Unlock()

	// t=11: no prior recv -> no keepalive yet since recv is zero but
	// start_time is also ~0, so this path falls into the fresh-processor
	// branch, not yet past ConnectionTimeout.
	sess.advance(11 * time.Second)
	f.sweepOnce(sess.Now())
	if proc.keepAliveCalls != 0 {
		t.Fatalf("fresh processor should not be probed before any recv, got %d calls", proc.keepAliveCalls)
	}

	// Simulate an initial packet arriving, then silence.
	proc.MarkRecv(sess.Now())

	sess.advance(11 * time.Second) // now = 22, recv = 11, delta = 11 > T1(10)
	f.sweepOnce(sess.Now())
	if proc.keepAliveCalls != 1 {
		t.Fatalf("expected one keepalive probe, got %d", proc.keepAliveCalls)
	}

	// Probe outstanding, no fresh recv -> no second probe.
	sess.advance(1 * time.Second)
	f.sweepOnce(sess.Now())
	if proc.keepAliveCalls != 1 {
		t.Fatalf("expected probe to not repeat while outstanding, got %d", proc.keepAliveCalls)
	}

	// now - recv exceeds T2 (T1+ConnectionTimeout) -> shutdown(TIMEOUT)
	sess.advance(ConnectionTimeout)
	f.sweepOnce(sess.Now())
	if len(proc.shutdownCalls) != 1 || proc.shutdownCalls[0] != ReasonTimeout {
		t.Fatalf("expected exactly one ReasonTimeout shutdown, got %+v", proc.shutdownCalls)
	}
}

func TestKeepaliveSweepConnectTimeout(t *testing.T) {
	sess := &fakeSession{now: time.Unix(0, 0)}
	f := NewFactory(sess, false, 0)

	peer := newFakePeer()
	proc := &probeProcessor{}
	proc.Init(sess, peer, f, ToMaster(1), "probe")
	f.mu.Lock()
	f.live[proc] = struct{}{}
	f.mu.Unlock()

	sess.advance(181 * time.Second)
	f.sweepOnce(sess.Now())
	if len(proc.shutdownCalls) != 0 {
		t.Fatalf("expected no shutdown before ConnectionTimeout, got %+v", proc.shutdownCalls)
	}

	sess.advance(1 * time.Second) // now = 182 == ConnectionTimeout
	f.sweepOnce(sess.Now())
	if len(proc.shutdownCalls) != 1 || proc.shutdownCalls[0] != ReasonConnTimeout {
		t.Fatalf("expected one ReasonConnTimeout shutdown, got %+v", proc.shutdownCalls)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	sess := &fakeSession{now: time.Unix(0, 0)}
	f := NewFactory(sess, false, 1)
	peer := newFakePeer()
	e := NewEcho(sess, peer, f, ToMaster(1), EchoServiceName)
	peer.AddProcessor(e)
	f.mu.Lock()
	f.live[e] = struct{}{}
	f.mu.Unlock()

	e.Shutdown(ReasonDone)
	e.Shutdown(ReasonDone)

	if f.LiveCount() != 0 {
		t.Fatalf("expected 0 live processors after shutdown, got %d", f.LiveCount())
	}
	if len(f.RecentlyRecycled()) != 1 {
		t.Fatalf("expected exactly one recycle entry despite double Shutdown call, got %d", len(f.RecentlyRecycled()))
	}
}

func TestOrphanSweep(t *testing.T) {
	sess := &fakeSession{now: time.Unix(0, 0)}
	f := NewFactory(sess, false, 0)
	peer := newFakePeer()

	proxy := &ServiceProxy{}
	proxy.Init(sess, peer, f, ToMaster(1), ServiceProxyName)
	peer.AddProcessor(proxy)
	f.mu.Lock()
	f.live[proxy] = struct{}{}
	f.mu.Unlock()

	f.sweepOnce(sess.Now())
	if peer.table[proxy.ID()] == nil {
		t.Fatal("non-orphan proxy should not be removed")
	}

	proxy.MarkOrphan()
	f.sweepOnce(sess.Now())
	if _, stillLive := f.live[proxy]; stillLive {
		t.Fatal("orphaned proxy should have been recycled by the sweep")
	}
}

// TestServiceProxyShutdownOrphansCounterpart exercises the real path: one
// side's Shutdown must mark its counterpart orphaned, not itself, since the
// counterpart's own live entry is what the next sweep tick has to catch.
func TestServiceProxyShutdownOrphansCounterpart(t *testing.T) {
	sess := &fakeSession{now: time.Unix(0, 0)}
	f := NewFactory(sess, false, 0)
	peer := newFakePeer()

	proxy := &ServiceProxy{}
	proxy.Init(sess, peer, f, ToMaster(1), ServiceProxyName)
	stub := &ServiceStub{}
	stub.Init(sess, peer, f, ToSlave(1), ServiceStubName)
	proxy.Counterpart = stub
	stub.Counterpart = proxy

	peer.AddProcessor(proxy)
	peer.AddProcessor(stub)
	f.mu.Lock()
	f.live[proxy] = struct{}{}
	f.live[stub] = struct{}{}
	f.mu.Unlock()

	proxy.Shutdown(ReasonDone)

	if proxy.IsOrphan() {
		t.Fatal("proxy should not mark itself orphan on its own shutdown")
	}
	if !stub.IsOrphan() {
		t.Fatal("stub should be marked orphan once its counterpart proxy shuts down")
	}
}
