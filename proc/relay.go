package proc

import (
	"sync/atomic"

	"github.com/ccnet-go/ccnet/pio"
)

// Service names for the relayed-conversation pair (grounded on the
// original's service-proxy-proc / service-stub-proc registrations).
const (
	ServiceProxyName = "service-proxy"
	ServiceStubName  = "service-stub"
)

// orphanFlag is embedded by both halves of a relayed conversation. A
// processor's counterpart calls MarkOrphan on it when that counterpart is
// torn down; the factory's sweep reads it back through Orphaner.
type orphanFlag struct {
	orphan int32
}

func (o *orphanFlag) MarkOrphan()    { atomic.StoreInt32(&o.orphan, 1) }
func (o *orphanFlag) IsOrphan() bool { return atomic.LoadInt32(&o.orphan) != 0 }

// orphanMarker is the write side of orphanFlag: a processor's counterpart
// uses it to flag this processor orphaned on its own shutdown.
type orphanMarker interface {
	MarkOrphan()
}

// ServiceProxy is the initiating half of a relayed conversation: it
// forwards frames addressed to it onward to its counterpart stub on
// another peer (the relay logic itself lives outside the core; this type
// only carries the bookkeeping the factory's sweep needs). Counterpart is
// set by whatever wires the proxy/stub pair together; on Shutdown, the
// proxy marks its counterpart orphaned rather than itself, since it is the
// counterpart's own next sweep tick that must observe the flag.
type ServiceProxy struct {
	Base
	orphanFlag
	Forward     func(p *pio.Packet)
	Counterpart Processor
}

// NewServiceProxy is a Constructor for the service-proxy service.
func NewServiceProxy(sess Session, peer Peer, factory *Factory, id uint32, service string) Processor {
	p := &ServiceProxy{}
	p.Init(sess, peer, factory, id, service)
	return p
}

func (p *ServiceProxy) Kind() Kind { return KindServiceProxy }
func (p *ServiceProxy) Start()     {}

func (p *ServiceProxy) HandlePacket(pkt *pio.Packet) {
	p.MarkRecv(p.Sess.Now())
	if p.Forward != nil {
		p.Forward(pkt)
	}
}

func (p *ServiceProxy) KeepAlive() {
	p.MarkKeepaliveSent(p.Sess.Now())
	_ = p.PeerRef.Endpoint().WritePacket(&pio.Packet{Version: 1, Type: StatusProcKeepAlive, ID: p.ID()})
}

func (p *ServiceProxy) Shutdown(reason ShutdownReason) {
	p.ShutdownOnce.Do(func() {
		if o, ok := p.Counterpart.(orphanMarker); ok {
			o.MarkOrphan()
		}
		p.PeerRef.RemoveProcessor(p.ID())
		p.Fact.Recycle(p, reason)
	})
}

// ServiceStub is the responding half of a relayed conversation. Counterpart
// mirrors ServiceProxy's field: the stub marks its proxy orphaned on
// shutdown, not itself.
type ServiceStub struct {
	Base
	orphanFlag
	Forward     func(p *pio.Packet)
	Counterpart Processor
}

// NewServiceStub is a Constructor for the service-stub service.
func NewServiceStub(sess Session, peer Peer, factory *Factory, id uint32, service string) Processor {
	s := &ServiceStub{}
	s.Init(sess, peer, factory, id, service)
	return s
}

func (s *ServiceStub) Kind() Kind { return KindServiceStub }
func (s *ServiceStub) Start()     {}

func (s *ServiceStub) HandlePacket(pkt *pio.Packet) {
	s.MarkRecv(s.Sess.Now())
	if s.Forward != nil {
		s.Forward(pkt)
	}
}

func (s *ServiceStub) KeepAlive() {
	s.MarkKeepaliveSent(s.Sess.Now())
	_ = s.PeerRef.Endpoint().WritePacket(&pio.Packet{Version: 1, Type: StatusProcKeepAlive, ID: s.ID()})
}

func (s *ServiceStub) Shutdown(reason ShutdownReason) {
	s.ShutdownOnce.Do(func() {
		if o, ok := s.Counterpart.(orphanMarker); ok {
			o.MarkOrphan()
		}
		s.PeerRef.RemoveProcessor(s.ID())
		s.Fact.Recycle(s, reason)
	})
}
