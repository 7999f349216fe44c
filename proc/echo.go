package proc

import "github.com/ccnet-go/ccnet/pio"

// EchoServiceName is a trivial request/response service used by tests and
// the demo CLI to exercise a full master/slave conversation end to end
// (grounded on the original's "echo" processor registration).
const EchoServiceName = "echo"

// Echo writes back whatever body it receives, unchanged.
type Echo struct {
	Base
}

// NewEcho is a Constructor for the echo service.
func NewEcho(sess Session, peer Peer, factory *Factory, id uint32, service string) Processor {
	e := &Echo{}
	e.Init(sess, peer, factory, id, service)
	return e
}

func (e *Echo) Start() {}

func (e *Echo) HandlePacket(p *pio.Packet) {
	e.MarkRecv(e.Sess.Now())
	body := make([]byte, len(p.Body))
	copy(body, p.Body)
	_ = e.PeerRef.Endpoint().WritePacket(&pio.Packet{Version: p.Version, Type: p.Type, ID: p.ID, Body: body})
}

func (e *Echo) KeepAlive() {
	e.MarkKeepaliveSent(e.Sess.Now())
	_ = e.PeerRef.Endpoint().WritePacket(&pio.Packet{Version: 1, Type: StatusProcKeepAlive, ID: e.ID()})
}

func (e *Echo) Shutdown(reason ShutdownReason) {
	e.ShutdownOnce.Do(func() {
		e.PeerRef.RemoveProcessor(e.ID())
		e.Fact.Recycle(e, reason)
	})
}
