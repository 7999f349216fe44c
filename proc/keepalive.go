package proc

import (
	"sync"

	"github.com/ccnet-go/ccnet/pio"
)

// KeepaliveServiceName is the service name the distinguished keepalive
// handler registers under (ccnet's "keepalive2" processor).
const KeepaliveServiceName = "keepalive"

// Keepalive is the distinguished conversation that drives liveness at the
// peer scope: the factory's sweep skips it (it is not subject to the
// per-processor keepalive algorithm) because it IS the keepalive protocol.
type Keepalive struct {
	Base
	mu    sync.Mutex
	alive bool
}

// NewKeepalive is a Constructor for the keepalive service.
func NewKeepalive(sess Session, peer Peer, factory *Factory, id uint32, service string) Processor {
	k := &Keepalive{}
	k.Init(sess, peer, factory, id, service)
	return k
}

func (k *Keepalive) Kind() Kind { return KindKeepalive }

func (k *Keepalive) Start() {}

func (k *Keepalive) HandlePacket(p *pio.Packet) {
	k.MarkRecv(k.Sess.Now())
	switch p.Type {
	case StatusProcKeepAlive:
		_ = k.PeerRef.Endpoint().WritePacket(&pio.Packet{
			Version: p.Version, Type: StatusProcAlive, ID: p.ID,
		})
	case StatusProcAlive:
		k.mu.Lock()
		k.alive = true
		k.mu.Unlock()
	}
}

func (k *Keepalive) KeepAlive() {
	k.MarkKeepaliveSent(k.Sess.Now())
	_ = k.PeerRef.Endpoint().WritePacket(&pio.Packet{
		Version: 1, Type: StatusProcKeepAlive, ID: k.ID(),
	})
}

func (k *Keepalive) Shutdown(reason ShutdownReason) {
	k.ShutdownOnce.Do(func() {
		k.PeerRef.RemoveProcessor(k.ID())
		k.Fact.Recycle(k, reason)
	})
}
