package proc

import (
	"sync"
	"time"

	"github.com/ccnet-go/ccnet/pio"
)

// ShutdownReason is the closed set of reasons a processor can be torn down.
type ShutdownReason int

const (
	ReasonNotSet ShutdownReason = iota
	ReasonDone
	ReasonNetDown
	ReasonTimeout
	ReasonConnTimeout
	ReasonRemote
	ReasonBadPacket
)

func (r ShutdownReason) String() string {
	switch r {
	case ReasonDone:
		return "DONE"
	case ReasonNetDown:
		return "NETDOWN"
	case ReasonTimeout:
		return "TIMEOUT"
	case ReasonConnTimeout:
		return "CON_TIMEOUT"
	case ReasonRemote:
		return "REMOTE"
	case ReasonBadPacket:
		return "BAD_PACKET"
	default:
		return "NOTSET"
	}
}

// Keepalive sub-protocol status codes, carried in Packet.Type on the wire.
const (
	// StatusConversationInit marks the first frame of a new conversation:
	// its body is the service name, and its id (already in slave space)
	// names the conversation the peer's create_slave call should attach
	// to. Consumed by the CLI entrypoint's router, not by the core.
	StatusConversationInit byte = 99
	StatusProcKeepAlive    byte = 100 // "processor keep alive"
	StatusProcAlive        byte = 101 // "processor is alive"
	StatusProcDead         byte = 102 // "processor is dead"
)

// Kind tags a processor with the role the factory's keepalive sweep needs
// to know about. Most processors are KindNormal.
type Kind int

const (
	KindNormal Kind = iota
	KindKeepalive
	KindServiceProxy
	KindServiceStub
)

// Session is the subset of the session contract the core needs: a
// monotonic wall clock. The real session (out of core scope) also carries
// a database handle and an is-server flag; neither is used here.
type Session interface {
	Now() time.Time
}

// Peer is the subset of the peer directory contract the core needs.
type Peer interface {
	IsLocal() bool
	RedirectTo() Peer
	NextRequestID() uint32
	AddProcessor(p Processor)
	RemoveProcessor(id uint32)
	// Processors returns a snapshot of the peer's conversation table, used
	// by Factory.ShutdownForPeer.
	Processors() []Processor
	// Endpoint returns the packet I/O endpoint processors use to write to
	// this peer.
	Endpoint() *pio.Endpoint
}

// Processor is the abstract conversation handler the factory creates,
// tracks, keepalives, and reaps.
type Processor interface {
	ID() uint32
	ServiceName() string
	Kind() Kind
	Peer() Peer

	StartTime() time.Time
	LastRecv() time.Time
	LastKeepaliveSent() time.Time

	// Start is the initial entry point when the factory creates a master
	// instance. The factory never calls it itself (see Factory.CreateMaster);
	// the caller invokes it once it has installed any per-conversation state.
	Start()
	// HandlePacket is invoked when a frame addressed to this processor's id
	// arrives. Implementations must call Base.MarkRecv(now).
	HandlePacket(p *pio.Packet)
	// KeepAlive sends a status-100 probe and must call Base.MarkKeepaliveSent(now).
	KeepAlive()
	// Shutdown is idempotent.
	Shutdown(reason ShutdownReason)
}

// Orphaner is implemented by service-proxy/service-stub processors: it
// reports whether the conversation's counterpart has already been torn
// down.
type Orphaner interface {
	IsOrphan() bool
}

// Base provides the bookkeeping every concrete Processor embeds: identity,
// timestamps, and idempotent-shutdown plumbing. It does not implement
// Processor by itself (Start/HandlePacket/KeepAlive/Shutdown are left to
// the embedding type), but satisfies the timestamp/identity methods.
type Base struct {
	id      uint32
	service string

	Sess    Session
	PeerRef Peer
	Fact    *Factory

	startTime          time.Time
	tPacketRecv        time.Time
	tKeepaliveSent     time.Time
	timeMu             sync.Mutex
	ShutdownOnce       sync.Once
}

// Init sets up the identity + start-time fields. Factories call this from
// their constructors; it does not call Start.
func (b *Base) Init(sess Session, peer Peer, factory *Factory, id uint32, service string) {
	b.Sess = sess
	b.PeerRef = peer
	b.Fact = factory
	b.id = id
	b.service = service
	b.startTime = sess.Now()
}

func (b *Base) ID() uint32           { return b.id }
func (b *Base) ServiceName() string  { return b.service }
func (b *Base) Kind() Kind           { return KindNormal }
func (b *Base) StartTime() time.Time { return b.startTime }
func (b *Base) Peer() Peer           { return b.PeerRef }

func (b *Base) LastRecv() time.Time {
	b.timeMu.Lock()
	defer b.timeMu.Unlock()
	return b.tPacketRecv
}

func (b *Base) LastKeepaliveSent() time.Time {
	b.timeMu.Lock()
	defer b.timeMu.Unlock()
	return b.tKeepaliveSent
}

// MarkRecv records that a peer packet just arrived. Once set,
// tPacketRecv only moves forward.
func (b *Base) MarkRecv(now time.Time) {
	b.timeMu.Lock()
	defer b.timeMu.Unlock()
	if now.After(b.tPacketRecv) {
		b.tPacketRecv = now
	}
}

// MarkKeepaliveSent records that a local keepalive probe was just sent.
func (b *Base) MarkKeepaliveSent(now time.Time) {
	b.timeMu.Lock()
	defer b.timeMu.Unlock()
	b.tKeepaliveSent = now
}
