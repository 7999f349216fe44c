package main

import (
	"net"
	"testing"
	"time"

	"github.com/ccnet-go/ccnet/peer"
	"github.com/ccnet-go/ccnet/pio"
	"github.com/ccnet-go/ccnet/proc"
	"github.com/ccnet-go/ccnet/session"
)

// TestRouterEchoRoundTrip exercises the full path a real connection takes:
// accept -> endpoint -> router -> factory.CreateSlave -> Echo.HandlePacket
// -> WritePacket back to the peer, over a synchronous net.Pipe standing in
// for a TCP socket.
func TestRouterEchoRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sess := session.New(false)
	factory := proc.NewFactory(sess, false, 0)
	factory.Register(proc.EchoServiceName, proc.NewEcho)

	serverEP := pio.NewIncoming(nil, "client", serverConn)
	entry := peer.NewEntry("client", serverEP, false)
	r := newRouter(factory, entry)
	r.attach()

	clientEP := pio.NewIncoming(nil, "server", clientConn)
	replies := make(chan *pio.Packet, 2)
	clientEP.SetCallbacks(func(p *pio.Packet, _ interface{}) {
		replies <- p
	}, nil, nil, nil)

	convID := proc.ToSlave(1)
	if err := clientEP.WritePacket(&pio.Packet{Version: 1, Type: proc.StatusConversationInit, ID: convID, Body: []byte(proc.EchoServiceName)}); err != nil {
		t.Fatalf("WritePacket(init): %v", err)
	}
	if err := clientEP.WritePacket(&pio.Packet{Version: 1, Type: 0, ID: convID, Body: []byte("hello echo")}); err != nil {
		t.Fatalf("WritePacket(data): %v", err)
	}

	select {
	case reply := <-replies:
		if string(reply.Body) != "hello echo" {
			t.Fatalf("echoed body = %q, want %q", reply.Body, "hello echo")
		}
		if reply.ID != convID {
			t.Fatalf("echoed id = %d, want %d", reply.ID, convID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo reply")
	}

	if factory.LiveCount() != 1 {
		t.Fatalf("LiveCount() = %d, want 1", factory.LiveCount())
	}
}
