// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"log"

	"github.com/ccnet-go/ccnet/peer"
	"github.com/ccnet-go/ccnet/pio"
	"github.com/ccnet-go/ccnet/proc"
)

// router wires a peer.Entry's endpoint callbacks to the conversation table
// and factory: it is the "peer directory contract" consumer the core
// describes but leaves external (spec.md §6).
type router struct {
	factory *proc.Factory
	entry   *peer.Entry
}

func newRouter(factory *proc.Factory, entry *peer.Entry) *router {
	return &router{factory: factory, entry: entry}
}

// onRead demultiplexes one frame: a StatusConversationInit frame creates a
// new slave processor (body carries the service name); any other frame is
// routed by id to an already-live processor, or dropped if none is
// registered (a stray frame for a torn-down conversation).
func (r *router) onRead(p *pio.Packet, _ interface{}) {
	if p.Type == proc.StatusConversationInit {
		serviceName := string(p.Body)
		handler := r.factory.CreateSlave(serviceName, r.entry, p.ID)
		if handler == nil {
			log.Printf("ccnetd: unknown service %q requested by %s", serviceName, r.entry.Name())
			return
		}
		handler.Start()
		return
	}

	target := r.entry.Lookup(p.ID)
	if target == nil {
		log.Printf("ccnetd: frame for unknown conversation %d from %s", p.ID, r.entry.Name())
		return
	}
	target.HandlePacket(p)
}

func (r *router) onError(mask pio.ErrorMask, err error, _ interface{}) {
	log.Printf("ccnetd: endpoint %s error: %s (%v)", r.entry.Name(), mask, err)
	r.factory.ShutdownForPeer(r.entry)
	r.entry.Endpoint().Free()
}

// attach installs the router's callbacks on entry's endpoint and flushes
// any bytes that arrived before they were installed.
func (r *router) attach() {
	r.entry.Endpoint().SetCallbacks(r.onRead, nil, r.onError, nil)
	r.entry.Endpoint().TryRead()
}
