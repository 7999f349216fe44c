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

package pio

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// highWatermark is the reference implementation's evbuffer read
// high-watermark (100,000 bytes). Here it only sets MaxBodyLength; the
// endpoint's read buffer itself is not capped.
const highWatermark = 100000

// ErrorMask distinguishes which side and kind of failure reached an
// endpoint's error callback.
type ErrorMask int

const (
	ErrRead ErrorMask = 1 << iota
	ErrWrite
	ErrEOF
	ErrTimeout
	ErrOther
)

func (m ErrorMask) String() string {
	parts := make([]string, 0, 5)
	if m&ErrRead != 0 {
		parts = append(parts, "READ")
	}
	if m&ErrWrite != 0 {
		parts = append(parts, "WRITE")
	}
	if m&ErrEOF != 0 {
		parts = append(parts, "EOF")
	}
	if m&ErrTimeout != 0 {
		parts = append(parts, "TIMEOUT")
	}
	if m&ErrOther != 0 {
		parts = append(parts, "OTHER")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	s := parts[0]
	for _, p := range parts[1:] {
		s += "|" + p
	}
	return s
}

// ReadFunc is invoked once per complete packet, with header fields already
// in host order.
type ReadFunc func(p *Packet, userData interface{})

// WriteFunc is invoked after a write_packet's bytes have been handed to the
// underlying stream.
type WriteFunc func(userData interface{})

// ErrorFunc is invoked when the underlying connection fails, times out, or
// reaches EOF. The endpoint does nothing further; callers are expected to
// free the endpoint from here.
type ErrorFunc func(mask ErrorMask, err error, userData interface{})

// Endpoint is a per-connection framer: it owns a TCP socket, slices the
// byte stream into packets, and dispatches complete packets to a read
// callback. See Packet and rawHeader for the wire format.
type Endpoint struct {
	conn     net.Conn
	incoming bool

	// Session is an opaque back-reference to the owning session; the core
	// never dereferences it. PeerAddr is set for endpoints associated with
	// a known peer address.
	Session  interface{}
	PeerAddr string

	onRead    ReadFunc
	onWrite   WriteFunc
	onError   ErrorFunc
	userData  interface{}
	cbMu      sync.Mutex

	timeoutSecs int

	// handling/scheduleFree implement the reentrant-free contract: while a
	// read callback is executing, Free only requests destruction; the
	// dispatch loop performs it on the way out.
	mu           sync.Mutex
	handling     bool
	scheduleFree bool
	closed       bool

	writeMu sync.Mutex
	buf     []byte

	readDone chan struct{}
}

// NewIncoming wraps an already-accepted connection.
func NewIncoming(session interface{}, addr string, conn net.Conn) *Endpoint {
	return newEndpoint(session, addr, conn, true)
}

// NewOutgoing dials addr ("host:port") and wraps the resulting connection.
// On failure it returns a connect-error wrapped with errors.Wrap, and a nil
// endpoint.
func NewOutgoing(session interface{}, addr string) (*Endpoint, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "pio: connect")
	}
	return newEndpoint(session, addr, conn, false), nil
}

func newEndpoint(session interface{}, addr string, conn net.Conn, incoming bool) *Endpoint {
	e := &Endpoint{
		conn:     conn,
		incoming: incoming,
		Session:  session,
		PeerAddr: addr,
		readDone: make(chan struct{}),
	}
	go e.readLoop()
	return e
}

// IsIncoming reports whether this endpoint was accepted (true) or dialed
// (false).
func (e *Endpoint) IsIncoming() bool { return e.incoming }

// SetCallbacks installs the dispatch callbacks. All three are optional; an
// unset read callback silently leaves incoming bytes buffered (undispatched)
// until one is installed and TryRead or a subsequent read triggers dispatch.
func (e *Endpoint) SetCallbacks(onRead ReadFunc, onWrite WriteFunc, onError ErrorFunc, userData interface{}) {
	e.cbMu.Lock()
	e.onRead = onRead
	e.onWrite = onWrite
	e.onError = onError
	e.userData = userData
	e.cbMu.Unlock()
}

// SetTimeoutSecs arms both read and write inactivity timers. secs == 0
// disables them. Re-arming is atomic: the previous deadline is cleared
// before the new one takes effect.
func (e *Endpoint) SetTimeoutSecs(secs int) {
	e.mu.Lock()
	e.timeoutSecs = secs
	e.mu.Unlock()
	// disable, then enable with the new value
	_ = e.conn.SetDeadline(time.Time{})
	if secs > 0 {
		_ = e.conn.SetDeadline(time.Now().Add(time.Duration(secs) * time.Second))
	}
}

func (e *Endpoint) timeoutDeadline() time.Time {
	e.mu.Lock()
	secs := e.timeoutSecs
	e.mu.Unlock()
	if secs == 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

// WritePacket converts header fields to network byte order and enqueues
// HeaderSize+len(p.Body) bytes on the outbound stream. It does not block on
// application logic; any backpressure is handled by the kernel socket
// buffer, matching the spec's "never blocks" contract at this layer.
func (e *Endpoint) WritePacket(p *Packet) error {
	if len(p.Body) > MaxBodyLength {
		return errors.Errorf("pio: body length %d exceeds maximum %d", len(p.Body), MaxBodyLength)
	}
	buf := make([]byte, EncodedLen(p))
	Encode(p, buf)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	_ = e.conn.SetWriteDeadline(e.timeoutDeadline())
	_, err := e.conn.Write(buf)
	if err != nil {
		e.reportError(e.classifyError(err, true))
		return err
	}

	e.cbMu.Lock()
	cb := e.onWrite
	ud := e.userData
	e.cbMu.Unlock()
	if cb != nil {
		cb(ud)
	}
	return nil
}

// TryRead synchronously drains any already-buffered packets through the
// dispatch path. It is used to flush data that arrived before a read
// callback was installed.
func (e *Endpoint) TryRead() {
	e.mu.Lock()
	data := len(e.buf) > 0
	e.mu.Unlock()
	if data {
		e.dispatch()
	}
}

// Free destroys the endpoint. If called from within the dispatch path
// (i.e. from a read callback), it only schedules destruction; the
// dispatcher performs the actual teardown on its way out. This is the
// central reentrancy contract of the endpoint.
func (e *Endpoint) Free() {
	e.mu.Lock()
	if e.handling {
		e.scheduleFree = true
		e.mu.Unlock()
		return
	}
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.destroy()
}

func (e *Endpoint) destroy() {
	e.cbMu.Lock()
	e.onRead = nil
	e.onWrite = nil
	e.onError = nil
	e.cbMu.Unlock()
	_ = e.conn.Close()
}

// readLoop is the endpoint's private "event loop": it pulls bytes off the
// socket and runs the dispatch algorithm whenever a full header (or more)
// is buffered. One goroutine per endpoint stands in for the reference
// implementation's single shared libevent loop (see SPEC_FULL.md §5).
func (e *Endpoint) readLoop() {
	defer close(e.readDone)
	tmp := make([]byte, 65536)
	for {
		_ = e.conn.SetReadDeadline(e.timeoutDeadline())
		n, err := e.conn.Read(tmp)
		if n > 0 {
			e.mu.Lock()
			e.buf = append(e.buf, tmp[:n]...)
			e.mu.Unlock()
			e.dispatch()
		}
		if err != nil {
			e.reportError(e.classifyError(err, false))
			return
		}
	}
}

func (e *Endpoint) classifyError(err error, isWrite bool) ErrorMask {
	mask := ErrRead
	if isWrite {
		mask = ErrWrite
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return mask | ErrTimeout
	}
	if err == io.EOF {
		return mask | ErrEOF
	}
	return mask | ErrOther
}

func (e *Endpoint) reportError(mask ErrorMask) {
	e.cbMu.Lock()
	cb := e.onError
	ud := e.userData
	e.cbMu.Unlock()
	if cb != nil {
		cb(mask, fmt.Errorf("pio: stream error (%s)", mask), ud)
	}
}

// dispatch implements the central read-dispatch algorithm: peel complete
// packets off the front of the buffer and hand each to the read callback,
// honoring the handling/scheduleFree reentrancy contract.
func (e *Endpoint) dispatch() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.handling = true
	e.mu.Unlock()

	e.cbMu.Lock()
	onRead := e.onRead
	ud := e.userData
	e.cbMu.Unlock()

	if onRead == nil {
		e.mu.Lock()
		e.handling = false
		e.mu.Unlock()
		return
	}

	for {
		e.mu.Lock()
		if len(e.buf) < HeaderSize {
			e.mu.Unlock()
			break
		}
		hdr := decodeHeader(e.buf)
		length := int(hdr.length())
		if len(e.buf)-HeaderSize < length {
			e.mu.Unlock()
			break
		}
		total := HeaderSize + length
		body := make([]byte, length)
		copy(body, e.buf[HeaderSize:total])
		p := &Packet{Version: e.buf[0], Type: e.buf[1], ID: hdr.id(), Body: body}
		e.mu.Unlock()

		onRead(p, ud)

		e.mu.Lock()
		if e.scheduleFree {
			e.scheduleFree = false
			e.handling = false
			e.closed = true
			e.mu.Unlock()
			e.destroy()
			return
		}
		// drain HeaderSize+length bytes from the front
		if total < len(e.buf) {
			e.buf = append(e.buf[:0], e.buf[total:]...)
		} else {
			e.buf = e.buf[:0]
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.handling = false
	e.mu.Unlock()
}
