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

// Package pio implements the length-prefixed framing layer that carries
// multiplexed conversations between peers over a single TCP connection.
package pio

import (
	"encoding/binary"
	"fmt"
)

const (
	sizeOfVersion = 1
	sizeOfType    = 1
	sizeOfLength  = 2
	sizeOfID      = 4
	// HeaderSize is the fixed size, in bytes, of a packet header.
	HeaderSize = sizeOfVersion + sizeOfType + sizeOfLength + sizeOfID

	// MaxBodyLength bounds a single packet body so it always fits under the
	// endpoint's read high-watermark (see Endpoint).
	MaxBodyLength = highWatermark - HeaderSize
)

// Packet is one length-prefixed message on the wire. Header fields are
// always host-order once they reach user code; the wire encodes them
// big-endian (see Encode/decodeHeader).
type Packet struct {
	Version byte
	Type    byte
	ID      uint32
	Body    []byte
}

// rawHeader is the on-the-wire byte layout of a packet header:
// version(1) type(1) length(2 BE) id(4 BE).
type rawHeader [HeaderSize]byte

func (h *rawHeader) length() uint16 {
	return binary.BigEndian.Uint16(h[2:4])
}

func (h *rawHeader) id() uint32 {
	return binary.BigEndian.Uint32(h[4:8])
}

func (h *rawHeader) String() string {
	return fmt.Sprintf("version:%d type:%d length:%d id:%d", h[0], h[1], h.length(), h.id())
}

// Encode writes the wire representation of p (header + body) into buf,
// which must have length >= HeaderSize+len(p.Body). It returns the number
// of bytes written. Header fields are converted to network byte order;
// Packet itself is left untouched.
func Encode(p *Packet, buf []byte) int {
	buf[0] = p.Version
	buf[1] = p.Type
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(p.Body)))
	binary.BigEndian.PutUint32(buf[4:8], p.ID)
	copy(buf[HeaderSize:], p.Body)
	return HeaderSize + len(p.Body)
}

// EncodedLen returns the number of bytes p occupies on the wire.
func EncodedLen(p *Packet) int {
	return HeaderSize + len(p.Body)
}

// decodeHeader copies the raw header off the front of buf; its length and
// id accessors convert those fields to host order.
func decodeHeader(buf []byte) rawHeader {
	var h rawHeader
	copy(h[:], buf[:HeaderSize])
	return h
}
