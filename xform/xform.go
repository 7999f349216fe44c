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

// Package xform provides the optional stream transforms a pio.Endpoint's
// underlying net.Conn can be wrapped in before packets are framed: snappy
// compression and a PBKDF2-keyed block cipher in CTR mode, both in the
// teacher's net.Conn-wrapping style (std/comp.go's CompStream, std/crypt.go's
// cipher lookup table).
package xform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"net"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
	"golang.org/x/crypto/tea"
	"golang.org/x/crypto/twofish"
	"golang.org/x/crypto/xtea"
)

// CompStream compresses/decompresses data flowing over conn using snappy.
// Grounded on std/comp.go's CompStream, unchanged in shape.
type CompStream struct {
	conn net.Conn
	w    *snappy.Writer
	r    *snappy.Reader
}

// NewCompStream wraps conn with snappy framing in both directions.
func NewCompStream(conn net.Conn) *CompStream {
	return &CompStream{
		conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (c *CompStream) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *CompStream) Write(p []byte) (int, error) {
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(p), nil
}

func (c *CompStream) Close() error                       { return c.conn.Close() }
func (c *CompStream) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *CompStream) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *CompStream) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *CompStream) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *CompStream) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// cipherMethod maps a human-readable cipher name to the key size PBKDF2
// should derive and the constructor for a cipher.Block. Mirrors std/crypt.go's
// cryptMethods lookup table, rebuilt against stdlib/x-crypto block ciphers
// instead of kcp.BlockCrypt (the core here frames its own packets; it has no
// use for kcp's FEC-aware BlockCrypt contract).
type cipherMethod struct {
	keySize int
	build   func(key []byte) (cipher.Block, error)
}

var cipherMethods = map[string]cipherMethod{
	"aes-128":  {16, aes.NewCipher},
	"aes-192":  {24, aes.NewCipher},
	"aes-256":  {32, aes.NewCipher},
	"des":      {8, des.NewCipher},
	"3des":     {24, des.NewTripleDESCipher},
	"blowfish": {0, func(key []byte) (cipher.Block, error) { return blowfish.NewCipher(key) }},
	"twofish":  {16, func(key []byte) (cipher.Block, error) { return twofish.NewCipher(key) }},
	"tea":      {16, func(key []byte) (cipher.Block, error) { return tea.NewCipher(key) }},
	"xtea":     {16, func(key []byte) (cipher.Block, error) { return xtea.NewCipher(key) }},
}

// DeriveKey stretches pass into a key of length keyLen using PBKDF2-HMAC-SHA3-256,
// salted with salt (both sides of a conversation must agree on salt out of band;
// the demo CLI uses a fixed application salt, matching the teacher's SALT const).
func DeriveKey(pass, salt []byte, keyLen int) []byte {
	return pbkdf2.Key(pass, salt, 4096, keyLen, sha3.New256)
}

// SelectCipherBlock translates method + pass into a cipher.Block, applying
// the same fallback-to-AES behavior as std/crypt.go's SelectBlockCrypt when
// the method name is unrecognized.
func SelectCipherBlock(method string, pass []byte) (cipher.Block, string, error) {
	m, ok := cipherMethods[method]
	if !ok {
		block, err := aes.NewCipher(DeriveKey(pass, defaultSalt, 32))
		return block, "aes-256", errors.WithStack(err)
	}
	keyLen := m.keySize
	if keyLen == 0 {
		keyLen = len(pass)
		if keyLen > 56 {
			keyLen = 56 // blowfish's maximum key size
		}
	}
	key := DeriveKey(pass, defaultSalt, keyLen)
	block, err := m.build(key)
	if err != nil {
		fallback, ferr := aes.NewCipher(DeriveKey(pass, defaultSalt, 32))
		if ferr != nil {
			return fallback, "aes-256", errors.WithStack(ferr)
		}
		return fallback, "aes-256", errors.Errorf("xform: %s cipher unavailable (%v), fell back to aes-256", method, err)
	}
	return block, method, nil
}

// defaultSalt is the application-wide PBKDF2 salt; both ends of a
// conversation must compile against the same value to interoperate.
var defaultSalt = []byte("ccnet-xform-salt-v1")

// CryptStream is a net.Conn wrapper that encrypts writes and decrypts reads
// with a block cipher in CTR mode, each direction keyed with its own random
// IV sent as a plaintext prefix when NewCryptStream sets the stream up (grounded on std/crypt.go's
// cipher selection, recast as a stream wrapper the way CompStream wraps
// snappy rather than kcp's packet-level BlockCrypt.Encrypt/Decrypt).
type CryptStream struct {
	conn net.Conn
	enc  cipher.Stream
	dec  cipher.Stream
}

// NewCryptStream negotiates a fresh IV for the write direction (sent as a
// plaintext prefix) and reads the peer's IV for the read direction.
func NewCryptStream(conn net.Conn, block cipher.Block) (*CryptStream, error) {
	blockSize := block.BlockSize()
	writeIV := make([]byte, blockSize)
	if _, err := rand.Read(writeIV); err != nil {
		return nil, errors.WithStack(err)
	}
	writeErr := make(chan error, 1)
	go func() {
		_, err := conn.Write(writeIV)
		writeErr <- err
	}()

	readIV := make([]byte, blockSize)
	if _, err := readFull(conn, readIV); err != nil {
		return nil, errors.Wrap(err, "xform: reading peer IV")
	}
	if err := <-writeErr; err != nil {
		return nil, errors.Wrap(err, "xform: writing IV")
	}

	return &CryptStream{
		conn: conn,
		enc:  cipher.NewCTR(block, writeIV),
		dec:  cipher.NewCTR(block, readIV),
	}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *CryptStream) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if n > 0 {
		c.dec.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

func (c *CryptStream) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	c.enc.XORKeyStream(out, p)
	n, err := c.conn.Write(out)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return len(p), nil
}

func (c *CryptStream) Close() error                       { return c.conn.Close() }
func (c *CryptStream) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *CryptStream) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *CryptStream) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *CryptStream) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *CryptStream) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
