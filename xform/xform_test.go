package xform

import (
	"bytes"
	"crypto/aes"
	"io"
	"net"
	"testing"
)

func TestCompStreamRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := NewCompStream(a)
	cb := NewCompStream(b)

	msg := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility, " +
		"the quick brown fox jumps over the lazy dog")

	errc := make(chan error, 1)
	go func() {
		_, err := ca.Write(msg)
		errc <- err
	}()

	got := make([]byte, len(msg))
	if _, err := io.ReadFull(cb, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("round trip mismatch: got %q want %q", got, msg)
	}
}

func TestSelectCipherBlockKnownMethod(t *testing.T) {
	block, name, err := SelectCipherBlock("twofish", []byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("SelectCipherBlock: %v", err)
	}
	if name != "twofish" {
		t.Fatalf("name = %q, want twofish", name)
	}
	if block.BlockSize() != 16 {
		t.Fatalf("BlockSize = %d, want 16", block.BlockSize())
	}
}

func TestSelectCipherBlockUnknownFallsBackToAES(t *testing.T) {
	block, name, err := SelectCipherBlock("does-not-exist", []byte("pass"))
	if err != nil {
		t.Fatalf("SelectCipherBlock: %v", err)
	}
	if name != "aes-256" {
		t.Fatalf("name = %q, want aes-256", name)
	}
	if block.BlockSize() != aes.BlockSize {
		t.Fatalf("BlockSize = %d, want %d", block.BlockSize(), aes.BlockSize)
	}
}

func TestCryptStreamRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	blockA, _, err := SelectCipherBlock("aes-128", []byte("shared passphrase"))
	if err != nil {
		t.Fatalf("SelectCipherBlock a: %v", err)
	}
	blockB, _, err := SelectCipherBlock("aes-128", []byte("shared passphrase"))
	if err != nil {
		t.Fatalf("SelectCipherBlock b: %v", err)
	}

	type result struct {
		cs  *CryptStream
		err error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() {
		cs, err := NewCryptStream(a, blockA)
		resA <- result{cs, err}
	}()
	go func() {
		cs, err := NewCryptStream(b, blockB)
		resB <- result{cs, err}
	}()

	ra, rb := <-resA, <-resB
	if ra.err != nil {
		t.Fatalf("NewCryptStream a: %v", ra.err)
	}
	if rb.err != nil {
		t.Fatalf("NewCryptStream b: %v", rb.err)
	}

	msg := []byte("hello over an encrypted pipe")
	errc := make(chan error, 1)
	go func() {
		_, err := ra.cs.Write(msg)
		errc <- err
	}()

	got := make([]byte, len(msg))
	if _, err := io.ReadFull(rb.cs, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("round trip mismatch: got %q want %q", got, msg)
	}
}
