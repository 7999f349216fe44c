package peer

import (
	"testing"
	"time"

	"github.com/ccnet-go/ccnet/pio"
	"github.com/ccnet-go/ccnet/proc"
)

func TestTablePutGetRemove(t *testing.T) {
	tbl := NewTable()
	e := NewEntry("peer-a", nil, false)
	tbl.Put(e)

	if got := tbl.Get("peer-a"); got != e {
		t.Fatalf("Get returned %v, want %v", got, e)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}

	tbl.Remove("peer-a")
	if tbl.Get("peer-a") != nil {
		t.Fatal("expected entry to be gone after Remove")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
}

func TestEntryRedirect(t *testing.T) {
	a := NewEntry("a", nil, false)
	b := NewEntry("b", nil, false)

	if a.RedirectTo() != nil {
		t.Fatal("fresh entry should have no redirect")
	}

	a.SetRedirect(b)
	if a.RedirectTo() != proc.Peer(b) {
		t.Fatal("RedirectTo should return the installed target")
	}

	a.SetRedirect(nil)
	if a.RedirectTo() != nil {
		t.Fatal("SetRedirect(nil) should clear the redirect")
	}
}

func TestEntryNextRequestIDMonotonic(t *testing.T) {
	e := NewEntry("a", nil, false)
	first := e.NextRequestID()
	second := e.NextRequestID()
	if second != first+1 {
		t.Fatalf("NextRequestID not monotonic: %d then %d", first, second)
	}
}

func TestAddRemoveProcessorLookup(t *testing.T) {
	e := NewEntry("a", nil, false)
	p := &fakeProc{id: 7}
	e.AddProcessor(p)

	if e.Lookup(7) != proc.Processor(p) {
		t.Fatal("Lookup should return the added processor")
	}
	snap := e.Processors()
	if len(snap) != 1 {
		t.Fatalf("Processors() len = %d, want 1", len(snap))
	}

	e.RemoveProcessor(7)
	if e.Lookup(7) != nil {
		t.Fatal("expected processor to be gone after RemoveProcessor")
	}
}

// fakeProc is the minimal proc.Processor needed to exercise the table; its
// behavior is irrelevant here, only its identity.
type fakeProc struct{ id uint32 }

func (f *fakeProc) ID() uint32                         { return f.id }
func (f *fakeProc) ServiceName() string                { return "fake" }
func (f *fakeProc) Kind() proc.Kind                    { return proc.KindNormal }
func (f *fakeProc) Peer() proc.Peer                    { return nil }
func (f *fakeProc) StartTime() time.Time               { return time.Time{} }
func (f *fakeProc) LastRecv() time.Time                { return time.Time{} }
func (f *fakeProc) LastKeepaliveSent() time.Time       { return time.Time{} }
func (f *fakeProc) Start()                             {}
func (f *fakeProc) HandlePacket(p *pio.Packet)         {}
func (f *fakeProc) KeepAlive()                         {}
func (f *fakeProc) Shutdown(reason proc.ShutdownReason) {}
