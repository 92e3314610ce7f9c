package queue

import (
	"net/netip"
	"testing"
	"time"
)

func addrPort(s string, port uint16) AddrPort {
	return AddrPort{Addr: netip.MustParseAddr(s), Port: port}
}

func TestQueueAddCapacity(t *testing.T) {
	q := New(2)
	if !q.Add(&Entry{Src4: addrPort("10.0.0.1", 1)}) {
		t.Fatalf("first Add should succeed")
	}
	if !q.Add(&Entry{Src4: addrPort("10.0.0.2", 2)}) {
		t.Fatalf("second Add should succeed")
	}
	if q.Add(&Entry{Src4: addrPort("10.0.0.3", 3)}) {
		t.Fatalf("Add beyond capacity should fail")
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestQueueFindMatchesDst6AndMask(t *testing.T) {
	q := New(4)
	dst6 := addrPort("2001:db8::1", 40000)
	entry := &Entry{Dst6: dst6, Src4: addrPort("203.0.113.7", 1234), Dst4: addrPort("192.0.2.1", 1000)}
	q.Add(entry)

	if _, found := q.Find(dst6, func(dst4 AddrPort) bool { return dst4.Addr.String() == "203.0.113.1" }); found {
		t.Fatalf("Find should not match a dst4 outside the mask")
	}

	got, found := q.Find(dst6, func(dst4 AddrPort) bool { return dst4.Addr.String() == "192.0.2.1" })
	if !found || got != entry {
		t.Fatalf("Find should return the stored entry on a mask match")
	}
	if q.Len() != 0 {
		t.Fatalf("Find should remove the matched entry, Len() = %d", q.Len())
	}
}

func TestQueueRm(t *testing.T) {
	q := New(4)
	src4 := addrPort("192.0.2.5", 2000)
	q.Add(&Entry{Dst4: src4})

	if !q.Rm(src4) {
		t.Fatalf("Rm should find the entry stored under src4")
	}
	if q.Rm(src4) {
		t.Fatalf("Rm should return false once the entry is gone")
	}
}

func TestQueuePrepareCleanPartitionsByAge(t *testing.T) {
	q := New(4)
	now := time.Now()
	q.Add(&Entry{Src4: addrPort("192.0.2.1", 1), StoredAt: now.Add(-10 * time.Second)})
	q.Add(&Entry{Src4: addrPort("192.0.2.2", 2), StoredAt: now})

	timedOut := q.PrepareClean(now, 6*time.Second, nil)
	if len(timedOut) != 1 || timedOut[0].Src4.Port != 1 {
		t.Fatalf("PrepareClean returned %v, want the one stale entry", timedOut)
	}
	if q.Len() != 1 {
		t.Fatalf("PrepareClean should leave the fresh entry queued, Len() = %d", q.Len())
	}
}
