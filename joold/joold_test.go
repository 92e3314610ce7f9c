package joold_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/nat64lab/bib"
	"github.com/nat64lab/bib/joold"
)

func sampleSnapshot() bib.SessionSnapshot {
	return bib.SessionSnapshot{
		Src6:       bib.TransportAddr{Addr: netip.MustParseAddr("2001:db8::1"), Port: 1111},
		Src4:       bib.TransportAddr{Addr: netip.MustParseAddr("203.0.113.1"), Port: 2222},
		Dst6:       bib.TransportAddr{Addr: netip.MustParseAddr("64:ff9b::c000:201"), Port: 80},
		Dst4:       bib.TransportAddr{Addr: netip.MustParseAddr("192.0.2.1"), Port: 80},
		Proto:      bib.ProtoTCP,
		IsStatic:   false,
		State:      bib.StateEstablished,
		UpdateTime: time.Unix(1_700_000_000, 123_000).UTC(),
		Expirer:    bib.TimerEst,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := []bib.SessionSnapshot{sampleSnapshot()}
	frame, rest := joold.Encode(want)
	if len(rest) != 0 {
		t.Fatalf("Encode left %d snapshots unframed for a single record", len(rest))
	}

	got, err := joold.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Decode returned %d records, want 1", len(got))
	}

	gotSnap, wantSnap := got[0], want[0]
	if gotSnap.Src6 != wantSnap.Src6 || gotSnap.Src4 != wantSnap.Src4 ||
		gotSnap.Dst6 != wantSnap.Dst6 || gotSnap.Dst4 != wantSnap.Dst4 ||
		gotSnap.Proto != wantSnap.Proto || gotSnap.State != wantSnap.State ||
		gotSnap.Expirer != wantSnap.Expirer || gotSnap.IsStatic != wantSnap.IsStatic ||
		!gotSnap.UpdateTime.Equal(wantSnap.UpdateTime) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gotSnap, wantSnap)
	}
}

func TestEncodeSplitsAcrossFrames(t *testing.T) {
	var snaps []bib.SessionSnapshot
	for i := 0; i < 30; i++ {
		snaps = append(snaps, sampleSnapshot())
	}

	frame, rest := joold.Encode(snaps)
	if len(rest) == 0 {
		t.Fatalf("Encode should not fit 30 records in one %d-byte frame budget", joold.FrameBudget)
	}
	if len(frame) > joold.FrameBudget {
		t.Fatalf("frame size %d exceeds FrameBudget %d", len(frame), joold.FrameBudget)
	}

	var total int
	for len(snaps) > 0 {
		f, r := joold.Encode(snaps)
		decoded, err := joold.Decode(f)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		total += len(decoded)
		snaps = r
	}
	if total != 30 {
		t.Fatalf("decoded %d total records across frames, want 30", total)
	}
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	if _, err := joold.Decode([]byte{0}); err == nil {
		t.Fatalf("Decode should reject a frame shorter than the length prefix")
	}
	if _, err := joold.Decode([]byte{0, 1}); err == nil {
		t.Fatalf("Decode should reject a frame declaring more records than it carries")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	cfg := bib.DefaultConfig()
	cfg.Pool6 = bib.Pool6Prefix{Prefix: netip.MustParsePrefix("64:ff9b::/96")}
	src := bib.New(cfg, nil, nil, bib.Hooks{})
	dst := bib.New(cfg, nil, nil, bib.Hooks{})

	src6 := bib.TransportAddr{Addr: netip.MustParseAddr("2001:db8::5"), Port: 1}
	src4 := bib.TransportAddr{Addr: netip.MustParseAddr("203.0.113.5"), Port: 1}
	if err := src.AddStatic(bib.ProtoUDP, src6, src4); err != nil {
		t.Fatalf("AddStatic: %v", err)
	}

	dst6 := bib.TransportAddr{Addr: netip.MustParseAddr("64:ff9b::c000:205"), Port: 53}
	dst4 := bib.TransportAddr{Addr: netip.MustParseAddr("192.0.2.5"), Port: 53}
	if _, err := src.Add6(bib.Tuple6{Src6: src6, Dst6: dst6, Proto: bib.ProtoUDP}, nil, dst4, time.Now()); err != nil {
		t.Fatalf("Add6 against an already-static entry shouldn't need a mask domain: %v", err)
	}

	if err := dst.AddStatic(bib.ProtoUDP, src6, src4); err != nil {
		t.Fatalf("AddStatic on destination: %v", err)
	}

	exp := joold.NewExporter(src)
	imp := joold.NewImporter(dst)

	frames := exp.Frames()
	for _, f := range frames {
		if err := imp.Apply(f); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if got, want := dst.Counters().Sessions[bib.ProtoUDP], src.Counters().Sessions[bib.ProtoUDP]; got != want || got == 0 {
		t.Fatalf("destination session count = %d, want %d (and > 0)", got, want)
	}

	snap, err := dst.Find(bib.ProtoUDP, src6, dst6)
	if err != nil {
		t.Fatalf("imported session not found on destination: %v", err)
	}
	if snap.Dst4 != dst4 {
		t.Fatalf("imported session Dst4 = %v, want %v", snap.Dst4, dst4)
	}
}
