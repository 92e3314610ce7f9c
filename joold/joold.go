// Package joold implements the cross-host session-sync wire format:
// exporting live sessions as a framed sequence of fixed-size records,
// and importing a received frame back into a Database via ImportSession,
// which applies each record under the FateTimerSlow path so an arbitrary
// synced update_time still lands in its timer list's correct sorted
// position.
package joold

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/nat64lab/bib"
)

const (
	// FrameBudget is the target wire size for one export frame, tuned to
	// fit inside one typical path MTU.
	FrameBudget = 1452

	recordSize         = 60
	maxRecordsPerFrame = FrameBudget / recordSize
)

// Encode serializes the leading run of snaps (up to one frame's worth)
// into a frame: a 2-byte record count followed by fixed-size records. It
// returns the snapshots that didn't fit, for the caller's next frame.
func Encode(snaps []bib.SessionSnapshot) (frame []byte, rest []bib.SessionSnapshot) {
	n := len(snaps)
	if n > maxRecordsPerFrame {
		n = maxRecordsPerFrame
	}

	frame = make([]byte, 2+n*recordSize)
	binary.BigEndian.PutUint16(frame[0:2], uint16(n))
	for i := 0; i < n; i++ {
		encodeRecord(frame[2+i*recordSize:2+(i+1)*recordSize], snaps[i])
	}
	return frame, snaps[n:]
}

// Decode parses one frame produced by Encode.
func Decode(frame []byte) ([]bib.SessionSnapshot, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("joold: frame too short (%d bytes)", len(frame))
	}
	n := int(binary.BigEndian.Uint16(frame[0:2]))
	want := 2 + n*recordSize
	if len(frame) < want {
		return nil, fmt.Errorf("joold: frame declares %d records but is only %d bytes", n, len(frame))
	}

	snaps := make([]bib.SessionSnapshot, n)
	for i := range snaps {
		snaps[i] = decodeRecord(frame[2+i*recordSize : 2+(i+1)*recordSize])
	}
	return snaps, nil
}

// record layout (60 bytes, all integers big-endian):
//
//	[0:18]  src6  (16-byte addr, 2-byte port)
//	[18:24] src4  (4-byte addr, 2-byte port)
//	[24:42] dst6  (16-byte addr, 2-byte port)
//	[42:48] dst4  (4-byte addr, 2-byte port)
//	[48]    proto
//	[49]    tcp state
//	[50]    expirer (timer kind)
//	[51]    is_static (0 or 1)
//	[52:60] update_time, unix nanoseconds
func encodeRecord(b []byte, s bib.SessionSnapshot) {
	putV6(b[0:18], s.Src6)
	putV4(b[18:24], s.Src4)
	putV6(b[24:42], s.Dst6)
	putV4(b[42:48], s.Dst4)
	b[48] = byte(s.Proto)
	b[49] = byte(s.State)
	b[50] = byte(s.Expirer)
	if s.IsStatic {
		b[51] = 1
	}
	binary.BigEndian.PutUint64(b[52:60], uint64(s.UpdateTime.UnixNano()))
}

func decodeRecord(b []byte) bib.SessionSnapshot {
	return bib.SessionSnapshot{
		Src6:       getV6(b[0:18]),
		Src4:       getV4(b[18:24]),
		Dst6:       getV6(b[24:42]),
		Dst4:       getV4(b[42:48]),
		Proto:      bib.Protocol(b[48]),
		State:      bib.TCPState(b[49]),
		Expirer:    bib.TimerKind(b[50]),
		IsStatic:   b[51] != 0,
		UpdateTime: time.Unix(0, int64(binary.BigEndian.Uint64(b[52:60]))).UTC(),
	}
}

func putV6(b []byte, t bib.TransportAddr) {
	a := t.Addr
	if !a.IsValid() {
		a = netip.IPv6Unspecified()
	}
	a16 := a.As16()
	copy(b[0:16], a16[:])
	binary.BigEndian.PutUint16(b[16:18], t.Port)
}

func putV4(b []byte, t bib.TransportAddr) {
	a := t.Addr
	if !a.IsValid() {
		a = netip.IPv4Unspecified()
	}
	a4 := a.As4()
	copy(b[0:4], a4[:])
	binary.BigEndian.PutUint16(b[4:6], t.Port)
}

func getV6(b []byte) bib.TransportAddr {
	var a16 [16]byte
	copy(a16[:], b[0:16])
	return bib.TransportAddr{Addr: netip.AddrFrom16(a16), Port: binary.BigEndian.Uint16(b[16:18])}
}

func getV4(b []byte) bib.TransportAddr {
	var a4 [4]byte
	copy(a4[:], b[0:4])
	return bib.TransportAddr{Addr: netip.AddrFrom4(a4), Port: binary.BigEndian.Uint16(b[4:6])}
}

// Exporter batches session snapshots across all three protocol tables
// of a Database into MTU-sized frames for a cross-host sync channel.
type Exporter struct {
	db *bib.Database
}

// NewExporter wraps db for export.
func NewExporter(db *bib.Database) *Exporter {
	return &Exporter{db: db}
}

// Frames collects every live session and returns the ordered frames
// needed to carry all of them.
func (x *Exporter) Frames() [][]byte {
	var snaps []bib.SessionSnapshot
	for _, proto := range [...]bib.Protocol{bib.ProtoTCP, bib.ProtoUDP, bib.ProtoICMP} {
		x.db.ForeachSession(proto, bib.TransportAddr{}, bib.TransportAddr{}, func(s bib.SessionSnapshot) bool {
			snaps = append(snaps, s)
			return true
		})
	}

	var frames [][]byte
	for len(snaps) > 0 {
		var frame []byte
		frame, snaps = Encode(snaps)
		frames = append(frames, frame)
	}
	return frames
}

// Importer applies received frames to a Database via ImportSession.
type Importer struct {
	db *bib.Database
}

// NewImporter wraps db for import.
func NewImporter(db *bib.Database) *Importer {
	return &Importer{db: db}
}

// Apply decodes frame and installs every record it carries.
func (im *Importer) Apply(frame []byte) error {
	snaps, err := Decode(frame)
	if err != nil {
		return err
	}
	for _, s := range snaps {
		if err := im.db.ImportSession(s); err != nil {
			return err
		}
	}
	return nil
}
