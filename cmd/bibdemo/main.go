package main

import (
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nat64lab/bib"
	"github.com/nat64lab/bib/internal/dbmetrics"
	"github.com/nat64lab/bib/joold"
)

func main() {
	prng := rand.New(rand.NewPCG(42, 42))
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := bib.DefaultConfig()
	cfg.Pool6 = bib.Pool6Prefix{Prefix: netip.MustParsePrefix("64:ff9b::/96")}
	cfg.LogBIBEvents = true
	cfg.LogSessionEvents = true
	cfg.AddressDependentFiltering = true

	hooks := bib.Hooks{
		EmitProbe: func(snap bib.SessionSnapshot) {
			log.Infof("probe: keepalive for %s -> %s", snap.Src6, snap.Dst6)
		},
		EmitICMPUnreachable: func(proto bib.Protocol, src4, dst4 bib.TransportAddr, packet []byte) {
			log.Infof("icmp unreachable: %s %s -> %s (%d bytes)", proto, src4, dst4, len(packet))
		},
	}

	metrics := dbmetrics.New(nil)
	db := bib.New(cfg, log, metrics, hooks)

	insideBase := netip.MustParsePrefix("2001:db8:64::/96")
	outside := netip.MustParseAddr("203.0.113.10")
	masks := newRangeMaskDomain(outside, "demo", 20000, 40000)

	if err := db.AddStatic(bib.ProtoUDP, bib.TransportAddr{Addr: insideBase.Addr(), Port: 53}, bib.TransportAddr{Addr: outside, Port: 53}); err != nil {
		log.Warnf("add_static: %v", err)
	}

	wg := sync.WaitGroup{}

	// reporter: print table sizes once a second.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			c := db.Counters()
			log.Printf("bib entries: %v, sessions: %v, stored: %v", c.BIBEntries, c.Sessions, c.StoredPkts)
			time.Sleep(time.Second)
		}
	}()

	// 6->4 UDP driver: hammers Add6 against freshly generated inside
	// hosts, exercising mask allocation on the hot path.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2_000; i++ {
			src6 := bib.TransportAddr{Addr: randomInsideAddr(prng, insideBase), Port: randomPort(prng)}
			dst6 := bib.TransportAddr{Addr: cfg.Pool6.Embed(randomIP4(prng)), Port: 443}
			dst4, ok := cfg.Pool6.DeriveDst4(dst6)
			if !ok {
				continue
			}
			if _, err := db.Add6(bib.Tuple6{Src6: src6, Dst6: dst6, Proto: bib.ProtoUDP}, masks, dst4, time.Now()); err != nil {
				log.Debugf("add6: %v", err)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	// TCP driver: drives connections through the RFC 6146 state machine:
	// v6 SYN, the peer's v4 SYN-ACK (admitted by ADF, since it comes from
	// the peer the v6 side opened toward), then the v6 side's FIN.
	wg.Add(1)
	go func() {
		defer wg.Done()
		tcpMasks := newRangeMaskDomain(outside, "demo-tcp", 40001, 45000)
		for i := 0; i < 1_000; i++ {
			src6 := bib.TransportAddr{Addr: randomInsideAddr(prng, insideBase), Port: randomPort(prng)}
			dst6 := bib.TransportAddr{Addr: cfg.Pool6.Embed(randomIP4(prng)), Port: 80}
			dst4, ok := cfg.Pool6.DeriveDst4(dst6)
			if !ok {
				continue
			}
			snap, err := db.AddTCP6(bib.Tuple6{Src6: src6, Dst6: dst6, Proto: bib.ProtoTCP}, tcpMasks, dst4, time.Now(), bib.PacketFlags{SYN: true}, nil)
			if err != nil {
				log.Debugf("add_tcp6 syn: %v", err)
				continue
			}
			_, _ = db.AddTCP4(bib.Tuple4{Src4: snap.Dst4, Dst4: snap.Src4, Proto: bib.ProtoTCP}, snap.Src6, nil, time.Now(), bib.PacketFlags{SYN: true, ACK: true}, nil)
			_, _ = db.AddTCP6(bib.Tuple6{Src6: src6, Dst6: dst6, Proto: bib.ProtoTCP}, tcpMasks, dst4, time.Now(), bib.PacketFlags{ACK: true, FIN: true}, nil)
			time.Sleep(2 * time.Millisecond)
		}
	}()

	// reaper: runs the timer sweep at the configured floor.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.MinSweepInterval)
		defer ticker.Stop()
		for i := 0; i < 20; i++ {
			<-ticker.C
			db.Clean(time.Now())
		}
	}()

	// joold round trip: export every live session and reimport it into
	// the same database, proving the framed format survives a cycle.
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(500 * time.Millisecond)
		exp := joold.NewExporter(db)
		imp := joold.NewImporter(db)
		frames := exp.Frames()
		log.Infof("joold: exported %d frame(s)", len(frames))
		for _, f := range frames {
			if err := imp.Apply(f); err != nil {
				log.Warnf("joold apply: %v", err)
			}
		}
	}()

	wg.Wait()
	log.Printf("final counters: %+v", db.Counters())
}
