package main

import (
	"math/rand/v2"
	"net/netip"
)

// randomIP4 returns a uniformly random IPv4 address, the same byte-at-a-
// time construction the prefix generator this file is adapted from used
// for building random v4 space to insert.
func randomIP4(prng *rand.Rand) netip.Addr {
	var b [4]byte
	for i := range b {
		b[i] = byte(prng.UintN(256))
	}
	return netip.AddrFrom4(b)
}

// randomPort returns a random ephemeral-range port, skipping 0 since this
// package's TransportAddr treats a zero port as part of its IsValid check
// only through the address, but a real flow never carries one.
func randomPort(prng *rand.Rand) uint16 {
	return uint16(1024 + prng.UintN(64000))
}

// randomInsideAddr draws a v6 address from a single demo /96 so every
// generated inside host maps predictably under the demo's pool6 prefix.
func randomInsideAddr(prng *rand.Rand, base netip.Prefix) netip.Addr {
	b := base.Addr().As16()
	b[12] = byte(prng.UintN(256))
	b[13] = byte(prng.UintN(256))
	b[14] = byte(prng.UintN(256))
	b[15] = byte(prng.UintN(256))
	return netip.AddrFrom16(b)
}
