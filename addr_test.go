package bib

import (
	"net/netip"
	"testing"
)

func TestPool6PrefixEmbedExtractRoundTrip(t *testing.T) {
	cases := []string{"2001:db8::/32", "2001:db8:1200::/40", "2001:db8:122::/48", "2001:db8:1:3400::/56", "2001:db8:1::/64", "64:ff9b::/96"}
	v4 := netip.MustParseAddr("192.0.2.33")

	for _, prefix := range cases {
		p := Pool6Prefix{Prefix: netip.MustParsePrefix(prefix)}
		v6 := p.Embed(v4)

		got, ok := p.Extract(v6)
		if !ok {
			t.Fatalf("%s: Extract failed to recognize its own Embed output", prefix)
		}
		if got != v4 {
			t.Fatalf("%s: Extract(Embed(%s)) = %s, want %s", prefix, v4, got, v4)
		}
	}
}

func TestPool6PrefixExtractRejectsForeignAddr(t *testing.T) {
	p := Pool6Prefix{Prefix: netip.MustParsePrefix("64:ff9b::/96")}
	if _, ok := p.Extract(netip.MustParseAddr("2001:db8::1")); ok {
		t.Fatalf("Extract should reject an address outside the pool6 prefix")
	}
}

func TestPool6PrefixEmbedPanicsOnUnsupportedLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Embed should panic on a non-RFC-6052 prefix length")
		}
	}()
	p := Pool6Prefix{Prefix: netip.MustParsePrefix("64:ff9b::/80")}
	p.Embed(netip.MustParseAddr("192.0.2.1"))
}

func TestDeriveDst4CarriesPort(t *testing.T) {
	p := Pool6Prefix{Prefix: netip.MustParsePrefix("64:ff9b::/96")}
	v4 := netip.MustParseAddr("203.0.113.9")
	dst6 := TransportAddr{Addr: p.Embed(v4), Port: 443}

	dst4, ok := p.DeriveDst4(dst6)
	if !ok || dst4.Addr != v4 || dst4.Port != 443 {
		t.Fatalf("DeriveDst4(%v) = %v, %v, want {%s 443}, true", dst6, dst4, ok, v4)
	}
}

func TestCompareTransportAddrOrdersByAddrThenPort(t *testing.T) {
	a := TransportAddr{Addr: netip.MustParseAddr("10.0.0.1"), Port: 80}
	b := TransportAddr{Addr: netip.MustParseAddr("10.0.0.1"), Port: 443}
	c := TransportAddr{Addr: netip.MustParseAddr("10.0.0.2"), Port: 1}

	if CompareTransportAddr(a, b) >= 0 {
		t.Fatalf("same addr, lower port should sort first")
	}
	if CompareTransportAddr(b, c) >= 0 {
		t.Fatalf("lower addr should sort first regardless of port")
	}
	if CompareTransportAddr(a, a) != 0 {
		t.Fatalf("CompareTransportAddr should report 0 for equal values")
	}
}
