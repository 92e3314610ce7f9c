// Package bib implements the Binding Information Base and session database
// of a stateful NAT64 translator (RFC 6146).
//
// The database owns three independent tables, one each for TCP, UDP and
// ICMP. Each table maintains two ordered indices of BIB entries (keyed by
// the inside IPv6 transport address and by the allocated outside IPv4
// transport address) and, per BIB entry, one ordered index of sessions
// keyed by the outside peer's transport address. Three FIFO timer lists
// per table expire idle sessions; a small bounded queue holds SYN packets
// while Simultaneous Open is resolved.
//
// The database itself never touches the wire: header translation, pool4
// mask allocation, pool6 prefix storage, and ICMP emission are all
// external collaborators. This package only consumes a mask-domain
// iterator from pool4 and produces binding/session snapshots for callers
// to act on.
//
// A Database zero value is not ready to use; construct one with New.
package bib
