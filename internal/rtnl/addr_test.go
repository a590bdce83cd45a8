package rtnl

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func TestAddrDumpAndLiveUpdateCompareEqual(t *testing.T) {
	// A dump entry carries attributes (label, broadcast, peer) a live
	// notification never does. The live refresh of an address first seen
	// in the dump must land on the same key and compare equal, so it is
	// silently absorbed instead of surfacing as a CHANGE.
	ipnet := &net.IPNet{IP: net.ParseIP("192.168.1.5"), Mask: net.CIDRMask(24, 32)}
	dumped := AddrMsgFromAddr(netlink.Addr{
		IPNet:     ipnet,
		Label:     "eth0",
		Broadcast: net.ParseIP("192.168.1.255"),
		Peer:      &net.IPNet{IP: net.ParseIP("192.168.1.6"), Mask: net.CIDRMask(32, 32)},
		LinkIndex: 3,
		Flags:     unix.IFA_F_PERMANENT,
	})
	live := AddrMsgFromUpdate(netlink.AddrUpdate{
		LinkAddress: *ipnet,
		LinkIndex:   3,
		NewAddr:     true,
		Flags:       unix.IFA_F_PERMANENT,
	})

	assert.Equal(t, AddrKeyOf(dumped), AddrKeyOf(live))
	assert.True(t, NewAddrCache().Equal(dumped, live),
		"live refresh must compare equal to the dump entry")
}

func TestScopeName(t *testing.T) {
	assert.Equal(t, "global", scopeName(0))
	assert.Equal(t, "site", scopeName(200))
	assert.Equal(t, "link", scopeName(253))
	assert.Equal(t, "host", scopeName(254))
	assert.Equal(t, "nowhere", scopeName(255))
	assert.Equal(t, "42", scopeName(42))
}

func TestAddrEventData(t *testing.T) {
	m := AddrMsg{
		Index:     4,
		Family:    unix.AF_INET,
		PrefixLen: 24,
		Local:     netip.MustParseAddr("192.168.1.1"),
	}
	p := AddrEventData(m)
	assert.Equal(t, 4, p.Ifindex)
	assert.Equal(t, 2, p.Family)
	assert.Equal(t, "global", p.Scope)
	assert.Equal(t, "192.168.1.1/24", p.Local)
}

func TestAddrEventDataFullPrefixCollapses(t *testing.T) {
	m := AddrMsg{
		Index:     1,
		Family:    unix.AF_INET6,
		PrefixLen: 128,
		Local:     netip.MustParseAddr("::1"),
		Scope:     254,
	}
	p := AddrEventData(m)
	assert.Equal(t, "::1", p.Local)
	assert.Equal(t, "host", p.Scope)
}

func TestAddrEqualityIgnoresLifetimes(t *testing.T) {
	c := NewAddrCache()

	a := AddrMsg{
		Index:       4,
		Family:      unix.AF_INET6,
		PrefixLen:   64,
		Local:       netip.MustParseAddr("fe80::1"),
		PreferedLft: 3600,
		ValidLft:    7200,
	}
	b := a
	b.PreferedLft = 3599
	b.ValidLft = 7199
	assert.True(t, c.Equal(a, b), "lifetime countdown must compare equal")

	b.Flags = unix.IFA_F_DEPRECATED
	assert.False(t, c.Equal(a, b))
}

func TestAddrPermanent(t *testing.T) {
	assert.True(t, AddrMsg{Flags: unix.IFA_F_PERMANENT}.Permanent())
	assert.False(t, AddrMsg{Flags: unix.IFA_F_TEMPORARY}.Permanent())
}
