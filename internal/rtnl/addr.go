package rtnl

import (
	"fmt"
	"net/netip"
)

// AddrKey uniquely identifies an address in the cache. Mirrors libnl's
// .oo_id_attrs = ADDR_ATTR_FAMILY | ADDR_ATTR_IFINDEX |
// ADDR_ATTR_LOCAL | ADDR_ATTR_PREFIXLEN. Live notifications carry
// exactly these attributes, so a dump entry and the deletion that later
// removes it always land on the same key.
type AddrKey struct {
	Ifindex   int
	Family    int
	PrefixLen int
	Local     netip.Addr
}

// AddrKeyOf derives the identity key for an address message.
func AddrKeyOf(m AddrMsg) AddrKey {
	return AddrKey{
		Ifindex:   m.Index,
		Family:    m.Family,
		PrefixLen: m.PrefixLen,
		Local:     m.Local,
	}
}

// scopeName renders an rt_scope value the way iproute2 does.
func scopeName(scope int) string {
	switch scope {
	case 0:
		return "global"
	case 200:
		return "site"
	case 253:
		return "link"
	case 254:
		return "host"
	case 255:
		return "nowhere"
	default:
		return fmt.Sprintf("%d", scope)
	}
}

// AddrPayload is the normalized event record for an address.
type AddrPayload struct {
	Ifindex int    `json:"ifindex"`
	Family  int    `json:"family"`
	Scope   string `json:"scope"`
	Local   string `json:"local"`
	Flags   int    `json:"flags,omitempty"`
}

// AddrEventData builds the event payload for an address message. The
// local address renders as "ip/prefixlen", collapsing to the bare ip
// for a full-length prefix.
func AddrEventData(m AddrMsg) AddrPayload {
	local := m.Local.String()
	if m.Local.IsValid() && m.PrefixLen != m.Local.BitLen() {
		local = fmt.Sprintf("%s/%d", local, m.PrefixLen)
	}
	return AddrPayload{
		Ifindex: m.Index,
		Family:  m.Family,
		Scope:   scopeName(m.Scope),
		Local:   local,
		Flags:   m.Flags,
	}
}

// addrEqualityFields lists the fields that make an address CHANGE
// material: the attributes present on both a dump entry and a live
// notification. Lifetimes count down on every kernel refresh and are
// excluded.
var addrEqualityFields = []Field[AddrMsg]{
	func(m AddrMsg) any { return m.Index },
	func(m AddrMsg) any { return m.Family },
	func(m AddrMsg) any { return m.Scope },
	func(m AddrMsg) any { return m.PrefixLen },
	func(m AddrMsg) any { return m.Local },
	func(m AddrMsg) any { return m.Flags },
}

// NewAddrCache creates the address cache with its equality field list.
func NewAddrCache() *Cache[AddrKey, AddrMsg] {
	return NewCache[AddrKey](addrEqualityFields)
}
