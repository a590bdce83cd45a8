package rtnl

import (
	"fmt"
	"net/netip"
	"strings"
)

// RouteKey uniquely identifies a route in the cache. Mirrors libnl's
// .oo_id_attrs = ROUTE_ATTR_FAMILY | ROUTE_ATTR_TOS | ROUTE_ATTR_TABLE
// | ROUTE_ATTR_DST | ROUTE_ATTR_PRIO.
//
// The output interface is deliberately not part of the identity, so two
// special routes (e.g. multicast) that differ only in their egress
// device collapse to one cache entry. Inherited behavior; consumers may
// depend on it. Pinned by TestRouteKeyIgnoresOutputInterface.
type RouteKey struct {
	Family   int
	Tos      int
	Table    int
	Dst      netip.Prefix
	Priority int
}

// RouteKeyOf derives the identity key for a route message.
func RouteKeyOf(m RouteMsg) RouteKey {
	return RouteKey{
		Family:   m.Family,
		Tos:      m.Tos,
		Table:    m.Table,
		Dst:      m.Dst,
		Priority: m.Priority,
	}
}

// RoutePayload is the normalized event record for a route.
type RoutePayload struct {
	Family   int    `json:"family"`
	Type     int    `json:"type"`
	Table    int    `json:"table"`
	Dst      string `json:"dst"`
	Ifindex  int    `json:"ifindex"`
	Gateway  string `json:"gateway,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// RouteEventData builds the event payload for a route message. An unset
// destination renders as the literal "default"; a full-length prefix
// collapses to the bare network address.
func RouteEventData(m RouteMsg) RoutePayload {
	dst := "default"
	if m.Dst.IsValid() {
		if m.Dst.Bits() == m.Dst.Addr().BitLen() {
			dst = m.Dst.Addr().String()
		} else {
			dst = m.Dst.String()
		}
	}
	p := RoutePayload{
		Family:   m.Family,
		Type:     m.Type,
		Table:    m.Table,
		Dst:      dst,
		Ifindex:  m.EgressIfindex(),
		Priority: m.Priority,
	}
	if m.Gw.IsValid() {
		p.Gateway = m.Gw.String()
	}
	return p
}

// nextHopsKey projects the multipath hop list to a comparable value.
func nextHopsKey(hops []NextHop) string {
	if len(hops) == 0 {
		return ""
	}
	parts := make([]string, len(hops))
	for i, nh := range hops {
		parts[i] = fmt.Sprintf("%d/%d/%s", nh.Ifindex, nh.Hops, nh.Gw)
	}
	return strings.Join(parts, ";")
}

// routeEqualityFields lists the fields that make a route CHANGE
// material.
var routeEqualityFields = []Field[RouteMsg]{
	func(m RouteMsg) any { return m.Family },
	func(m RouteMsg) any { return m.Tos },
	func(m RouteMsg) any { return m.Table },
	func(m RouteMsg) any { return m.Protocol },
	func(m RouteMsg) any { return m.Scope },
	func(m RouteMsg) any { return m.Type },
	func(m RouteMsg) any { return m.Priority },
	func(m RouteMsg) any { return m.Dst },
	func(m RouteMsg) any { return m.PrefSrc },
	func(m RouteMsg) any { return m.Flags },

	// Next hop without multipath.
	func(m RouteMsg) any { return m.Ifindex },
	func(m RouteMsg) any { return m.Gw },

	// Next hops with multipath.
	func(m RouteMsg) any { return nextHopsKey(m.NextHops) },
}

// NewRouteCache creates the route cache with its equality field list.
func NewRouteCache() *Cache[RouteKey, RouteMsg] {
	return NewCache[RouteKey](routeEqualityFields)
}
