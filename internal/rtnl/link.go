package rtnl

// LinkKey uniquely identifies a link in the cache. Mirrors libnl's
// .oo_id_attrs = LINK_ATTR_IFINDEX | LINK_ATTR_FAMILY.
type LinkKey struct {
	Ifindex int
	Family  int
}

// LinkKeyOf derives the identity key for a link message.
func LinkKeyOf(m LinkMsg) LinkKey {
	return LinkKey{Ifindex: m.Index, Family: m.Family}
}

// LinkPayload is the normalized event record for a link.
type LinkPayload struct {
	Ifindex  int    `json:"ifindex"`
	Flags    uint32 `json:"flags"`
	ArpType  uint16 `json:"arptype"`
	Family   int    `json:"family"`
	Name     string `json:"name"`
	IsVlan   bool   `json:"is_vlan"`
	VlanID   int    `json:"vlan_id,omitempty"`
	VlanLink int    `json:"vlan_link,omitempty"`
}

// LinkEventData builds the event payload for a link message. When the
// link-info kind is "vlan" the VLAN id and parent link are included.
func LinkEventData(m LinkMsg) LinkPayload {
	p := LinkPayload{
		Ifindex: m.Index,
		Flags:   m.Flags,
		ArpType: m.ArpType,
		Family:  m.Family,
		Name:    m.Name,
		IsVlan:  m.Kind == "vlan",
	}
	if p.IsVlan {
		p.VlanID = m.VlanID
		p.VlanLink = m.Parent
	}
	return p
}

// linkEqualityFields lists the fields that make a link CHANGE material.
// Traffic counters and operational statistics are deliberately absent so
// stats-only refreshes are discarded.
var linkEqualityFields = []Field[LinkMsg]{
	func(m LinkMsg) any { return m.Index },
	func(m LinkMsg) any { return m.Family },
	func(m LinkMsg) any { return m.Flags },
	func(m LinkMsg) any { return m.Name },
	func(m LinkMsg) any { return m.MTU },
	func(m LinkMsg) any { return m.TxQLen },
	func(m LinkMsg) any { return m.Master },
	func(m LinkMsg) any { return m.Parent },
	func(m LinkMsg) any { return m.Alias },
	func(m LinkMsg) any { return m.HwAddr },
	func(m LinkMsg) any { return m.Promisc },
	func(m LinkMsg) any { return m.TxQs },
	func(m LinkMsg) any { return m.RxQs },
	func(m LinkMsg) any { return m.Kind },
	func(m LinkMsg) any { return m.VlanID },
	func(m LinkMsg) any { return m.BondMode },
	func(m LinkMsg) any { return m.BondXmitHashPolicy },
	func(m LinkMsg) any { return m.BondLacpRate },
}

// NewLinkCache creates the link cache with its equality field list.
func NewLinkCache() *Cache[LinkKey, LinkMsg] {
	return NewCache[LinkKey](linkEqualityFields)
}
