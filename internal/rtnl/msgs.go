package rtnl

import (
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Action classifies the outcome of a processed netlink message.
type Action string

const (
	ActionNew    Action = "NEW"
	ActionChange Action = "CHANGE"
	ActionDel    Action = "DEL"

	// actionDiscard means the message carried nothing the consumer needs
	// to hear about. It never leaves the listener.
	actionDiscard Action = "DISCARD"
)

// LinkMsg is the typed variant of an RTM_NEWLINK/RTM_DELLINK message.
// It carries every field the cache compares plus the volatile counters
// that equality deliberately ignores.
type LinkMsg struct {
	Index   int
	Family  int
	ArpType uint16
	Flags   uint32
	Name    string
	MTU     int
	TxQLen  int
	Master  int
	Parent  int
	Alias   string
	HwAddr  string
	Promisc int
	TxQs    int
	RxQs    int

	OperState string

	// Kind-specific info from IFLA_LINKINFO.
	Kind               string
	VlanID             int
	BondMode           string
	BondXmitHashPolicy string
	BondLacpRate       string

	// Traffic counters. High churn, excluded from equality.
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
}

// Up reports whether the interface is administratively up.
func (m LinkMsg) Up() bool {
	return m.Flags&unix.IFF_UP != 0
}

// AddrMsg is the typed variant of an RTM_NEWADDR/RTM_DELADDR message.
// It carries only the attributes present on both a dump entry and a
// live notification, so the two representations of one address always
// compare equal; dump-only attributes (label, broadcast, peer) would
// make every dump-seen address look changed on its first live refresh.
type AddrMsg struct {
	Index     int
	Family    int
	PrefixLen int

	// Local is the interface address: IFA_LOCAL for IPv4, IFA_ADDRESS
	// for IPv6 (the kernel does not populate IFA_LOCAL for IPv6).
	Local netip.Addr

	Scope       int
	Flags       int
	PreferedLft int
	ValidLft    int
}

// Permanent reports whether the address carries IFA_F_PERMANENT.
func (m AddrMsg) Permanent() bool {
	return m.Flags&unix.IFA_F_PERMANENT != 0
}

// NextHop is one hop of a multipath route.
type NextHop struct {
	Ifindex int
	Hops    int
	Gw      netip.Addr
}

// RouteMsg is the typed variant of an RTM_NEWROUTE/RTM_DELROUTE message.
type RouteMsg struct {
	Family   int
	Tos      int
	Table    int
	Type     int
	Scope    int
	Protocol int
	Priority int
	Flags    int

	// Dst is the destination network. The zero Prefix means the default
	// route (dst_len == 0).
	Dst     netip.Prefix
	PrefSrc netip.Addr
	Gw      netip.Addr
	Ifindex int // RTA_OIF; 0 when absent

	NextHops []NextHop
}

// EgressIfindex returns the output interface: RTA_OIF when present, the
// first multipath hop's interface otherwise, or -1 if genuinely absent.
func (m RouteMsg) EgressIfindex() int {
	if m.Ifindex != 0 {
		return m.Ifindex
	}
	if len(m.NextHops) > 0 {
		return m.NextHops[0].Ifindex
	}
	return -1
}

// ── Transport boundary: vishvananda/netlink → typed variants ──

// arphrdForEncap maps the library's encap-type string back to the
// ARPHRD_* code for links obtained from a dump (live updates carry the
// code in the ifinfomsg header directly).
func arphrdForEncap(encap string) uint16 {
	switch encap {
	case "ether":
		return unix.ARPHRD_ETHER
	case "infiniband":
		return unix.ARPHRD_INFINIBAND
	case "ppp":
		return unix.ARPHRD_PPP
	case "ipip":
		return unix.ARPHRD_TUNNEL
	case "tunnel6":
		return unix.ARPHRD_TUNNEL6
	case "loopback":
		return unix.ARPHRD_LOOPBACK
	case "sit":
		return unix.ARPHRD_SIT
	case "gre":
		return unix.ARPHRD_IPGRE
	case "ieee802.11":
		return unix.ARPHRD_IEEE80211
	case "ieee802.11/radiotap":
		return unix.ARPHRD_IEEE80211_RADIOTAP
	case "none":
		return unix.ARPHRD_NONE
	default:
		return 0
	}
}

// LinkMsgFrom converts a link from the transport layer. family and
// arptype come from the ifinfomsg header on live updates; dumps pass
// unix.AF_UNSPEC and 0 and the arptype is recovered from the encap type.
func LinkMsgFrom(link netlink.Link, family int, arptype uint16) LinkMsg {
	attrs := link.Attrs()
	m := LinkMsg{
		Index:     attrs.Index,
		Family:    family,
		ArpType:   arptype,
		Flags:     attrs.RawFlags,
		Name:      attrs.Name,
		MTU:       attrs.MTU,
		TxQLen:    attrs.TxQLen,
		Master:    attrs.MasterIndex,
		Parent:    attrs.ParentIndex,
		Alias:     attrs.Alias,
		Promisc:   attrs.Promisc,
		TxQs:      attrs.NumTxQueues,
		RxQs:      attrs.NumRxQueues,
		OperState: attrs.OperState.String(),
		Kind:      link.Type(),
	}
	if m.ArpType == 0 {
		m.ArpType = arphrdForEncap(attrs.EncapType)
	}
	if attrs.HardwareAddr != nil {
		m.HwAddr = attrs.HardwareAddr.String()
	}
	if attrs.Statistics != nil {
		m.RxPackets = attrs.Statistics.RxPackets
		m.TxPackets = attrs.Statistics.TxPackets
		m.RxBytes = attrs.Statistics.RxBytes
		m.TxBytes = attrs.Statistics.TxBytes
	}
	switch l := link.(type) {
	case *netlink.Vlan:
		m.VlanID = l.VlanId
	case *netlink.Bond:
		m.BondMode = l.Mode.String()
		m.BondXmitHashPolicy = l.XmitHashPolicy.String()
		m.BondLacpRate = l.LacpRate.String()
	}
	return m
}

// LinkMsgFromUpdate converts a live link notification.
func LinkMsgFromUpdate(u netlink.LinkUpdate) LinkMsg {
	return LinkMsgFrom(u.Link, int(u.IfInfomsg.Family), u.IfInfomsg.Type)
}

func addrFromIP(ip []byte) netip.Addr {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return a.Unmap()
}

// AddrMsgFromAddr converts an address from the initial dump. The library
// already applies the IFA_LOCAL/IFA_ADDRESS disambiguation: IPNet holds
// the local address for both families. Dump-only attributes are
// deliberately not carried (see AddrMsg).
func AddrMsgFromAddr(a netlink.Addr) AddrMsg {
	m := AddrMsg{
		Index:       a.LinkIndex,
		Scope:       a.Scope,
		Flags:       a.Flags,
		PreferedLft: a.PreferedLft,
		ValidLft:    a.ValidLft,
	}
	if a.IPNet != nil {
		m.Local = addrFromIP(a.IPNet.IP)
		m.PrefixLen, _ = a.IPNet.Mask.Size()
	}
	m.Family = familyOf(m.Local)
	return m
}

// AddrMsgFromUpdate converts a live address notification.
func AddrMsgFromUpdate(u netlink.AddrUpdate) AddrMsg {
	m := AddrMsg{
		Index:       u.LinkIndex,
		Scope:       u.Scope,
		Flags:       u.Flags,
		PreferedLft: u.PreferedLft,
		ValidLft:    u.ValidLft,
	}
	m.Local = addrFromIP(u.LinkAddress.IP)
	m.PrefixLen, _ = u.LinkAddress.Mask.Size()
	m.Family = familyOf(m.Local)
	return m
}

func familyOf(a netip.Addr) int {
	switch {
	case !a.IsValid():
		return unix.AF_UNSPEC
	case a.Is4():
		return unix.AF_INET
	default:
		return unix.AF_INET6
	}
}

// RouteMsgFromRoute converts a route from a dump or a live update.
func RouteMsgFromRoute(r netlink.Route) RouteMsg {
	m := RouteMsg{
		Family:   r.Family,
		Tos:      r.Tos,
		Table:    r.Table,
		Type:     r.Type,
		Scope:    int(r.Scope),
		Protocol: int(r.Protocol),
		Priority: r.Priority,
		Flags:    r.Flags,
		Ifindex:  r.LinkIndex,
	}
	if r.Dst != nil {
		ones, _ := r.Dst.Mask.Size()
		m.Dst = netip.PrefixFrom(addrFromIP(r.Dst.IP), ones)
	}
	if r.Src != nil {
		m.PrefSrc = addrFromIP(r.Src)
	}
	if r.Gw != nil {
		m.Gw = addrFromIP(r.Gw)
	}
	for _, nh := range r.MultiPath {
		hop := NextHop{Ifindex: nh.LinkIndex, Hops: nh.Hops}
		if nh.Gw != nil {
			hop.Gw = addrFromIP(nh.Gw)
		}
		m.NextHops = append(m.NextHops, hop)
	}
	return m
}
