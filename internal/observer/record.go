// Package observer assembles the normalized link and route inventory
// out of the event stream and delivers it through the Receiver
// interface. It also defines the snapshot format used for export and
// socket-free replay.
package observer

import (
	"grimm.is/netmirror/internal/hwinfo"
)

// Address is one IP address bound to a link.
type Address struct {
	Address string `json:"address"`
	Family  int    `json:"family"`
	Source  string `json:"source"`
	Scope   string `json:"scope"`
}

// Wlan is the wireless sub-state of a link.
type Wlan struct {
	SSID         string   `json:"ssid"`
	VisibleSSIDs []string `json:"visible_ssids"`
	ScanState    string   `json:"scan_state"`
}

// Vlan is the VLAN sub-object of a link whose kind is "vlan".
type Vlan struct {
	ID   int `json:"id"`
	Link int `json:"link"`
}

// NetlinkData carries the raw identity attributes of a link.
type NetlinkData struct {
	Ifindex int    `json:"ifindex"`
	Flags   uint32 `json:"flags"`
	ArpType uint16 `json:"arptype"`
	Family  int    `json:"family"`
	Name    string `json:"name"`
}

// Link is the normalized inventory record for one interface.
type Link struct {
	Addresses   []Address     `json:"addresses"`
	Type        string        `json:"type"`
	Bond        hwinfo.Bond   `json:"bond"`
	Bridge      hwinfo.Bridge `json:"bridge"`
	NetlinkData NetlinkData   `json:"netlink_data"`
	Wlan        *Wlan         `json:"wlan,omitempty"`
	Vlan        *Vlan         `json:"vlan,omitempty"`
}

// Name returns the interface name.
func (l *Link) Name() string {
	return l.NetlinkData.Name
}

// Ifindex returns the interface index.
func (l *Link) Ifindex() int {
	return l.NetlinkData.Ifindex
}
