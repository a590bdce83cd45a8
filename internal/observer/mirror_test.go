package observer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"grimm.is/netmirror/internal/hwinfo"
	"grimm.is/netmirror/internal/rtnl"
	"grimm.is/netmirror/internal/wifi"
)

// fakeHardware classifies by a fixed name→type table.
type fakeHardware struct {
	types map[string]string
}

func (f *fakeHardware) IfaceType(name string) string {
	return f.types[name]
}

func (f *fakeHardware) BondInfo(string) hwinfo.Bond {
	return hwinfo.Bond{}
}

func (f *fakeHardware) BridgeInfo(string) hwinfo.Bridge {
	return hwinfo.Bridge{}
}

type fakeLinkControl struct {
	upRequests []int
	err        error
}

func (f *fakeLinkControl) SetLinkUp(ifindex int) error {
	f.upRequests = append(f.upRequests, ifindex)
	return f.err
}

type fakeScanControl struct {
	scans []int
	err   error
}

func (f *fakeScanControl) TriggerScan(ifindex int) error {
	f.scans = append(f.scans, ifindex)
	return f.err
}

// callLog records receiver calls as strings.
type callLog struct {
	calls []string
}

func (c *callLog) NewLink(ifindex int, link *Link) {
	c.calls = append(c.calls, fmt.Sprintf("new_link(%d,%s)", ifindex, link.Name()))
}

func (c *callLog) UpdateLink(ifindex int) {
	c.calls = append(c.calls, fmt.Sprintf("update_link(%d)", ifindex))
}

func (c *callLog) DelLink(ifindex int) {
	c.calls = append(c.calls, fmt.Sprintf("del_link(%d)", ifindex))
}

func (c *callLog) RouteChange(action rtnl.Action, payload rtnl.RoutePayload) {
	c.calls = append(c.calls, fmt.Sprintf("route_change(%s,%s)", action, payload.Dst))
}

func ethPayload(ifindex int, name string, flags uint32) rtnl.LinkPayload {
	return rtnl.LinkPayload{
		Ifindex: ifindex,
		Name:    name,
		Flags:   flags,
		ArpType: unix.ARPHRD_ETHER,
	}
}

func TestLinkLifecycle(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil, WithHardware(&fakeHardware{types: map[string]string{"eth0": "eth"}}))

	m.LinkChange(rtnl.ActionNew, ethPayload(2, "eth0", 0))
	m.LinkChange(rtnl.ActionChange, ethPayload(2, "eth0", unix.IFF_UP))
	m.LinkChange(rtnl.ActionDel, ethPayload(2, "eth0", unix.IFF_UP))

	assert.Equal(t, []string{
		"new_link(2,eth0)",
		"update_link(2)",
		"del_link(2)",
	}, log.calls)
	assert.Nil(t, m.Link(2))
}

func TestLinkRecordFields(t *testing.T) {
	m := NewMirror(&callLog{}, nil, WithHardware(&fakeHardware{types: map[string]string{"eth0": "eth"}}))

	m.LinkChange(rtnl.ActionNew, ethPayload(2, "eth0", unix.IFF_UP))
	link := m.Link(2)
	require.NotNil(t, link)
	assert.Equal(t, "eth", link.Type)
	assert.Equal(t, 2, link.NetlinkData.Ifindex)
	assert.Equal(t, "eth0", link.NetlinkData.Name)
	assert.NotNil(t, link.Addresses)
	assert.Nil(t, link.Vlan)
	assert.Nil(t, link.Wlan)
}

func TestLinkVlanSubObject(t *testing.T) {
	m := NewMirror(&callLog{}, nil)

	m.LinkChange(rtnl.ActionNew, rtnl.LinkPayload{
		Ifindex: 5, Name: "eth0.100", IsVlan: true, VlanID: 100, VlanLink: 2,
	})
	link := m.Link(5)
	require.NotNil(t, link)
	require.NotNil(t, link.Vlan)
	assert.Equal(t, 100, link.Vlan.ID)
	assert.Equal(t, 2, link.Vlan.Link)
	assert.Equal(t, "unknown", link.Type)
}

func TestUnknownTypeFallsBack(t *testing.T) {
	m := NewMirror(&callLog{}, nil, WithHardware(&fakeHardware{types: map[string]string{}}))
	m.LinkChange(rtnl.ActionNew, ethPayload(2, "eth0", 0))
	assert.Equal(t, "unknown", m.Link(2).Type)
}

func TestChangeForUnknownLinkBecomesNew(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)
	m.LinkChange(rtnl.ActionChange, ethPayload(7, "eth7", 0))
	assert.Equal(t, []string{"new_link(7,eth7)"}, log.calls)
}

func TestAddrChangeDeliveredAsLinkUpdate(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)
	m.LinkChange(rtnl.ActionNew, ethPayload(4, "eth0", unix.IFF_UP))
	log.calls = nil

	m.AddrChange(rtnl.ActionNew, rtnl.AddrPayload{
		Ifindex: 4,
		Family:  unix.AF_INET,
		Scope:   "global",
		Local:   "192.168.1.1/24",
	})

	assert.Equal(t, []string{"update_link(4)"}, log.calls)
	link := m.Link(4)
	require.Len(t, link.Addresses, 1)
	assert.Equal(t, Address{
		Address: "192.168.1.1/24",
		Family:  2,
		Source:  "dhcp",
		Scope:   "global",
	}, link.Addresses[0])
}

func TestAddrSourceClassification(t *testing.T) {
	assert.Equal(t, "static", addrSource(unix.IFA_F_PERMANENT))
	assert.Equal(t, "dhcp", addrSource(0))
}

func TestAddrForUnknownLinkIgnored(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)

	m.AddrChange(rtnl.ActionNew, rtnl.AddrPayload{Ifindex: 99, Local: "10.0.0.1/8"})
	assert.Empty(t, log.calls)
}

func TestAddrDelRemovesFromLink(t *testing.T) {
	m := NewMirror(&callLog{}, nil)
	m.LinkChange(rtnl.ActionNew, ethPayload(4, "eth0", 0))

	addr := rtnl.AddrPayload{Ifindex: 4, Family: unix.AF_INET, Scope: "global", Local: "192.168.1.1/24"}
	m.AddrChange(rtnl.ActionNew, addr)
	require.Len(t, m.Link(4).Addresses, 1)

	m.AddrChange(rtnl.ActionDel, addr)
	assert.Empty(t, m.Link(4).Addresses)
}

func TestRouteChangeForwardedAndTracked(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)

	route := rtnl.RoutePayload{Family: unix.AF_INET, Table: 254, Dst: "default", Ifindex: 2}
	m.RouteChange(rtnl.ActionNew, route)
	m.RouteChange(rtnl.ActionDel, route)

	assert.Equal(t, []string{
		"route_change(NEW,default)",
		"route_change(DEL,default)",
	}, log.calls)
	assert.Empty(t, m.Snapshot().Routes)
}

func TestBatchCoalescesLinkCalls(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)

	// A rename right after the interface appears: the consumer sees one
	// NewLink carrying the final name.
	m.BatchStart()
	m.LinkChange(rtnl.ActionNew, ethPayload(3, "eth0", 0))
	m.LinkChange(rtnl.ActionChange, ethPayload(3, "lan0", 0))
	m.BatchEnd()

	assert.Equal(t, []string{"new_link(3,lan0)"}, log.calls)
}

func TestBatchDropsEphemeralLink(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)

	m.BatchStart()
	m.LinkChange(rtnl.ActionNew, ethPayload(3, "veth0", 0))
	m.LinkChange(rtnl.ActionDel, ethPayload(3, "veth0", 0))
	m.BatchEnd()

	assert.Empty(t, log.calls)
}

func TestBatchRoutesNeverCoalesce(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)

	route := rtnl.RoutePayload{Family: unix.AF_INET, Table: 254, Dst: "10.0.0.0/8"}
	m.BatchStart()
	m.RouteChange(rtnl.ActionNew, route)
	m.RouteChange(rtnl.ActionChange, route)
	m.BatchEnd()

	assert.Equal(t, []string{
		"route_change(NEW,10.0.0.0/8)",
		"route_change(CHANGE,10.0.0.0/8)",
	}, log.calls)
}

func TestWirelessDownLinkRequestsUp(t *testing.T) {
	lc := &fakeLinkControl{}
	m := NewMirror(&callLog{}, nil,
		WithHardware(&fakeHardware{types: map[string]string{"wlan0": "wlan"}}),
		WithLinkControl(lc))

	m.LinkChange(rtnl.ActionNew, ethPayload(3, "wlan0", 0))
	assert.Equal(t, []int{3}, lc.upRequests)
}

// The listener is attached as the mirror's link control after
// construction, so it must satisfy the interface.
var _ LinkControl = (*rtnl.Listener)(nil)

func TestSetLinkControlAfterConstruction(t *testing.T) {
	lc := &fakeLinkControl{}
	m := NewMirror(&callLog{}, nil,
		WithHardware(&fakeHardware{types: map[string]string{"wlan0": "wlan"}}))
	m.SetLinkControl(lc)

	m.LinkChange(rtnl.ActionNew, ethPayload(3, "wlan0", 0))
	assert.Equal(t, []int{3}, lc.upRequests)
}

func TestWirelessUpEdgeTriggersScan(t *testing.T) {
	sc := &fakeScanControl{}
	m := NewMirror(&callLog{}, nil,
		WithHardware(&fakeHardware{types: map[string]string{"wlan0": "wlan"}}),
		WithScanControl(sc))

	m.LinkChange(rtnl.ActionNew, ethPayload(3, "wlan0", unix.IFF_UP))
	assert.Empty(t, sc.scans, "already-up link must not scan on NEW")

	m.LinkChange(rtnl.ActionChange, ethPayload(3, "wlan0", 0))
	m.LinkChange(rtnl.ActionChange, ethPayload(3, "wlan0", unix.IFF_UP))
	assert.Equal(t, []int{3}, sc.scans)

	// Staying up is not an edge.
	changed := ethPayload(3, "wlan0", unix.IFF_UP|unix.IFF_RUNNING)
	m.LinkChange(rtnl.ActionChange, changed)
	assert.Equal(t, []int{3}, sc.scans)
}

func TestScanTriggerFailureIsSwallowed(t *testing.T) {
	sc := &fakeScanControl{err: fmt.Errorf("device busy")}
	m := NewMirror(&callLog{}, nil,
		WithHardware(&fakeHardware{types: map[string]string{"wlan0": "wlan"}}),
		WithScanControl(sc))

	m.LinkChange(rtnl.ActionNew, ethPayload(3, "wlan0", 0))
	m.LinkChange(rtnl.ActionChange, ethPayload(3, "wlan0", unix.IFF_UP))
	assert.NotNil(t, m.Link(3), "failed trigger must not disturb the inventory")
}

func TestWlanEventScanLifecycle(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)
	m.LinkChange(rtnl.ActionNew, ethPayload(3, "wlan0", unix.IFF_UP))
	log.calls = nil

	m.WlanEvent(wifi.Event{Cmd: "TRIGGER_SCAN", Ifindex: 3})
	require.NotNil(t, m.Link(3).Wlan)
	assert.Equal(t, "scanning", m.Link(3).Wlan.ScanState)

	m.WlanEvent(wifi.Event{
		Cmd:     "NEW_SCAN_RESULTS",
		Ifindex: 3,
		HasScan: true,
		SSIDs: []wifi.BSS{
			{SSID: "Zeta", Status: "no status"},
			{SSID: "HomeNet", Status: "Connected"},
			{SSID: "Alpha", Status: "no status"},
		},
	})
	wlan := m.Link(3).Wlan
	assert.Equal(t, "", wlan.ScanState)
	assert.Equal(t, "HomeNet", wlan.SSID)
	assert.Equal(t, []string{"Alpha", "HomeNet", "Zeta"}, wlan.VisibleSSIDs)

	m.WlanEvent(wifi.Event{Cmd: "DISCONNECT", Ifindex: 3})
	assert.Equal(t, "", m.Link(3).Wlan.SSID)

	// Every wireless mutation is still an ordinary link update.
	assert.Equal(t, []string{"update_link(3)", "update_link(3)", "update_link(3)"}, log.calls)
}

func TestWlanAssociateWithoutScan(t *testing.T) {
	m := NewMirror(&callLog{}, nil)
	m.LinkChange(rtnl.ActionNew, ethPayload(3, "wlan0", unix.IFF_UP))

	m.WlanEvent(wifi.Event{
		Cmd:     "ASSOCIATE",
		Ifindex: 3,
		HasScan: true,
		SSIDs:   []wifi.BSS{{SSID: "HomeNet", Status: "Connected"}},
	})
	assert.Equal(t, "HomeNet", m.Link(3).Wlan.SSID)
}

func TestWlanEventForUnknownLinkIgnored(t *testing.T) {
	log := &callLog{}
	m := NewMirror(log, nil)
	m.WlanEvent(wifi.Event{Cmd: "ASSOCIATE", Ifindex: 42})
	assert.Empty(t, log.calls)
}
