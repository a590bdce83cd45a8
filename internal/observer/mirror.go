package observer

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"grimm.is/netmirror/internal/hwinfo"
	"grimm.is/netmirror/internal/logging"
	"grimm.is/netmirror/internal/metrics"
	"grimm.is/netmirror/internal/rtnl"
	"grimm.is/netmirror/internal/wifi"
)

// Hardware enriches a link with sysfs-derived classification. The
// lookups are best-effort; an empty type means unknown.
type Hardware interface {
	IfaceType(name string) string
	BondInfo(name string) hwinfo.Bond
	BridgeInfo(name string) hwinfo.Bridge
}

// LinkControl requests link flag changes. Failures are recoverable.
type LinkControl interface {
	SetLinkUp(ifindex int) error
}

// ScanControl triggers wireless scans. Failures (e.g. a scan already
// in flight) are recoverable.
type ScanControl interface {
	TriggerScan(ifindex int) error
}

// Mirror assembles Link and route records from the rtnetlink event
// stream and the wireless correlator, and forwards inventory changes to
// a Receiver. It implements rtnl.Observer, rtnl.BatchObserver and
// wifi.Sink.
//
// The rtnetlink listener and the wireless correlator run on separate
// goroutines, so all state is mutex-guarded.
type Mirror struct {
	log      *logging.Logger
	receiver Receiver
	hw       Hardware
	linkctl  LinkControl
	scanner  ScanControl

	mu        sync.Mutex
	links     map[int]*Link
	prevFlags map[int]uint32
	routes    map[string]rtnl.RoutePayload

	batch    *rtnl.Batch
	recorded int
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithHardware attaches the sysfs prober used for type classification.
func WithHardware(hw Hardware) Option {
	return func(m *Mirror) { m.hw = hw }
}

// WithLinkControl enables requesting link-up for wireless interfaces
// that first appear down.
func WithLinkControl(lc LinkControl) Option {
	return func(m *Mirror) { m.linkctl = lc }
}

// WithScanControl enables scan triggering on wireless link-up edges.
func WithScanControl(sc ScanControl) Option {
	return func(m *Mirror) { m.scanner = sc }
}

// NewMirror creates a mirror delivering to the given receiver.
func NewMirror(receiver Receiver, log *logging.Logger, opts ...Option) *Mirror {
	if log == nil {
		log = logging.Default()
	}
	m := &Mirror{
		log:       log.WithComponent("observer"),
		receiver:  receiver,
		links:     make(map[int]*Link),
		prevFlags: make(map[int]uint32),
		routes:    make(map[string]rtnl.RoutePayload),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetScanControl attaches the scan control after construction; the
// wireless correlator needs the mirror as its sink, so the two are
// wired in two steps.
func (m *Mirror) SetScanControl(sc ScanControl) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanner = sc
}

// SetLinkControl attaches the link control after construction; the
// rtnetlink listener needs the mirror as its observer, so the two are
// wired in two steps.
func (m *Mirror) SetLinkControl(lc LinkControl) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkctl = lc
}

// BatchStart opens a coalescing scope around one event-loop wake-up.
func (m *Mirror) BatchStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch = rtnl.NewBatch()
	m.recorded = 0
}

// BatchEnd replays the coalesced receiver calls and closes the scope.
func (m *Mirror) BatchEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batch == nil {
		return
	}
	if dropped := m.recorded - m.batch.Len(); dropped > 0 {
		metrics.CountCoalesced(dropped)
	}
	batch := m.batch
	m.batch = nil
	batch.Flush()
}

// record queues a link-scoped receiver call, or emits it immediately
// when no batch is open.
func (m *Mirror) record(ifindex int, action rtnl.Action) {
	emit := func(a rtnl.Action) { m.deliverLink(ifindex, a) }
	if m.batch == nil {
		emit(action)
		return
	}
	m.recorded++
	m.batch.Record("link", ifindex, action, emit)
}

// recordRoute queues a route call; route changes never coalesce.
func (m *Mirror) recordRoute(action rtnl.Action, payload rtnl.RoutePayload) {
	emit := func(a rtnl.Action) { m.receiver.RouteChange(a, payload) }
	if m.batch == nil {
		emit(action)
		return
	}
	m.recorded++
	m.batch.RecordEach("route", action, emit)
}

func (m *Mirror) deliverLink(ifindex int, action rtnl.Action) {
	switch action {
	case rtnl.ActionNew:
		m.receiver.NewLink(ifindex, m.links[ifindex])
	case rtnl.ActionChange:
		m.receiver.UpdateLink(ifindex)
	case rtnl.ActionDel:
		m.receiver.DelLink(ifindex)
	}
}

// LinkChange folds a link event into the inventory.
func (m *Mirror) LinkChange(action rtnl.Action, data rtnl.LinkPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ifindex := data.Ifindex
	if action == rtnl.ActionDel {
		delete(m.links, ifindex)
		delete(m.prevFlags, ifindex)
		m.record(ifindex, rtnl.ActionDel)
		return
	}

	link, known := m.links[ifindex]
	if action == rtnl.ActionChange && !known {
		// CHANGE for a link we never saw; treat as NEW.
		action = rtnl.ActionNew
	}

	if action == rtnl.ActionNew {
		link = m.buildLink(data)
		m.links[ifindex] = link
		m.prevFlags[ifindex] = data.Flags
		m.record(ifindex, rtnl.ActionNew)

		// A wireless interface that is down cannot scan; ask for it to
		// be brought up so a later up-edge triggers one.
		if link.Type == "wlan" && data.Flags&unix.IFF_UP == 0 {
			m.requestLinkUp(ifindex)
		}
		return
	}

	prev := m.prevFlags[ifindex]
	m.applyLink(link, data)
	m.prevFlags[ifindex] = data.Flags
	m.record(ifindex, rtnl.ActionChange)

	if link.Type == "wlan" && prev&unix.IFF_UP == 0 && data.Flags&unix.IFF_UP != 0 {
		m.triggerScan(ifindex)
	}
}

func (m *Mirror) buildLink(data rtnl.LinkPayload) *Link {
	link := &Link{Addresses: []Address{}}
	m.applyLink(link, data)
	return link
}

func (m *Mirror) applyLink(link *Link, data rtnl.LinkPayload) {
	link.NetlinkData = NetlinkData{
		Ifindex: data.Ifindex,
		Flags:   data.Flags,
		ArpType: data.ArpType,
		Family:  data.Family,
		Name:    data.Name,
	}
	if data.IsVlan {
		link.Vlan = &Vlan{ID: data.VlanID, Link: data.VlanLink}
	} else {
		link.Vlan = nil
	}
	if m.hw != nil {
		if t := m.hw.IfaceType(data.Name); t != "" {
			link.Type = t
		}
		link.Bond = m.hw.BondInfo(data.Name)
		link.Bridge = m.hw.BridgeInfo(data.Name)
	}
	if link.Type == "" {
		link.Type = "unknown"
	}
}

// AddrChange attributes an address event to its owning link and reports
// it as an update of that link. Events for unknown links cannot be
// attributed and are dropped.
func (m *Mirror) AddrChange(action rtnl.Action, data rtnl.AddrPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[data.Ifindex]
	if !ok {
		m.log.Debug("address event for unknown link", "ifindex", data.Ifindex)
		return
	}

	addr := Address{
		Address: data.Local,
		Family:  data.Family,
		Source:  addrSource(data.Flags),
		Scope:   data.Scope,
	}

	idx := -1
	for i, a := range link.Addresses {
		if a.Address == addr.Address && a.Family == addr.Family {
			idx = i
			break
		}
	}
	switch {
	case action == rtnl.ActionDel && idx >= 0:
		link.Addresses = append(link.Addresses[:idx], link.Addresses[idx+1:]...)
	case action == rtnl.ActionDel:
		return
	case idx >= 0:
		link.Addresses[idx] = addr
	default:
		link.Addresses = append(link.Addresses, addr)
	}
	m.record(data.Ifindex, rtnl.ActionChange)
}

// addrSource classifies how an address was configured: the permanent
// flag means statically assigned, anything else is presumed leased.
func addrSource(flags int) string {
	if flags&unix.IFA_F_PERMANENT != 0 {
		return "static"
	}
	return "dhcp"
}

// RouteChange folds a route event into the inventory.
func (m *Mirror) RouteChange(action rtnl.Action, payload rtnl.RoutePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := routeKey(payload)
	if action == rtnl.ActionDel {
		delete(m.routes, key)
	} else {
		m.routes[key] = payload
	}
	m.recordRoute(action, payload)
}

// routeKey mirrors the cache identity: family, table, destination and
// priority (egress interface excluded).
func routeKey(p rtnl.RoutePayload) string {
	return fmt.Sprintf("%d/%d/%s/%d", p.Family, p.Table, p.Dst, p.Priority)
}

// WlanEvent folds a wireless notification into the owning link's
// wireless sub-state and reports it as a link update.
func (m *Mirror) WlanEvent(ev wifi.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[ev.Ifindex]
	if !ok {
		m.log.Debug("wireless event for unknown link", "ifindex", ev.Ifindex, "cmd", ev.Cmd)
		return
	}
	if link.Wlan == nil {
		link.Wlan = &Wlan{VisibleSSIDs: []string{}}
	}

	switch ev.Cmd {
	case "TRIGGER_SCAN":
		link.Wlan.ScanState = "scanning"

	case "NEW_SCAN_RESULTS":
		if ev.HasScan {
			link.Wlan.VisibleSSIDs = visibleSSIDs(ev.SSIDs)
			link.Wlan.SSID = connectedSSID(ev.SSIDs)
		}
		link.Wlan.ScanState = ""

	case "ASSOCIATE", "NEW_INTERFACE", "CONNECT":
		// The resolved set carries only networks with a station status;
		// an existing association shows up without waiting for a scan.
		if ev.HasScan && len(ev.SSIDs) > 0 {
			link.Wlan.SSID = ev.SSIDs[0].SSID
		}

	case "DISCONNECT":
		link.Wlan.SSID = ""
	}

	m.record(ev.Ifindex, rtnl.ActionChange)
}

func visibleSSIDs(bss []wifi.BSS) []string {
	seen := make(map[string]bool, len(bss))
	ssids := make([]string, 0, len(bss))
	for _, b := range bss {
		if b.SSID == "" || seen[b.SSID] {
			continue
		}
		seen[b.SSID] = true
		ssids = append(ssids, b.SSID)
	}
	sort.Strings(ssids)
	return ssids
}

func connectedSSID(bss []wifi.BSS) string {
	for _, b := range bss {
		if b.Status == "Connected" {
			return b.SSID
		}
	}
	return ""
}

func (m *Mirror) requestLinkUp(ifindex int) {
	if m.linkctl == nil {
		return
	}
	if err := m.linkctl.SetLinkUp(ifindex); err != nil {
		m.log.Debug("bringing wireless link up failed", "ifindex", ifindex, "err", err)
	}
}

func (m *Mirror) triggerScan(ifindex int) {
	if m.scanner == nil {
		return
	}
	if err := m.scanner.TriggerScan(ifindex); err != nil {
		m.log.Debug("scan trigger failed", "ifindex", ifindex, "err", err)
	}
}

// Link returns the current record for an interface, or nil.
func (m *Mirror) Link(ifindex int) *Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[ifindex]
}
