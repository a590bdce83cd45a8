package wifi

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"

	"grimm.is/netmirror/internal/logging"
	"grimm.is/netmirror/internal/metrics"
)

// ErrUnsupported means the kernel has no nl80211 family, i.e. no
// wireless stack. Callers should treat it as "feature absent", not as a
// failure.
var ErrUnsupported = errors.New("nl80211 not supported on this system")

// BSS is one scan result: the network's SSID and the local station's
// status towards it.
type BSS struct {
	SSID   string `json:"ssid"`
	Status string `json:"status"`
}

// Event is a resolved nl80211 notification. SSIDs is populated only
// when HasScan is set: NEW_SCAN_RESULTS carries everything visible,
// ASSOCIATE and NEW_INTERFACE carry only networks with a station
// status. Ifindex is -1 when the notification did not name an
// interface.
type Event struct {
	Cmd     string
	Ifindex int
	SSIDs   []BSS
	HasScan bool
}

// Sink consumes resolved wireless events.
type Sink interface {
	WlanEvent(Event)
}

// conn is the slice of genetlink.Conn the correlator uses.
type conn interface {
	GetFamily(name string) (genetlink.Family, error)
	JoinGroup(group uint32) error
	Execute(m genetlink.Message, family uint16, flags netlink.HeaderFlags) ([]genetlink.Message, error)
	Receive() ([]genetlink.Message, []netlink.Message, error)
	Close() error
}

// Correlator subscribes to the nl80211 scan and mlme multicast groups
// and turns raw notifications into Events, resolving scan results
// inline where the notification calls for it.
//
// Two sockets are held: mcast joins the groups and is only ever read,
// req carries the request/response exchanges (interface dumps, scan
// triggers, scan dumps). A socket joined to multicast groups must not
// also run request/response traffic, or the receive loop steals the
// replies while the exchanges swallow notifications.
type Correlator struct {
	log      *logging.Logger
	sink     Sink
	mcast    conn
	req      conn
	familyID uint16
}

// Dial opens the generic netlink sockets, resolves the nl80211 family
// and joins the scan and mlme groups. Returns ErrUnsupported when the
// family does not exist.
func Dial(sink Sink, log *logging.Logger) (*Correlator, error) {
	mcast, err := genetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("generic netlink dial: %w", err)
	}
	req, err := genetlink.Dial(nil)
	if err != nil {
		mcast.Close()
		return nil, fmt.Errorf("generic netlink dial: %w", err)
	}
	cr, err := newCorrelator(mcast, req, sink, log)
	if err != nil {
		mcast.Close()
		req.Close()
		return nil, err
	}
	return cr, nil
}

func newCorrelator(mcast, req conn, sink Sink, log *logging.Logger) (*Correlator, error) {
	if log == nil {
		log = logging.Default()
	}
	family, err := req.GetFamily(familyName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("resolve %s family: %w", familyName, err)
	}

	joined := 0
	for _, group := range family.Groups {
		if group.Name != groupScan && group.Name != groupMLME {
			continue
		}
		if err := mcast.JoinGroup(group.ID); err != nil {
			return nil, fmt.Errorf("join %s group: %w", group.Name, err)
		}
		joined++
	}
	if joined == 0 {
		return nil, fmt.Errorf("%s family exposes neither scan nor mlme group", familyName)
	}

	return &Correlator{
		log:      log.WithComponent("wifi"),
		sink:     sink,
		mcast:    mcast,
		req:      req,
		familyID: family.ID,
	}, nil
}

// Start dumps the existing wireless interfaces. Each one arrives at the
// sink as a NEW_INTERFACE event, mirroring what a hotplug would send.
func (c *Correlator) Start() error {
	req := genetlink.Message{
		Header: genetlink.Header{Command: cmdGetInterface},
	}
	msgs, err := c.req.Execute(req, c.familyID, netlink.Request|netlink.Dump)
	if err != nil {
		return fmt.Errorf("interface dump: %w", err)
	}
	for _, msg := range msgs {
		c.handle(msg)
	}
	return nil
}

// Run receives multicast notifications until the context is cancelled.
// Cancellation closes both sockets to unblock the receive.
func (c *Correlator) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.mcast.Close()
		c.req.Close()
	}()
	for {
		msgs, _, err := c.mcast.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("nl80211 receive: %w", err)
		}
		for _, msg := range msgs {
			c.handle(msg)
		}
	}
}

// TriggerScan asks the kernel to scan on the given interface. The
// results arrive later as a NEW_SCAN_RESULTS notification.
func (c *Correlator) TriggerScan(ifindex int) error {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	data, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encode scan request: %w", err)
	}
	req := genetlink.Message{
		Header: genetlink.Header{Command: cmdTriggerScan},
		Data:   data,
	}
	if _, err := c.req.Execute(req, c.familyID, netlink.Request|netlink.Acknowledge); err != nil {
		return fmt.Errorf("trigger scan on ifindex %d: %w", ifindex, err)
	}
	metrics.CountScan()
	return nil
}

// ScanResults dumps the BSS list for an interface. With onlyConnected
// set, networks without a station status are skipped.
func (c *Correlator) ScanResults(ifindex int, onlyConnected bool) ([]BSS, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	data, err := ae.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode scan dump: %w", err)
	}
	req := genetlink.Message{
		Header: genetlink.Header{Command: cmdGetScan},
		Data:   data,
	}
	msgs, err := c.req.Execute(req, c.familyID, netlink.Request|netlink.Dump)
	if err != nil {
		return nil, fmt.Errorf("scan dump on ifindex %d: %w", ifindex, err)
	}

	var results []BSS
	for _, msg := range msgs {
		bss, ok, err := parseBSS(msg.Data)
		if err != nil {
			c.log.Debug("skipping unparsable scan entry", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if onlyConnected && !bss.hasStatus {
			continue
		}
		if bss.ssid == "" {
			continue
		}
		results = append(results, BSS{SSID: bss.ssid, Status: statusName(bss.status)})
	}
	return results, nil
}

// handle resolves one notification and forwards it to the sink.
// Resolution failures degrade to an event without scan data; a stale
// ifindex between notification and dump is routine.
func (c *Correlator) handle(msg genetlink.Message) {
	cmd := msg.Header.Command
	ifindex := decodeIfindex(msg.Data)
	metrics.CountWifiEvent(cmdName(cmd))

	ev := Event{Cmd: cmdName(cmd), Ifindex: ifindex}
	if ifindex >= 0 {
		switch cmd {
		case cmdNewScanResults:
			ev.SSIDs, ev.HasScan = c.resolve(ifindex, false)
		case cmdAssociate, cmdNewInterface:
			ev.SSIDs, ev.HasScan = c.resolve(ifindex, true)
		}
	}
	c.sink.WlanEvent(ev)
}

func (c *Correlator) resolve(ifindex int, onlyConnected bool) ([]BSS, bool) {
	ssids, err := c.ScanResults(ifindex, onlyConnected)
	if err != nil {
		c.log.Debug("scan resolution failed", "ifindex", ifindex, "err", err)
		return nil, false
	}
	return ssids, true
}

// decodeIfindex extracts NL80211_ATTR_IFINDEX, or -1 when absent.
func decodeIfindex(data []byte) int {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return -1
	}
	ifindex := -1
	for ad.Next() {
		if ad.Type() == attrIfindex {
			ifindex = int(ad.Uint32())
		}
	}
	if ad.Err() != nil {
		return -1
	}
	return ifindex
}

type bssEntry struct {
	ssid      string
	status    uint32
	hasStatus bool
}

// parseBSS extracts the SSID and station status out of one GET_SCAN
// response. The second return is false when the message carries no BSS
// attribute.
func parseBSS(data []byte) (bssEntry, bool, error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return bssEntry{}, false, err
	}

	var entry bssEntry
	found := false
	for ad.Next() {
		if ad.Type() != attrBSS {
			continue
		}
		found = true
		ad.Nested(func(nad *netlink.AttributeDecoder) error {
			for nad.Next() {
				switch nad.Type() {
				case bssStatus:
					entry.status = nad.Uint32()
					entry.hasStatus = true
				case bssInformationElements:
					entry.ssid = ssidFromIEs(nad.Bytes())
				}
			}
			return nad.Err()
		})
	}
	if err := ad.Err(); err != nil {
		return bssEntry{}, false, err
	}
	return entry, found, nil
}

// ssidFromIEs walks the information element TLV chain and returns the
// SSID element's payload, or "" when absent or truncated.
func ssidFromIEs(ies []byte) string {
	for len(ies) >= 2 {
		id, length := ies[0], int(ies[1])
		if len(ies) < 2+length {
			return ""
		}
		if id == ieSSID {
			return string(ies[2 : 2+length])
		}
		ies = ies[2+length:]
	}
	return ""
}
