package observer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"grimm.is/netmirror/internal/metrics"
	"grimm.is/netmirror/internal/rtnl"
)

// Snapshot is the persisted form of the inventory.
type Snapshot struct {
	Links  []*Link             `json:"links"`
	Routes []rtnl.RoutePayload `json:"routes"`
}

// Snapshot captures the current inventory, links ordered by ifindex and
// routes by identity key.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Links:  make([]*Link, 0, len(m.links)),
		Routes: make([]rtnl.RoutePayload, 0, len(m.routes)),
	}
	for _, link := range m.links {
		snap.Links = append(snap.Links, link)
	}
	sort.Slice(snap.Links, func(i, j int) bool {
		return snap.Links[i].Ifindex() < snap.Links[j].Ifindex()
	})
	for _, route := range m.routes {
		snap.Routes = append(snap.Routes, route)
	}
	sort.Slice(snap.Routes, func(i, j int) bool {
		return routeKey(snap.Routes[i]) < routeKey(snap.Routes[j])
	})
	return snap
}

// Export writes the snapshot as indented JSON.
func Export(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	metrics.CountSnapshot("export")
	return nil
}

// Load parses a snapshot and validates the required link fields.
func Load(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	for i, link := range snap.Links {
		if link == nil {
			return Snapshot{}, fmt.Errorf("snapshot link %d: empty record", i)
		}
		if link.NetlinkData.Ifindex == 0 {
			return Snapshot{}, fmt.Errorf("snapshot link %d: missing netlink_data.ifindex", i)
		}
		if link.Addresses == nil {
			link.Addresses = []Address{}
		}
	}
	metrics.CountSnapshot("import")
	return snap, nil
}

// Replay feeds a snapshot through a Receiver the way the live path
// would deliver it: every link as NewLink, every route as a NEW route
// change. No sockets are involved.
func Replay(snap Snapshot, receiver Receiver) {
	for _, link := range snap.Links {
		receiver.NewLink(link.Ifindex(), link)
	}
	for _, route := range snap.Routes {
		receiver.RouteChange(rtnl.ActionNew, route)
	}
}
