package observer

import (
	"grimm.is/netmirror/internal/rtnl"
)

// Receiver consumes the assembled inventory changes. Address changes
// arrive as UpdateLink of the owning interface. Implementations are
// free to ignore any call.
type Receiver interface {
	NewLink(ifindex int, link *Link)
	UpdateLink(ifindex int)
	DelLink(ifindex int)
	RouteChange(action rtnl.Action, payload rtnl.RoutePayload)
}

// NopReceiver ignores everything. Useful when only the final snapshot
// is of interest.
type NopReceiver struct{}

func (NopReceiver) NewLink(int, *Link) {}

func (NopReceiver) UpdateLink(int) {}

func (NopReceiver) DelLink(int) {}

func (NopReceiver) RouteChange(rtnl.Action, rtnl.RoutePayload) {}

// Collector accumulates receiver calls into an inventory, e.g. when
// replaying a snapshot.
type Collector struct {
	Links  map[int]*Link
	Routes []rtnl.RoutePayload
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{Links: make(map[int]*Link)}
}

func (c *Collector) NewLink(ifindex int, link *Link) {
	c.Links[ifindex] = link
}

func (c *Collector) UpdateLink(int) {}

func (c *Collector) DelLink(ifindex int) {
	delete(c.Links, ifindex)
}

func (c *Collector) RouteChange(action rtnl.Action, payload rtnl.RoutePayload) {
	if action == rtnl.ActionDel {
		for i, r := range c.Routes {
			if r == payload {
				c.Routes = append(c.Routes[:i], c.Routes[i+1:]...)
				return
			}
		}
		return
	}
	c.Routes = append(c.Routes, payload)
}
