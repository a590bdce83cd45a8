package rtnl

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// Netlinker abstracts the netlink transport so the listener can be
// exercised against a mock in unit tests.
type Netlinker interface {
	LinkList() ([]netlink.Link, error)
	AddrList(family int) ([]netlink.Addr, error)
	RouteListAllTables(family int) ([]netlink.Route, error)

	LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}, errCb func(error)) error
	AddrSubscribe(ch chan<- netlink.AddrUpdate, done <-chan struct{}, errCb func(error)) error
	RouteSubscribe(ch chan<- netlink.RouteUpdate, done <-chan struct{}, errCb func(error)) error

	LinkSetUp(ifindex int) error
}

// RealNetlinker talks to the kernel through vishvananda/netlink,
// optionally inside a foreign network namespace.
type RealNetlinker struct {
	ns     *netns.NsHandle
	handle *netlink.Handle
}

// NewNetlinker creates a transport for the current network namespace.
func NewNetlinker() (*RealNetlinker, error) {
	handle, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("netlink handle: %w", err)
	}
	return &RealNetlinker{handle: handle}, nil
}

// NewNetlinkerAt creates a transport bound to the network namespace at
// the given path (e.g. /run/netns/foo).
func NewNetlinkerAt(nsPath string) (*RealNetlinker, error) {
	ns, err := netns.GetFromPath(nsPath)
	if err != nil {
		return nil, fmt.Errorf("open netns %s: %w", nsPath, err)
	}
	handle, err := netlink.NewHandleAt(ns)
	if err != nil {
		ns.Close()
		return nil, fmt.Errorf("netlink handle in %s: %w", nsPath, err)
	}
	return &RealNetlinker{ns: &ns, handle: handle}, nil
}

// Close releases the handle and any namespace reference.
func (r *RealNetlinker) Close() {
	r.handle.Close()
	if r.ns != nil {
		r.ns.Close()
	}
}

func (r *RealNetlinker) LinkList() ([]netlink.Link, error) {
	return r.handle.LinkList()
}

func (r *RealNetlinker) AddrList(family int) ([]netlink.Addr, error) {
	return r.handle.AddrList(nil, family)
}

// RouteListAllTables dumps routes from every routing table, not just
// the main table.
func (r *RealNetlinker) RouteListAllTables(family int) ([]netlink.Route, error) {
	filter := &netlink.Route{Table: 0}
	return r.handle.RouteListFiltered(family, filter, netlink.RT_FILTER_TABLE)
}

func (r *RealNetlinker) LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}, errCb func(error)) error {
	return netlink.LinkSubscribeWithOptions(ch, done, netlink.LinkSubscribeOptions{
		Namespace:     r.ns,
		ErrorCallback: errCb,
	})
}

func (r *RealNetlinker) AddrSubscribe(ch chan<- netlink.AddrUpdate, done <-chan struct{}, errCb func(error)) error {
	return netlink.AddrSubscribeWithOptions(ch, done, netlink.AddrSubscribeOptions{
		Namespace:     r.ns,
		ErrorCallback: errCb,
	})
}

func (r *RealNetlinker) RouteSubscribe(ch chan<- netlink.RouteUpdate, done <-chan struct{}, errCb func(error)) error {
	return netlink.RouteSubscribeWithOptions(ch, done, netlink.RouteSubscribeOptions{
		Namespace:     r.ns,
		ErrorCallback: errCb,
	})
}

func (r *RealNetlinker) LinkSetUp(ifindex int) error {
	link, err := r.handle.LinkByIndex(ifindex)
	if err != nil {
		return err
	}
	return r.handle.LinkSetUp(link)
}
