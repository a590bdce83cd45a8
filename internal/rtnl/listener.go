package rtnl

import (
	"context"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/netmirror/internal/clock"
	"grimm.is/netmirror/internal/logging"
	"grimm.is/netmirror/internal/metrics"
)

// Observer receives normalized change events from the listener, one
// callback per entity type.
type Observer interface {
	LinkChange(action Action, data LinkPayload)
	AddrChange(action Action, data AddrPayload)
	RouteChange(action Action, data RoutePayload)
}

// BatchObserver is optionally implemented by an Observer that wants to
// coalesce the calls produced by one wake-up of the event loop.
type BatchObserver interface {
	BatchStart()
	BatchEnd()
}

const updateChanSize = 1024

// Listener owns the rtnetlink subscriptions and the per-entity caches.
// It classifies every inbound message as NEW, CHANGE, DEL or a silent
// refresh, and reports the first three to the observer.
//
// All cache access happens on the goroutine running Run; there is no
// other mutation path.
type Listener struct {
	log      *logging.Logger
	nl       Netlinker
	observer Observer
	clk      clock.Clock

	links  *Cache[LinkKey, LinkMsg]
	addrs  *Cache[AddrKey, AddrMsg]
	routes *Cache[RouteKey, RouteMsg]

	linkCh  chan netlink.LinkUpdate
	addrCh  chan netlink.AddrUpdate
	routeCh chan netlink.RouteUpdate
	errCh   chan error
	done    chan struct{}
}

// NewListener creates a listener. Call Start to bind the subscriptions
// and load the initial state, then Run to process live updates.
func NewListener(nl Netlinker, observer Observer, log *logging.Logger) *Listener {
	if log == nil {
		log = logging.Default()
	}
	return &Listener{
		log:      log.WithComponent("rtnl"),
		nl:       nl,
		observer: observer,
		clk:      &clock.RealClock{},
		links:    NewLinkCache(),
		addrs:    NewAddrCache(),
		routes:   NewRouteCache(),
		linkCh:   make(chan netlink.LinkUpdate, updateChanSize),
		addrCh:   make(chan netlink.AddrUpdate, updateChanSize),
		routeCh:  make(chan netlink.RouteUpdate, updateChanSize),
		errCh:    make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Start joins the link, address and route notification groups and then
// performs the initial full-state dump. During the dump CHANGE results
// are suppressed: the consumer has no prior state for them to correct.
// Subscription failure is fatal; everything after it is message-local.
func (l *Listener) Start() error {
	errCb := func(err error) {
		select {
		case l.errCh <- err:
		default:
		}
	}
	if err := l.nl.LinkSubscribe(l.linkCh, l.done, errCb); err != nil {
		return fmt.Errorf("link subscribe: %w", err)
	}
	if err := l.nl.AddrSubscribe(l.addrCh, l.done, errCb); err != nil {
		return fmt.Errorf("addr subscribe: %w", err)
	}
	if err := l.nl.RouteSubscribe(l.routeCh, l.done, errCb); err != nil {
		return fmt.Errorf("route subscribe: %w", err)
	}
	return l.dump()
}

func (l *Listener) dump() error {
	started := l.clk.Now()
	links, err := l.nl.LinkList()
	if err != nil {
		return fmt.Errorf("link dump: %w", err)
	}
	for _, link := range links {
		l.handleLink(LinkMsgFrom(link, unix.AF_UNSPEC, 0), false, false)
	}
	addrs, err := l.nl.AddrList(netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("addr dump: %w", err)
	}
	for _, addr := range addrs {
		l.handleAddr(AddrMsgFromAddr(addr), false, false)
	}
	routes, err := l.nl.RouteListAllTables(netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("route dump: %w", err)
	}
	for _, route := range routes {
		l.handleRoute(RouteMsgFromRoute(route), false, false)
	}
	l.log.Info("initial state loaded",
		"links", l.links.Len(), "addrs", l.addrs.Len(), "routes", l.routes.Len(),
		"elapsed", l.clk.Since(started))
	return nil
}

// Stop releases the subscriptions. Closing the sockets is sufficient;
// nothing asynchronous is in flight.
func (l *Listener) Stop() {
	close(l.done)
}

// Run processes live updates until the context is cancelled. Each
// wake-up drains every queued message before handing control back, so
// the observer sees one batch per burst.
func (l *Listener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-l.errCh:
			l.log.Warn("subscription error", "err", err)
		case u, ok := <-l.linkCh:
			if !ok {
				return fmt.Errorf("link subscription closed")
			}
			l.drainBatch(func() { l.handleLinkUpdate(u) })
		case u, ok := <-l.addrCh:
			if !ok {
				return fmt.Errorf("addr subscription closed")
			}
			l.drainBatch(func() { l.handleAddrUpdate(u) })
		case u, ok := <-l.routeCh:
			if !ok {
				return fmt.Errorf("route subscription closed")
			}
			l.drainBatch(func() { l.handleRouteUpdate(u) })
		}
	}
}

// drainBatch processes the first message of a wake-up plus everything
// else already queued, bracketed by the observer's batch scope.
func (l *Listener) drainBatch(first func()) {
	if b, ok := l.observer.(BatchObserver); ok {
		b.BatchStart()
		defer b.BatchEnd()
	}
	first()
	for {
		select {
		case u := <-l.linkCh:
			l.handleLinkUpdate(u)
		case u := <-l.addrCh:
			l.handleAddrUpdate(u)
		case u := <-l.routeCh:
			l.handleRouteUpdate(u)
		default:
			return
		}
	}
}

func (l *Listener) handleLinkUpdate(u netlink.LinkUpdate) {
	if u.Link == nil || u.Link.Attrs() == nil || u.Link.Attrs().Index == 0 {
		l.log.Debug("dropping malformed link message")
		return
	}
	l.handleLink(LinkMsgFromUpdate(u), u.Header.Type == unix.RTM_DELLINK, true)
}

func (l *Listener) handleAddrUpdate(u netlink.AddrUpdate) {
	msg := AddrMsgFromUpdate(u)
	if !msg.Local.IsValid() {
		l.log.Debug("dropping malformed addr message", "ifindex", u.LinkIndex)
		return
	}
	l.handleAddr(msg, !u.NewAddr, true)
}

func (l *Listener) handleRouteUpdate(u netlink.RouteUpdate) {
	l.handleRoute(RouteMsgFromRoute(u.Route), u.Type == unix.RTM_DELROUTE, true)
}

// classify drives a message through its cache and decides the event.
// Deletions are removals (no-op when absent). A creation for an unknown
// identity is NEW; a known identity that compares equal is silently
// absorbed (the cache is still refreshed so volatile fields stay
// current); otherwise the change hook fires and the result is CHANGE.
func classify[K comparable, M any](c *Cache[K, M], key K, msg M, del bool, onChange func(old, new M)) Action {
	if del {
		c.Delete(key)
		return ActionDel
	}
	old, ok := c.Get(key)
	if !ok {
		c.Set(key, msg)
		return ActionNew
	}
	if c.Equal(old, msg) {
		c.Set(key, msg)
		return actionDiscard
	}
	if onChange != nil {
		onChange(old, msg)
	}
	c.Set(key, msg)
	return ActionChange
}

func (l *Listener) handleLink(msg LinkMsg, del, emitChange bool) {
	action := classify(l.links, LinkKeyOf(msg), msg, del, l.onLinkChange)
	metrics.ObserveCacheSize("link", l.links.Len())
	if l.skip("link", action, emitChange) {
		return
	}
	l.observer.LinkChange(action, LinkEventData(msg))
}

func (l *Listener) handleAddr(msg AddrMsg, del, emitChange bool) {
	action := classify(l.addrs, AddrKeyOf(msg), msg, del, nil)
	metrics.ObserveCacheSize("addr", l.addrs.Len())
	if l.skip("addr", action, emitChange) {
		return
	}
	l.observer.AddrChange(action, AddrEventData(msg))
}

func (l *Listener) handleRoute(msg RouteMsg, del, emitChange bool) {
	action := classify(l.routes, RouteKeyOf(msg), msg, del, nil)
	metrics.ObserveCacheSize("route", l.routes.Len())
	if l.skip("route", action, emitChange) {
		return
	}
	l.observer.RouteChange(action, RouteEventData(msg))
}

// skip decides whether a classified result reaches the observer.
func (l *Listener) skip(entity string, action Action, emitChange bool) bool {
	if action == actionDiscard {
		metrics.CountDiscard(entity)
		return true
	}
	if action == ActionChange && !emitChange {
		return true
	}
	metrics.CountEvent(entity, string(action))
	return false
}

// onLinkChange compensates for the kernel not sending RTM_DELROUTE for
// routes that become unreachable when their interface goes down (see
// libnl issue 340). Every cached route egressing through the link is
// synthetically deleted, and the deletions are delivered before the
// link's own CHANGE event.
func (l *Listener) onLinkChange(old, new LinkMsg) {
	if new.Up() || !old.Up() {
		return
	}
	ifindex := new.Index

	// Collect first so the iteration doesn't fight the removals.
	var stale []RouteKey
	l.routes.ForEach(func(key RouteKey, route RouteMsg) {
		if route.EgressIfindex() == ifindex {
			stale = append(stale, key)
		}
	})
	for _, key := range stale {
		route, ok := l.routes.Get(key)
		if !ok {
			continue
		}
		l.routes.Delete(key)
		metrics.CountEvent("route", string(ActionDel))
		l.observer.RouteChange(ActionDel, RouteEventData(route))
	}
	if len(stale) > 0 {
		l.log.Debug("link down, dropped dependent routes",
			"ifindex", ifindex, "routes", len(stale))
	}
}

// SetLinkUp asks the kernel to bring an interface up. Used by the
// mirror when a wireless interface first appears down; failures are
// recoverable for the caller.
func (l *Listener) SetLinkUp(ifindex int) error {
	return l.nl.LinkSetUp(ifindex)
}
