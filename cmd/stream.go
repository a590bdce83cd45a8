package cmd

import (
	"encoding/json"
	"io"
	"sync"

	"grimm.is/netmirror/internal/observer"
	"grimm.is/netmirror/internal/rtnl"
)

// streamReceiver writes every receiver call as one JSON line. Link and
// route events may arrive from different goroutines.
type streamReceiver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newStreamReceiver(w io.Writer) *streamReceiver {
	return &streamReceiver{enc: json.NewEncoder(w)}
}

type streamEvent struct {
	Event   string             `json:"event"`
	Ifindex int                `json:"ifindex,omitempty"`
	Link    *observer.Link     `json:"link,omitempty"`
	Action  string             `json:"action,omitempty"`
	Route   *rtnl.RoutePayload `json:"route,omitempty"`
}

func (s *streamReceiver) emit(ev streamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc.Encode(ev)
}

func (s *streamReceiver) NewLink(ifindex int, link *observer.Link) {
	s.emit(streamEvent{Event: "new_link", Ifindex: ifindex, Link: link})
}

func (s *streamReceiver) UpdateLink(ifindex int) {
	s.emit(streamEvent{Event: "update_link", Ifindex: ifindex})
}

func (s *streamReceiver) DelLink(ifindex int) {
	s.emit(streamEvent{Event: "del_link", Ifindex: ifindex})
}

func (s *streamReceiver) RouteChange(action rtnl.Action, payload rtnl.RoutePayload) {
	s.emit(streamEvent{Event: "route_change", Action: string(action), Route: &payload})
}
