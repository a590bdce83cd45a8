package rtnl

// Batch collapses redundant receiver calls recorded during one wake-up
// of the event loop. A udev rename right after an interface appears
// would otherwise replay as NEW followed by CHANGE, exposing the
// intermediate state to the consumer.
//
// Merge rules per coalescing key:
//
//	NEW then CHANGE  -> NEW with the change's data
//	NEW then DEL     -> dropped entirely
//	anything else    -> latest action with the latest data
//
// Calls recorded with RecordEach never merge; each gets a unique key.
// Replay happens in first-seen key order.
type Batch struct {
	order   []batchKey
	calls   map[batchKey]*batchCall
	nextSeq int
}

type batchKey struct {
	kind string
	key  any
}

type batchCall struct {
	action Action
	emit   func(Action)
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{calls: make(map[batchKey]*batchCall)}
}

// Record registers a coalescable call. kind plus key identify the
// logical object (e.g. "link" + ifindex); emit replays the call with
// the merged action and captures the call's data.
func (b *Batch) Record(kind string, key any, action Action, emit func(Action)) {
	k := batchKey{kind: kind, key: key}
	prev, ok := b.calls[k]
	if !ok {
		b.order = append(b.order, k)
		b.calls[k] = &batchCall{action: action, emit: emit}
		return
	}
	switch {
	case prev.action == ActionNew && action == ActionChange:
		// Object appeared already in its final observed form.
		prev.emit = emit
	case prev.action == ActionNew && action == ActionDel:
		// Never existed from the consumer's perspective. The order slot
		// goes too, so a reappearance queues at its new position.
		delete(b.calls, k)
		b.dropOrder(k)
	default:
		prev.action = action
		prev.emit = emit
	}
}

func (b *Batch) dropOrder(k batchKey) {
	for i, o := range b.order {
		if o == k {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// RecordEach registers a call that must not coalesce. It is queued
// under a key unique to this call, preserving first-seen order
// relative to everything else in the batch.
func (b *Batch) RecordEach(kind string, action Action, emit func(Action)) {
	b.nextSeq++
	k := batchKey{kind: kind, key: b.nextSeq}
	b.order = append(b.order, k)
	b.calls[k] = &batchCall{action: action, emit: emit}
}

// Len returns the number of calls the batch would replay.
func (b *Batch) Len() int {
	return len(b.calls)
}

// Flush replays the retained calls in first-seen order and resets the
// batch.
func (b *Batch) Flush() {
	for _, k := range b.order {
		call, ok := b.calls[k]
		if !ok {
			continue
		}
		delete(b.calls, k)
		call.emit(call.action)
	}
	b.order = b.order[:0]
	b.nextSeq = 0
}
