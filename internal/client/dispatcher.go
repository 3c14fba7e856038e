package client

import (
	"context"
	"sync"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

type changeKind int

const (
	changeConnection changeKind = iota
	changeTrack
	changeEnabled
	changeMuted
)

type changeKey struct {
	kind   changeKind
	member domain.MemberID
	track  domain.TrackID
}

// change keeps the value a flag had before the first unreported change and
// the value it has now.
type change struct {
	from, to bool
	info     TrackInfo
}

// dispatcher reports state transitions. Changes recorded while a batch is
// open, or before the previous ones were delivered, are coalesced: a flag
// that ends where it started produces no callback.
type dispatcher struct {
	cb Callbacks

	mu      sync.Mutex
	hold    int
	order   []changeKey
	pending map[changeKey]*change
	direct  []func()
	closed  *roomClosed
	notify  chan struct{}
	done    chan struct{}
}

type roomClosed struct {
	reason protocol.CloseReason
	err    error
}

func newDispatcher(cb Callbacks) *dispatcher {
	return &dispatcher{
		cb:      cb,
		pending: make(map[changeKey]*change),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (d *dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.notify:
		}
		if d.deliver() {
			return
		}
	}
}

// begin and end bracket one input; nothing is delivered in between.
func (d *dispatcher) begin() {
	d.mu.Lock()
	d.hold++
	d.mu.Unlock()
}

func (d *dispatcher) end() {
	d.mu.Lock()
	d.hold--
	ready := d.hold == 0
	d.mu.Unlock()
	if ready {
		d.wake()
	}
}

func (d *dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *dispatcher) record(key changeKey, from, to bool, info TrackInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.pending[key]; ok {
		c.to = to
		c.info = info
		return
	}
	d.pending[key] = &change{from: from, to: to, info: info}
	d.order = append(d.order, key)
}

func (d *dispatcher) connection(member domain.MemberID, open bool) {
	d.record(changeKey{kind: changeConnection, member: member}, !open, open, TrackInfo{Member: member})
}

func (d *dispatcher) track(info TrackInfo, present bool) {
	d.record(changeKey{kind: changeTrack, track: info.ID}, !present, present, info)
}

func (d *dispatcher) enabled(info TrackInfo, was bool) {
	d.record(changeKey{kind: changeEnabled, track: info.ID}, was, info.Enabled, info)
}

func (d *dispatcher) muted(info TrackInfo, was bool) {
	d.record(changeKey{kind: changeMuted, track: info.ID}, was, info.Muted, info)
}

// now queues a callback that is never coalesced.
func (d *dispatcher) now(fn func()) {
	d.mu.Lock()
	d.direct = append(d.direct, fn)
	d.mu.Unlock()
}

func (d *dispatcher) roomClosed(reason protocol.CloseReason, err error) {
	d.mu.Lock()
	if d.closed == nil {
		d.closed = &roomClosed{reason: reason, err: err}
	}
	d.mu.Unlock()
}

// deliver runs the pending callbacks and reports whether the room closed.
func (d *dispatcher) deliver() bool {
	d.mu.Lock()
	if d.hold > 0 {
		d.mu.Unlock()
		return false
	}
	order, pending, direct, closed := d.order, d.pending, d.direct, d.closed
	d.order, d.pending, d.direct = nil, make(map[changeKey]*change), nil
	d.mu.Unlock()

	for _, key := range order {
		c := pending[key]
		if c.from == c.to {
			continue
		}
		switch key.kind {
		case changeConnection:
			if c.to {
				call(d.cb.OnConnectionOpened, key.member)
			} else {
				call(d.cb.OnConnectionClosed, key.member)
			}
		case changeTrack:
			if c.to {
				call(d.cb.OnTrackAdded, c.info)
			} else {
				call(d.cb.OnTrackStopped, c.info)
			}
		case changeEnabled, changeMuted:
			// a track that went away in this batch reports through stopped;
			// one that appeared was reported with its flags as first seen
			if p, ok := pending[changeKey{kind: changeTrack, track: key.track}]; ok && !p.to {
				continue
			}
			d.flag(key.kind, c)
		}
	}
	for _, fn := range direct {
		fn()
	}
	if closed != nil {
		call2(d.cb.OnRoomClosed, closed.reason, closed.err)
		return true
	}
	return false
}

func (d *dispatcher) flag(kind changeKind, c *change) {
	switch {
	case kind == changeEnabled && c.to:
		call(d.cb.OnTrackEnabled, c.info)
	case kind == changeEnabled:
		call(d.cb.OnTrackDisabled, c.info)
	case c.to:
		call(d.cb.OnTrackMuted, c.info)
	default:
		call(d.cb.OnTrackUnmuted, c.info)
	}
}

func call2[A, B any](fn func(A, B), a A, b B) {
	if fn != nil {
		fn(a, b)
	}
}
