package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type memberState int

const (
	memberOffline memberState = iota
	memberConnected
	// memberLost keeps the member in the topology while it may resume.
	memberLost
)

type member struct {
	spec  domain.MemberSpec
	hb    core.Heartbeat
	state memberState
	conn  core.SignalConnection
	grace *time.Timer
	// epoch changes with every transport swap so stale timers are ignored.
	epoch uint64
}

func (m *member) present() bool { return m.state != memberOffline }

type pairKey struct{ a, b domain.MemberID }

func keyOf(x, y domain.MemberID) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Room is the single writer of one room's topology. Members, peers and
// tracks live in flat tables and refer to each other by id.
type Room struct {
	id        domain.RoomID
	settings  Settings
	policy    Policy
	callbacks core.CallbackSender
	log       zerolog.Logger

	mu        sync.Mutex
	closed    bool
	order     []domain.MemberID
	members   map[domain.MemberID]*member
	peers     map[domain.PeerID]*peer
	tracks    map[domain.TrackID]*track
	pairs     map[pairKey][2]domain.PeerID
	lastPeer  domain.PeerID
	lastTrack domain.TrackID
	deferred  []func()
}

// NewRoom validates spec and builds an idle room: nobody is connected yet.
func NewRoom(spec domain.RoomSpec, settings Settings, policy Policy, callbacks core.CallbackSender) (*Room, error) {
	spec = spec.Clone()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = SimplePolicy{}
	}
	r := &Room{
		id:        spec.ID,
		settings:  settings,
		policy:    policy,
		callbacks: callbacks,
		log:       log.With().Str("module", "app.room").Str("room", string(spec.ID)).Logger(),
		members:   make(map[domain.MemberID]*member, len(spec.Members)),
		peers:     make(map[domain.PeerID]*peer),
		tracks:    make(map[domain.TrackID]*track),
		pairs:     make(map[pairKey][2]domain.PeerID),
	}
	for _, ms := range spec.Members {
		r.addMemberLocked(ms)
	}
	return r, nil
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) lock() { r.mu.Lock() }

// unlock runs the work queued while the lock was held, then releases it.
func (r *Room) unlock() {
	for len(r.deferred) > 0 {
		fn := r.deferred[0]
		r.deferred = r.deferred[1:]
		fn()
	}
	r.mu.Unlock()
}

func (r *Room) addMemberLocked(ms domain.MemberSpec) {
	spec := ms.Clone()
	r.members[spec.ID] = &member{spec: spec, hb: r.settings.heartbeatFor(&spec)}
	r.order = append(r.order, spec.ID)
}

// Authorize checks credentials and returns the member's heartbeat policy.
func (r *Room) Authorize(id domain.MemberID, credentials string) (core.Heartbeat, error) {
	r.lock()
	defer r.unlock()
	if r.closed {
		return core.Heartbeat{}, ErrRoomClosed
	}
	m, ok := r.members[id]
	if !ok {
		return core.Heartbeat{}, fmt.Errorf("%w: member %s", domain.ErrNotFound, domain.MemberFID(r.id, id))
	}
	if m.spec.Credentials != "" && subtle.ConstantTimeCompare([]byte(m.spec.Credentials), []byte(credentials)) != 1 {
		return core.Heartbeat{}, ErrUnauthorized
	}
	return m.hb, nil
}

// Connect binds conn to the member. A member that is still in the topology
// (connected or within its reconnect window) resumes: only the transport is
// swapped and the old one is closed with Reconnected.
func (r *Room) Connect(id domain.MemberID, conn core.SignalConnection) (resumed bool, err error) {
	r.lock()
	defer r.unlock()
	if r.closed {
		return false, ErrRoomClosed
	}
	m, ok := r.members[id]
	if !ok {
		return false, fmt.Errorf("%w: member %s", domain.ErrNotFound, domain.MemberFID(r.id, id))
	}

	if m.present() {
		old := m.conn
		r.stopGrace(m)
		m.epoch++
		m.conn = conn
		m.state = memberConnected
		if old != nil && old != conn {
			old.Close(protocol.CloseReconnected)
		}
		r.log.Info().Str("member", string(id)).Msg("member resumed")
		return true, nil
	}

	m.epoch++
	m.conn = conn
	m.state = memberConnected
	r.log.Info().Str("member", string(id)).Msg("member joined")
	for _, oid := range r.order {
		o := r.members[oid]
		if oid == id || !o.present() {
			continue
		}
		r.linkMembers(o, m)
	}
	r.fireCallback(m, core.CallbackOnJoin, "")
	return false, nil
}

// ConnectionLost starts the reconnect window of the member if conn is still
// its current transport.
func (r *Room) ConnectionLost(id domain.MemberID, conn core.SignalConnection) {
	r.lock()
	defer r.unlock()
	m, ok := r.members[id]
	if !ok || m.conn != conn || m.state != memberConnected {
		return
	}
	r.loseLocked(m)
}

func (r *Room) loseLocked(m *member) {
	m.conn = nil
	m.state = memberLost
	m.epoch++
	epoch := m.epoch
	id := m.spec.ID
	r.log.Info().Str("member", string(id)).Dur("grace", m.hb.ReconnectTimeout).Msg("member connection lost")
	m.grace = time.AfterFunc(m.hb.ReconnectTimeout, func() { r.graceExpired(id, epoch) })
}

func (r *Room) graceExpired(id domain.MemberID, epoch uint64) {
	r.lock()
	defer r.unlock()
	m, ok := r.members[id]
	if !ok || m.state != memberLost || m.epoch != epoch {
		return
	}
	r.log.Info().Str("member", string(id)).Msg("reconnect window expired")
	r.leaveLocked(m, core.LeaveLostConnection)
}

func (r *Room) stopGrace(m *member) {
	if m.grace != nil {
		m.grace.Stop()
		m.grace = nil
	}
}

// Disconnect handles a clean close by the client: the member leaves now.
func (r *Room) Disconnect(id domain.MemberID, conn core.SignalConnection) {
	r.lock()
	defer r.unlock()
	m, ok := r.members[id]
	if !ok || m.conn != conn || !m.present() {
		return
	}
	r.leaveLocked(m, core.LeaveDisconnected)
}

// Kick closes the member's transport with Evicted and removes it from the
// topology. The member spec stays.
func (r *Room) Kick(id domain.MemberID) error {
	r.lock()
	defer r.unlock()
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: member %s", domain.ErrNotFound, domain.MemberFID(r.id, id))
	}
	if !m.present() {
		return ErrNotConnected
	}
	if m.conn != nil {
		m.conn.Close(protocol.CloseEvicted)
	}
	r.leaveLocked(m, core.LeaveKicked)
	return nil
}

// leaveLocked drops every peer of m and notifies the partners.
func (r *Room) leaveLocked(m *member, reason core.LeaveReason) {
	r.stopGrace(m)
	m.conn = nil
	m.state = memberOffline
	m.epoch++
	for _, oid := range r.order {
		if oid == m.spec.ID {
			continue
		}
		if ids, ok := r.pairs[keyOf(m.spec.ID, oid)]; ok {
			r.removePair(r.peers[ids[0]], r.peers[ids[1]])
		}
	}
	r.log.Info().Str("member", string(m.spec.ID)).Str("reason", string(reason)).Msg("member left")
	r.fireCallback(m, core.CallbackOnLeave, reason)
}

// Close ends the room: every transport is closed with Finished and every
// present member leaves with reason.
func (r *Room) Close(reason core.LeaveReason) {
	r.lock()
	defer r.unlock()
	if r.closed {
		return
	}
	r.closed = true
	present := make([]*member, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id]
		if !m.present() {
			continue
		}
		if m.conn != nil {
			m.conn.Close(protocol.CloseFinished)
		}
		m.conn = nil
		m.state = memberLost
		present = append(present, m)
	}
	for _, m := range present {
		r.leaveLocked(m, reason)
	}
	r.log.Info().Str("reason", string(reason)).Msg("room closed")
}

func (r *Room) Closed() bool {
	r.lock()
	defer r.unlock()
	return r.closed
}

func (r *Room) Info() core.RoomInfo {
	r.lock()
	defer r.unlock()
	info := core.RoomInfo{ID: r.id, Members: len(r.members), Peers: len(r.peers)}
	for _, m := range r.members {
		if m.state == memberConnected {
			info.Connected++
		}
	}
	return info
}

// send delivers ev to the member's transport. Events for a member without a
// live transport are dropped: it resynchronizes when it comes back.
func (r *Room) send(id domain.MemberID, ev protocol.Event) {
	m, ok := r.members[id]
	if !ok || m.state != memberConnected || m.conn == nil {
		r.log.Debug().Str("member", string(id)).Str("event", ev.EventName()).Msg("event dropped, member not connected")
		return
	}
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		r.log.Error().Err(err).Str("event", ev.EventName()).Msg("encode event")
		return
	}
	err = m.conn.TrySend(frame)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrBackpressure):
		r.onBackpressure(m, ev)
	default:
		r.log.Debug().Err(err).Str("member", string(id)).Str("event", ev.EventName()).Msg("send failed")
	}
}

func (r *Room) onBackpressure(m *member, ev protocol.Event) {
	action := r.policy.OnBackpressure(r.id, m.spec.ID)
	r.log.Warn().Str("member", string(m.spec.ID)).Str("event", ev.EventName()).Int("action", int(action)).Msg("backpressure")
	switch action {
	case DropFrame:
	case CloseSession:
		m.conn.Close(protocol.CloseInternal)
		r.loseLocked(m)
	case KickMember:
		conn := m.conn
		m.conn = nil
		m.state = memberLost
		conn.Close(protocol.CloseEvicted)
		id := m.spec.ID
		r.deferred = append(r.deferred, func() {
			if mm, ok := r.members[id]; ok && mm.present() {
				r.leaveLocked(mm, core.LeaveKicked)
			}
		})
	}
}

func (r *Room) fireCallback(m *member, kind core.CallbackKind, reason core.LeaveReason) {
	url := m.spec.OnJoin
	if kind == core.CallbackOnLeave {
		url = m.spec.OnLeave
	}
	if url == "" || r.callbacks == nil {
		return
	}
	ev := core.CallbackEvent{
		FID:    domain.MemberFID(r.id, m.spec.ID).String(),
		At:     time.Now().UTC(),
		Event:  kind,
		Reason: reason,
	}
	sender := r.callbacks
	logger := r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sender.Send(ctx, url, ev); err != nil {
			logger.Warn().Err(err).Str("fid", ev.FID).Str("event", string(kind)).Msg("callback delivery failed")
		}
	}()
}

func (r *Room) nextPeerID() domain.PeerID {
	r.lastPeer++
	return r.lastPeer
}

func (r *Room) nextTrackID() domain.TrackID {
	r.lastTrack++
	return r.lastTrack
}

// peerOf returns the member's peer id or ErrUnknownPeer.
func (r *Room) peerOf(id domain.MemberID, pid domain.PeerID) (*peer, *peer, error) {
	p, ok := r.peers[pid]
	if !ok || p.member != id {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPeer, pid)
	}
	return p, r.peers[p.partner], nil
}
