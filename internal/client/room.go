// Package client mirrors the room state a member's client is told about by
// the coordinator and drives its local peer connections.
package client

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/client/rpc"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport is the signaling session a Room talks through. *rpc.Client
// implements it.
type Transport interface {
	Send(cmd protocol.Command) error
	Handle() rpc.ReconnectHandle
	Close()
}

type transportRef struct{ Transport }

// Room is the client state mirror. Every event and intent is applied under
// one lock; callbacks are delivered afterwards by the dispatcher.
type Room struct {
	media  core.MediaFactory
	d      *dispatcher
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	transport atomic.Pointer[transportRef]

	mu       sync.Mutex
	peers    map[domain.PeerID]*Peer
	tracks   map[domain.TrackID]*Track
	intents  map[domain.TrackID]*intent
	defaults map[mediaKey]*intent
	closed   bool
}

func NewRoom(ctx context.Context, media core.MediaFactory, cb Callbacks) *Room {
	ctx, cancel := context.WithCancel(ctx)
	r := &Room{
		media:    media,
		d:        newDispatcher(cb),
		log:      log.With().Str("module", "client").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		peers:    make(map[domain.PeerID]*Peer),
		tracks:   make(map[domain.TrackID]*Track),
		intents:  make(map[domain.TrackID]*intent),
		defaults: make(map[mediaKey]*intent),
	}
	// the dispatcher outlives ctx so that room-closed is still delivered
	go r.d.run(context.WithoutCancel(ctx))
	return r
}

// Bind attaches the signaling session. It must happen before the session
// runs.
func (r *Room) Bind(t Transport) {
	r.transport.Store(&transportRef{t})
}

// Join binds a new signaling client to url and runs it until the room
// closes.
func (r *Room) Join(ctx context.Context, url string, opts rpc.Options) error {
	c := rpc.New(url, opts, r)
	r.Bind(c)
	return c.Run(ctx)
}

// Leave ends the session. Room-closed fires once the transport stopped.
func (r *Room) Leave() {
	if t := r.transport.Load(); t != nil {
		t.Close()
		return
	}
	r.shutdown("", nil)
}

// Done is closed after the room-closed callback returned.
func (r *Room) Done() <-chan struct{} { return r.d.done }

func (r *Room) send(cmd protocol.Command) error {
	t := r.transport.Load()
	if t == nil {
		return rpc.ErrNotConnected
	}
	return t.Send(cmd)
}

// sendLogged sends a command whose loss is repaired by the next resync.
func (r *Room) sendLogged(cmd protocol.Command) {
	if err := r.send(cmd); err != nil {
		r.log.Debug().Err(err).Str("command", cmd.CommandName()).Msg("command not sent")
	}
}

func (r *Room) OnOpen(reconnected bool) {
	r.log.Info().Bool("reconnected", reconnected).Msg("signaling session open")
	if reconnected {
		r.sendLogged(protocol.SynchronizeMe{})
	}
}

func (r *Room) OnLost(err error) {
	r.log.Warn().Err(err).Msg("signaling session lost")
	var handle rpc.ReconnectHandle
	if t := r.transport.Load(); t != nil {
		handle = t.Handle()
	}
	r.d.now(func() { call(r.d.cb.OnConnectionLoss, handle) })
	r.d.wake()
}

func (r *Room) OnClosed(reason protocol.CloseReason, err error) {
	r.log.Info().Str("reason", string(reason)).Err(err).Msg("signaling session closed")
	r.shutdown(reason, err)
}

func (r *Room) shutdown(reason protocol.CloseReason, err error) {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, id := range r.peerIDs() {
		r.removePeer(id)
	}
	r.d.roomClosed(reason, err)
	r.cancel()
}

func (r *Room) OnEvent(ev protocol.Event) {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	switch ev := ev.(type) {
	case protocol.PeerCreated:
		r.onPeerCreated(ev)
	case protocol.SdpAnswerMade:
		if p := r.peer(ev.PeerID, ev.EventName()); p != nil {
			p.neg.RemoteAnswer(ev.SdpAnswer)
		}
	case protocol.IceCandidateDiscovered:
		if p := r.peer(ev.PeerID, ev.EventName()); p != nil {
			p.neg.RemoteCandidate(ev.Candidate)
		}
	case protocol.PeersRemoved:
		for _, id := range ev.PeerIDs {
			r.removePeer(id)
		}
	case protocol.TracksApplied:
		r.onTracksApplied(ev)
	case protocol.StateSynchronized:
		r.synchronize(ev.State)
	default:
		r.log.Warn().Str("event", ev.EventName()).Msg("unhandled event")
	}
}

// peer looks a peer up for an event; events of dropped peers are ignored.
func (r *Room) peer(id domain.PeerID, event string) *Peer {
	p, ok := r.peers[id]
	if !ok {
		r.log.Debug().Stringer("peer", id).Str("event", event).Msg("event for unknown peer ignored")
		return nil
	}
	return p
}

func (r *Room) peerIDs() []domain.PeerID {
	ids := make([]domain.PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tracks lists every mirrored track ordered by id.
func (r *Room) Tracks() []TrackInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TrackInfo, 0, len(r.tracks))
	for _, t := range r.tracks {
		out = append(out, t.info())
	}
	slices.SortFunc(out, func(a, b TrackInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *Room) Track(id domain.TrackID) (TrackInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return TrackInfo{}, false
	}
	return t.info(), true
}

// Peers lists every mirrored peer ordered by id.
func (r *Room) Peers() []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, id := range r.peerIDs() {
		out = append(out, r.peers[id].info())
	}
	return out
}
