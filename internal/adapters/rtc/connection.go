package rtc

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Connection is a client peer connection backed by pion. Each local track owns
// one transceiver; the answerer's transceivers are matched to the offer's
// m-lines by kind and direction when the offer is applied.
type Connection struct {
	pc      atomic.Pointer[webrtc.PeerConnection]
	api     *webrtc.API
	cfg     webrtc.Configuration
	peer    domain.PeerID
	capture Capturer
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tracks  map[domain.TrackID]*localTrack
	onICE   func(negotiation.Candidate)
	onState func(string)
}

type localTrack struct {
	id          domain.TrackID
	direction   protocol.Direction
	kind        domain.MediaKind
	transceiver *webrtc.RTPTransceiver
	local       *webrtc.TrackLocalStaticRTP
	gate        *SendGate
	stop        context.CancelFunc
}

func newConnection(ctx context.Context, api *webrtc.API, cfg webrtc.Configuration, peer domain.PeerID, capture Capturer) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Connection{
		api:     api,
		cfg:     cfg,
		peer:    peer,
		capture: capture,
		log:     log.With().Str("module", "rtc").Stringer("peer", peer).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		tracks:  make(map[domain.TrackID]*localTrack),
	}
	c.wire(pc)
	c.pc.Store(pc)
	return c, nil
}

// wire registers the callbacks of pc. Events of a replaced connection are
// dropped.
func (c *Connection) wire(pc *webrtc.PeerConnection) {
	current := func() bool { return c.pc.Load() == pc }
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if !current() {
			return
		}
		c.log.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s.String())
		}
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || !current() {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(fromInit(cand.ToJSON()))
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		go c.drain(track)
	})
}

// drain consumes a remote track so its buffers never fill up.
func (c *Connection) drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			c.log.Debug().Err(err).Str("track_id", track.ID()).Msg("remote track ended")
			return
		}
		if c.ctx.Err() != nil {
			return
		}
	}
}

func (c *Connection) CreateOffer(context.Context) (string, error) {
	offer, err := c.pc.Load().CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return offer.SDP, nil
}

func (c *Connection) CreateAnswer(context.Context) (string, error) {
	answer, err := c.pc.Load().CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return answer.SDP, nil
}

func (c *Connection) SetLocalDescription(_ context.Context, kind negotiation.SdpKind, sdp string) error {
	if err := c.pc.Load().SetLocalDescription(webrtc.SessionDescription{Type: sdpType(kind), SDP: sdp}); err != nil {
		return fmt.Errorf("set local %s: %w", sdpType(kind), err)
	}
	return nil
}

func (c *Connection) SetRemoteDescription(_ context.Context, kind negotiation.SdpKind, sdp string) error {
	if err := c.pc.Load().SetRemoteDescription(webrtc.SessionDescription{Type: sdpType(kind), SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s: %w", sdpType(kind), err)
	}
	return nil
}

func (c *Connection) AddICECandidate(_ context.Context, cand negotiation.Candidate) error {
	return c.pc.Load().AddICECandidate(toInit(cand))
}

// Rollback abandons an unanswered local offer. pion cannot roll a local offer
// back: a connection that never completed a round is rebuilt with the same
// tracks, an established one is answered with its last remote description.
func (c *Connection) Rollback(context.Context) error {
	c.mu.Lock()
	pc := c.pc.Load()
	if pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		c.mu.Unlock()
		return nil
	}
	if remote := pc.CurrentRemoteDescription(); remote != nil {
		defer c.mu.Unlock()
		answer, err := restoringAnswer(pc.PendingLocalDescription().SDP, remote.SDP)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return nil
	}
	err := c.rebuild()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if err := pc.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close replaced connection")
	}
	c.log.Info().Msg("connection rebuilt")
	return nil
}

// rebuild replaces the peer connection by a fresh one carrying every track.
// Send gates keep writing to the same local tracks. Callers hold c.mu.
func (c *Connection) rebuild() error {
	pc, err := c.api.NewPeerConnection(c.cfg)
	if err != nil {
		return err
	}
	ids := make([]domain.TrackID, 0, len(c.tracks))
	for id := range c.tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	trs := make(map[domain.TrackID]*webrtc.RTPTransceiver, len(ids))
	for _, id := range ids {
		lt := c.tracks[id]
		var tr *webrtc.RTPTransceiver
		if lt.direction == protocol.DirectionSend {
			tr, err = pc.AddTransceiverFromTrack(lt.local, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
		} else {
			tr, err = pc.AddTransceiverFromKind(codecType(lt.kind), webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		}
		if err != nil {
			_ = pc.Close()
			return fmt.Errorf("track %s: %w", id, err)
		}
		trs[id] = tr
	}
	for id, tr := range trs {
		c.tracks[id].transceiver = tr
	}
	c.wire(pc)
	c.pc.Store(pc)
	return nil
}

// AddSendTrack attaches a local track and starts capturing for it. A capture
// failure leaves the track negotiated but silent.
func (c *Connection) AddSendTrack(ctx context.Context, t protocol.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracks[t.ID]; ok {
		return nil
	}
	local, err := webrtc.NewTrackLocalStaticRTP(CodecFor(t.Media.Kind), t.ID.String(), "huddle-"+c.peer.String())
	if err != nil {
		return fmt.Errorf("track %s: %w", t.ID, err)
	}
	tr, err := c.pc.Load().AddTransceiverFromTrack(local, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
	if err != nil {
		return fmt.Errorf("track %s: %w", t.ID, err)
	}
	gate := NewSendGate(local)
	gate.SetEnabled(t.EnabledGeneral)
	gate.SetMuted(t.Muted)
	lt := &localTrack{id: t.ID, direction: protocol.DirectionSend, kind: t.Media.Kind, transceiver: tr, local: local, gate: gate}
	c.tracks[t.ID] = lt

	src, err := c.capture.Capture(ctx, t.Media)
	if err != nil {
		c.log.Warn().Err(err).Stringer("track", t.ID).Msg("capture failed")
		return fmt.Errorf("track %s: %w", t.ID, err)
	}
	pctx, stop := context.WithCancel(c.ctx)
	lt.stop = stop
	lg := c.log.With().Stringer("track", t.ID).Logger()
	go pump(pctx, src, gate, &lg)
	return nil
}

func (c *Connection) AddRecvTrack(_ context.Context, t protocol.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracks[t.ID]; ok {
		return nil
	}
	tr, err := c.pc.Load().AddTransceiverFromKind(codecType(t.Media.Kind), webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	if err != nil {
		return fmt.Errorf("track %s: %w", t.ID, err)
	}
	c.tracks[t.ID] = &localTrack{id: t.ID, direction: protocol.DirectionRecv, kind: t.Media.Kind, transceiver: tr}
	return nil
}

// RemoveTrack detaches a track. Unknown tracks are ignored.
func (c *Connection) RemoveTrack(id domain.TrackID) error {
	c.mu.Lock()
	lt, ok := c.tracks[id]
	delete(c.tracks, id)
	pc := c.pc.Load()
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if lt.stop != nil {
		lt.stop()
	}
	if lt.gate != nil {
		lt.gate.Close()
	}
	if lt.direction == protocol.DirectionSend {
		if s := lt.transceiver.Sender(); s != nil {
			return pc.RemoveTrack(s)
		}
		return nil
	}
	return lt.transceiver.Stop()
}

func (c *Connection) SetTrackEnabled(id domain.TrackID, enabled bool) {
	if g := c.gate(id); g != nil {
		g.SetEnabled(enabled)
	}
}

func (c *Connection) SetTrackMuted(id domain.TrackID, muted bool) {
	if g := c.gate(id); g != nil {
		g.SetMuted(muted)
	}
}

// Gate returns the send gate of a local track, nil for receive tracks.
func (c *Connection) Gate(id domain.TrackID) *SendGate { return c.gate(id) }

func (c *Connection) gate(id domain.TrackID) *SendGate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lt, ok := c.tracks[id]; ok {
		return lt.gate
	}
	return nil
}

func (c *Connection) Mids() map[domain.TrackID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.TrackID]string, len(c.tracks))
	for id, lt := range c.tracks {
		if mid := lt.transceiver.Mid(); mid != "" {
			out[id] = mid
		}
	}
	return out
}

func (c *Connection) OnICECandidate(fn func(negotiation.Candidate)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnConnectionState(fn func(string)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	c.cancel()
	if err := c.pc.Load().Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
		return err
	}
	c.log.Info().Msg("closed")
	return nil
}

func sdpType(kind negotiation.SdpKind) webrtc.SDPType {
	if kind == negotiation.SdpAnswer {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.MediaVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func toInit(c negotiation.Candidate) webrtc.ICECandidateInit {
	init := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: c.SdpMid, SDPMLineIndex: c.SdpMLineIndex}
	if c.UsernameFragment != "" {
		ufrag := c.UsernameFragment
		init.UsernameFragment = &ufrag
	}
	return init
}

func fromInit(i webrtc.ICECandidateInit) negotiation.Candidate {
	c := negotiation.Candidate{Candidate: i.Candidate, SdpMid: i.SDPMid, SdpMLineIndex: i.SDPMLineIndex}
	if i.UsernameFragment != nil {
		c.UsernameFragment = *i.UsernameFragment
	}
	return c
}
