package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/client/rpc"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	peer    domain.PeerID
	sendErr map[domain.MediaKind]error

	mu      sync.Mutex
	seq     int
	local   string
	remotes []string
	tracks  map[domain.TrackID]protocol.Direction
	enabled map[domain.TrackID]bool
	muted   map[domain.TrackID]bool
	closed  bool
	onState func(string)
}

func (c *fakeConn) CreateOffer(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return fmt.Sprintf("offer-%d-%d", c.peer, c.seq), nil
}

func (c *fakeConn) CreateAnswer(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return fmt.Sprintf("answer-%d-%d", c.peer, c.seq), nil
}

func (c *fakeConn) SetLocalDescription(_ context.Context, _ negotiation.SdpKind, sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = sdp
	return nil
}

func (c *fakeConn) SetRemoteDescription(_ context.Context, _ negotiation.SdpKind, sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes = append(c.remotes, sdp)
	return nil
}

func (c *fakeConn) AddICECandidate(context.Context, negotiation.Candidate) error { return nil }

func (c *fakeConn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = ""
	return nil
}

func (c *fakeConn) AddSendTrack(_ context.Context, t protocol.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[t.ID] = protocol.DirectionSend
	return c.sendErr[t.Media.Kind]
}

func (c *fakeConn) AddRecvTrack(_ context.Context, t protocol.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[t.ID] = protocol.DirectionRecv
	return nil
}

func (c *fakeConn) RemoveTrack(id domain.TrackID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, id)
	return nil
}

func (c *fakeConn) SetTrackEnabled(id domain.TrackID, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[id] = enabled
}

func (c *fakeConn) SetTrackMuted(id domain.TrackID, muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted[id] = muted
}

func (c *fakeConn) Mids() map[domain.TrackID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.TrackID]string, len(c.tracks))
	for id := range c.tracks {
		out[id] = strconv.FormatUint(uint64(id), 10)
	}
	return out
}

func (c *fakeConn) OnICECandidate(func(negotiation.Candidate)) {}

func (c *fakeConn) OnConnectionState(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) state(s string) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(s)
}

func (c *fakeConn) snapshot() (remotes []string, enabled, muted map[domain.TrackID]bool, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	enabled, muted = make(map[domain.TrackID]bool), make(map[domain.TrackID]bool)
	for k, v := range c.enabled {
		enabled[k] = v
	}
	for k, v := range c.muted {
		muted[k] = v
	}
	return append([]string(nil), c.remotes...), enabled, muted, c.closed
}

type fakeMedia struct {
	sendErr map[domain.MediaKind]error

	mu    sync.Mutex
	conns map[domain.PeerID]*fakeConn
	opens int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{sendErr: make(map[domain.MediaKind]error), conns: make(map[domain.PeerID]*fakeConn)}
}

func (m *fakeMedia) NewConnection(_ context.Context, peer domain.PeerID, _ []protocol.IceServer, _ bool) (core.MediaConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &fakeConn{
		peer:    peer,
		sendErr: m.sendErr,
		tracks:  make(map[domain.TrackID]protocol.Direction),
		enabled: make(map[domain.TrackID]bool),
		muted:   make(map[domain.TrackID]bool),
	}
	m.conns[peer] = c
	m.opens++
	return c, nil
}

func (m *fakeMedia) conn(peer domain.PeerID) *fakeConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[peer]
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []protocol.Command
	err  error
}

func (t *fakeTransport) Send(cmd protocol.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, cmd)
	return nil
}

func (t *fakeTransport) Handle() rpc.ReconnectHandle { return rpc.ReconnectHandle{} }

func (t *fakeTransport) Close() {}

func (t *fakeTransport) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *fakeTransport) commands() []protocol.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Command(nil), t.sent...)
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	t.sent = nil
	t.mu.Unlock()
}

func commandsOf[T protocol.Command](tr *fakeTransport) []T {
	var out []T
	for _, c := range tr.commands() {
		if v, ok := c.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func waitCommand[T protocol.Command](t *testing.T, tr *fakeTransport) T {
	t.Helper()
	require.Eventually(t, func() bool { return len(commandsOf[T](tr)) > 0 }, time.Second, 5*time.Millisecond)
	return commandsOf[T](tr)[0]
}

type recorder struct {
	mu    sync.Mutex
	log   []string
	errs  []*Error
	added []TrackInfo
}

func (rc *recorder) add(s string) {
	rc.mu.Lock()
	rc.log = append(rc.log, s)
	rc.mu.Unlock()
}

func (rc *recorder) callbacks() Callbacks {
	track := func(name string) func(TrackInfo) {
		return func(t TrackInfo) { rc.add(name + ":" + t.ID.String()) }
	}
	fail := func(name string) func(*Error) {
		return func(e *Error) {
			rc.mu.Lock()
			rc.errs = append(rc.errs, e)
			rc.mu.Unlock()
			rc.add(name + ":" + string(e.Kind))
		}
	}
	return Callbacks{
		OnConnectionOpened: func(m domain.MemberID) { rc.add("open:" + string(m)) },
		OnConnectionClosed: func(m domain.MemberID) { rc.add("close:" + string(m)) },
		OnTrackAdded: func(t TrackInfo) {
			rc.mu.Lock()
			rc.added = append(rc.added, t)
			rc.mu.Unlock()
			rc.add("added:" + t.ID.String())
		},
		OnTrackEnabled:     track("enabled"),
		OnTrackDisabled:    track("disabled"),
		OnTrackMuted:       track("muted"),
		OnTrackUnmuted:     track("unmuted"),
		OnTrackStopped:     track("stopped"),
		OnFailedLocalMedia: fail("media"),
		OnError:            fail("error"),
		OnConnectionLoss:   func(rpc.ReconnectHandle) { rc.add("lost") },
		OnRoomClosed: func(reason protocol.CloseReason, err error) {
			rc.add("room-closed:" + string(reason))
		},
	}
}

// expect asserts the next callbacks in order.
func (rc *recorder) expect(t *testing.T, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return len(rc.log) >= len(want)
	}, time.Second, 5*time.Millisecond)
	rc.mu.Lock()
	got := append([]string(nil), rc.log[:len(want)]...)
	rc.log = rc.log[len(want):]
	rc.mu.Unlock()
	assert.Equal(t, want, got)
}

func newTestRoom(t *testing.T) (*Room, *fakeMedia, *fakeTransport, *recorder) {
	t.Helper()
	media := newFakeMedia()
	rec := &recorder{}
	r := NewRoom(context.Background(), media, rec.callbacks())
	tr := &fakeTransport{}
	r.Bind(tr)
	t.Cleanup(func() { r.OnClosed(protocol.CloseFinished, nil) })
	return r, media, tr, rec
}

func sendTrack(id domain.TrackID, kind domain.MediaKind, to domain.MemberID) protocol.Track {
	return protocol.Track{
		ID:                id,
		Direction:         protocol.DirectionSend,
		Receivers:         []domain.MemberID{to},
		Media:             protocol.MediaType{Kind: kind, Source: domain.SourceDevice},
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
}

func recvTrack(id domain.TrackID, kind domain.MediaKind, from domain.MemberID) protocol.Track {
	return protocol.Track{
		ID:                id,
		Direction:         protocol.DirectionRecv,
		Sender:            from,
		Media:             protocol.MediaType{Kind: kind, Source: domain.SourceDevice},
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
}

func offerer(peer domain.PeerID, tracks ...protocol.Track) protocol.PeerCreated {
	return protocol.PeerCreated{PeerID: peer, NegotiationRole: *protocol.OffererRole(), Tracks: tracks}
}

func bobTracks() []protocol.Track {
	return []protocol.Track{sendTrack(1, domain.MediaAudio, "bob"), recvTrack(2, domain.MediaAudio, "bob")}
}

func TestOffererSendsOfferWithMids(t *testing.T) {
	r, media, tr, rec := newTestRoom(t)

	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	offer := waitCommand[protocol.MakeSdpOffer](t, tr)
	assert.Equal(t, domain.PeerID(7), offer.PeerID)
	assert.Equal(t, "offer-7-1", offer.SdpOffer)
	assert.Equal(t, map[domain.TrackID]string{1: "1", 2: "2"}, offer.Mids)

	r.OnEvent(protocol.SdpAnswerMade{PeerID: 7, SdpAnswer: "answer-bob"})
	require.Eventually(t, func() bool {
		remotes, _, _, _ := media.conn(7).snapshot()
		return len(remotes) == 1 && r.Peers()[0].State == negotiation.Stable
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, negotiation.Offerer, r.Peers()[0].Role)
	assert.Equal(t, domain.MemberID("bob"), r.Peers()[0].Member)
}

func TestAnswererAnswersForwardedOffer(t *testing.T) {
	r, media, tr, rec := newTestRoom(t)

	r.OnEvent(protocol.PeerCreated{
		PeerID:          8,
		NegotiationRole: *protocol.AnswererRole("offer-bob"),
		Tracks:          []protocol.Track{recvTrack(1, domain.MediaVideo, "bob")},
	})
	rec.expect(t, "open:bob", "added:1")

	answer := waitCommand[protocol.MakeSdpAnswer](t, tr)
	assert.Equal(t, domain.PeerID(8), answer.PeerID)
	assert.Equal(t, "answer-8-1", answer.SdpAnswer)
	remotes, _, _, _ := media.conn(8).snapshot()
	assert.Equal(t, []string{"offer-bob"}, remotes)
	assert.Empty(t, commandsOf[protocol.MakeSdpOffer](tr))
}

func TestReplayedPeerCreatedIsIdempotent(t *testing.T) {
	r, media, _, rec := newTestRoom(t)

	r.OnEvent(offerer(7, bobTracks()...))
	r.OnEvent(offerer(7, bobTracks()...))
	require.NoError(t, r.SetTrackMuted(1, true))

	rec.expect(t, "open:bob", "added:1", "added:2", "muted:1")
	assert.Len(t, r.Tracks(), 2)
	assert.Len(t, r.Peers(), 1)
	assert.Equal(t, 1, media.opens)
}

func TestFlagChangeRightAfterTrackAdded(t *testing.T) {
	r, _, _, rec := newTestRoom(t)

	r.OnEvent(offerer(7, bobTracks()...))
	require.NoError(t, r.SetTrackMuted(1, true))

	rec.expect(t, "open:bob", "added:1", "added:2", "muted:1")
	info, ok := r.Track(1)
	require.True(t, ok)
	assert.True(t, info.Muted)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.added, 2)
	assert.False(t, rec.added[0].Muted)
}

func TestFlagChangeOfStoppedTrackIsDropped(t *testing.T) {
	r, _, _, rec := newTestRoom(t)
	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	r.Batch(func() {
		require.NoError(t, r.SetTrackMuted(1, true))
		r.OnEvent(protocol.TracksApplied{PeerID: 7, Updates: []protocol.TrackUpdate{protocol.Removed(1)}})
	})
	require.NoError(t, r.SetTrackEnabled(2, false))
	rec.expect(t, "stopped:1", "disabled:2")
}

func TestSnapshotAppliedTwiceChangesNothing(t *testing.T) {
	r, media, _, rec := newTestRoom(t)
	state := protocol.RoomState{Peers: []protocol.PeerState{{
		ID:               7,
		Partner:          "bob",
		Role:             negotiation.Offerer,
		Tracks:           bobTracks(),
		NegotiationState: negotiation.Stable,
		LocalSdp:         "offer-old",
		RemoteSdp:        "answer-old",
	}}}

	r.OnEvent(protocol.StateSynchronized{State: state})
	rec.expect(t, "open:bob", "added:1", "added:2")

	r.OnEvent(protocol.StateSynchronized{State: state})
	require.NoError(t, r.SetTrackMuted(1, true))
	rec.expect(t, "muted:1")

	assert.Len(t, r.Tracks(), 2)
	assert.Equal(t, 1, media.opens)
}

func TestSnapshotDropsUnknownPeers(t *testing.T) {
	r, media, _, rec := newTestRoom(t)
	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	r.OnEvent(protocol.StateSynchronized{State: protocol.RoomState{}})
	rec.expect(t, "stopped:1", "stopped:2", "close:bob")
	assert.Empty(t, r.Peers())
	_, _, _, closed := media.conn(7).snapshot()
	assert.True(t, closed)
}

func TestSnapshotResumesPendingOffer(t *testing.T) {
	r, _, tr, rec := newTestRoom(t)
	r.OnEvent(protocol.StateSynchronized{State: protocol.RoomState{Peers: []protocol.PeerState{{
		ID:              7,
		Partner:         "bob",
		Role:            negotiation.Offerer,
		Tracks:          bobTracks(),
		NegotiationRole: protocol.OffererRole(),
	}}}})
	rec.expect(t, "open:bob", "added:1", "added:2")

	offer := waitCommand[protocol.MakeSdpOffer](t, tr)
	assert.Equal(t, domain.PeerID(7), offer.PeerID)
}

func TestDisableIsOptimisticAndConfirmed(t *testing.T) {
	r, media, tr, rec := newTestRoom(t)
	r.OnEvent(offerer(7, sendTrack(1, domain.MediaVideo, "bob")))
	rec.expect(t, "open:bob", "added:1")

	require.NoError(t, r.SetTrackEnabled(1, false))
	rec.expect(t, "disabled:1")
	_, enabled, _, _ := media.conn(7).snapshot()
	assert.False(t, enabled[1])

	updates := commandsOf[protocol.UpdateTracks](tr)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].TracksPatches, 1)
	assert.False(t, *updates[0].TracksPatches[0].Enabled)
	assert.Nil(t, updates[0].TracksPatches[0].Muted)

	r.OnEvent(protocol.TracksApplied{PeerID: 7, Updates: []protocol.TrackUpdate{
		protocol.Updated(protocol.TrackPatchEvent{ID: 1, EnabledIndividual: protocol.Bool(false), EnabledGeneral: protocol.Bool(false)}),
	}})
	r.mu.Lock()
	assert.Empty(t, r.intents)
	r.mu.Unlock()

	require.NoError(t, r.SetTrackMuted(1, true))
	rec.expect(t, "muted:1")
}

func TestLocalIntentWinsUntilResync(t *testing.T) {
	r, _, tr, rec := newTestRoom(t)
	r.OnEvent(offerer(7, sendTrack(1, domain.MediaVideo, "bob")))
	rec.expect(t, "open:bob", "added:1")

	tr.fail(rpc.ErrNotConnected)
	require.NoError(t, r.SetTrackEnabled(1, false))
	rec.expect(t, "disabled:1")

	r.OnEvent(protocol.TracksApplied{PeerID: 7, Updates: []protocol.TrackUpdate{
		protocol.Updated(protocol.TrackPatchEvent{ID: 1, EnabledIndividual: protocol.Bool(true)}),
	}})
	info, ok := r.Track(1)
	require.True(t, ok)
	assert.False(t, info.Enabled)

	tr.fail(nil)
	tr.reset()
	r.OnEvent(protocol.StateSynchronized{State: protocol.RoomState{Peers: []protocol.PeerState{{
		ID:      7,
		Partner: "bob",
		Role:    negotiation.Offerer,
		Tracks:  []protocol.Track{sendTrack(1, domain.MediaVideo, "bob")},
	}}}})
	info, _ = r.Track(1)
	assert.False(t, info.Enabled)

	updates := commandsOf[protocol.UpdateTracks](tr)
	require.Len(t, updates, 1)
	assert.Equal(t, []protocol.TrackPatchCommand{{ID: 1, Enabled: protocol.Bool(false)}}, updates[0].TracksPatches)
}

func TestRequiredTrackCannotBeDisabled(t *testing.T) {
	r, _, tr, rec := newTestRoom(t)
	audio := sendTrack(1, domain.MediaAudio, "bob")
	audio.Media.Required = true
	r.OnEvent(offerer(7, audio))
	rec.expect(t, "open:bob", "added:1")

	err := r.SetTrackEnabled(1, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequiredTrack))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindState, e.Kind)

	err = r.SetMediaEnabled(domain.MediaAudio, protocol.DirectionSend, false)
	assert.True(t, errors.Is(err, ErrRequiredTrack))

	info, _ := r.Track(1)
	assert.True(t, info.Enabled)
	assert.Empty(t, commandsOf[protocol.UpdateTracks](tr))
}

func TestIntentErrors(t *testing.T) {
	r, _, _, rec := newTestRoom(t)
	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	assert.True(t, errors.Is(r.SetTrackMuted(2, true), ErrNotSender))
	assert.True(t, errors.Is(r.SetTrackEnabled(99, false), ErrUnknownTrack))
	require.NoError(t, r.SetTrackEnabled(2, false))
	rec.expect(t, "disabled:2")
}

func TestCancellingChangesProduceNoCallback(t *testing.T) {
	r, _, _, rec := newTestRoom(t)
	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	r.Batch(func() {
		require.NoError(t, r.SetTrackEnabled(1, false))
		require.NoError(t, r.SetTrackEnabled(1, true))
	})
	r.OnEvent(protocol.TracksApplied{PeerID: 7, Updates: []protocol.TrackUpdate{
		protocol.Updated(protocol.TrackPatchEvent{ID: 2, EnabledGeneral: protocol.Bool(false)}),
		protocol.Updated(protocol.TrackPatchEvent{ID: 2, EnabledGeneral: protocol.Bool(true)}),
	}})
	require.NoError(t, r.SetTrackMuted(1, true))
	rec.expect(t, "muted:1")
}

func TestMuteSurvivesDisableAndEnable(t *testing.T) {
	r, media, tr, rec := newTestRoom(t)
	r.OnEvent(offerer(7, sendTrack(1, domain.MediaAudio, "bob")))
	rec.expect(t, "open:bob", "added:1")
	waitCommand[protocol.MakeSdpOffer](t, tr)

	require.NoError(t, r.SetTrackEnabled(1, false))
	require.NoError(t, r.SetTrackMuted(1, true))
	require.NoError(t, r.SetTrackEnabled(1, true))

	info, _ := r.Track(1)
	assert.True(t, info.Enabled)
	assert.True(t, info.Muted)
	_, enabled, muted, _ := media.conn(7).snapshot()
	assert.True(t, enabled[1])
	assert.True(t, muted[1])
	assert.Len(t, commandsOf[protocol.MakeSdpOffer](tr), 1)
}

func TestFailedLocalMediaIsPerTrack(t *testing.T) {
	r, media, _, rec := newTestRoom(t)
	media.sendErr[domain.MediaVideo] = errors.New("device unavailable")

	r.OnEvent(offerer(7, sendTrack(1, domain.MediaAudio, "bob"), sendTrack(2, domain.MediaVideo, "bob")))
	rec.expect(t, "open:bob", "added:1", "added:2", "media:media")

	rec.mu.Lock()
	e := rec.errs[0]
	rec.mu.Unlock()
	assert.Contains(t, e.Cause, "device unavailable")
	assert.Contains(t, fmt.Sprintf("%+v", e), "tracks.go")
	assert.Len(t, r.Tracks(), 2)
}

func TestPeerFailureStaysLocal(t *testing.T) {
	r, media, tr, rec := newTestRoom(t)
	r.OnEvent(offerer(7, sendTrack(1, domain.MediaAudio, "bob")))
	r.OnEvent(offerer(9, sendTrack(3, domain.MediaAudio, "carol")))
	rec.expect(t, "open:bob", "added:1")
	rec.expect(t, "open:carol", "added:3")

	media.conn(7).state("failed")
	rec.expect(t, "error:negotiation")

	peers := r.Peers()
	require.Len(t, peers, 2)
	assert.True(t, peers[0].Failed)
	assert.False(t, peers[1].Failed)

	metrics := commandsOf[protocol.AddPeerConnectionMetrics](tr)
	require.Len(t, metrics, 1)
	assert.True(t, metrics[0].Metrics.Failed())
}

func TestTrackRemovalThenPeerRemoval(t *testing.T) {
	r, _, _, rec := newTestRoom(t)
	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	r.OnEvent(protocol.TracksApplied{PeerID: 7, Updates: []protocol.TrackUpdate{protocol.Removed(1), protocol.Removed(2)}})
	rec.expect(t, "stopped:1", "stopped:2")
	assert.Len(t, r.Peers(), 1)

	r.OnEvent(protocol.PeersRemoved{PeerIDs: []domain.PeerID{7}})
	rec.expect(t, "close:bob")

	// events of a dropped peer are ignored
	r.OnEvent(protocol.SdpAnswerMade{PeerID: 7, SdpAnswer: "late"})
	require.NoError(t, r.SetMediaMuted(domain.MediaAudio, true))
	assert.Empty(t, r.Peers())
}

func TestMediaDefaultsApplyToLaterTracks(t *testing.T) {
	r, _, tr, rec := newTestRoom(t)
	require.NoError(t, r.SetMediaEnabled(domain.MediaVideo, protocol.DirectionSend, false))

	r.OnEvent(offerer(7, sendTrack(1, domain.MediaVideo, "bob"), sendTrack(2, domain.MediaAudio, "bob")))
	rec.expect(t, "open:bob", "added:1", "added:2")

	video, _ := r.Track(1)
	audio, _ := r.Track(2)
	assert.False(t, video.Enabled)
	assert.True(t, audio.Enabled)

	updates := commandsOf[protocol.UpdateTracks](tr)
	require.Len(t, updates, 1)
	assert.Equal(t, []protocol.TrackPatchCommand{{ID: 1, Enabled: protocol.Bool(false)}}, updates[0].TracksPatches)
}

func TestSessionCallbacks(t *testing.T) {
	r, _, tr, rec := newTestRoom(t)

	r.OnOpen(false)
	assert.Empty(t, commandsOf[protocol.SynchronizeMe](tr))
	r.OnOpen(true)
	assert.Len(t, commandsOf[protocol.SynchronizeMe](tr), 1)

	r.OnLost(errors.New("read: eof"))
	rec.expect(t, "lost")
}

func TestRoomClosedTearsDown(t *testing.T) {
	r, media, _, rec := newTestRoom(t)
	r.OnEvent(offerer(7, bobTracks()...))
	rec.expect(t, "open:bob", "added:1", "added:2")

	r.OnClosed(protocol.CloseEvicted, nil)
	rec.expect(t, "stopped:1", "stopped:2", "close:bob", "room-closed:Evicted")

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("room not done")
	}
	_, _, _, closed := media.conn(7).snapshot()
	assert.True(t, closed)
	assert.True(t, errors.Is(r.SetTrackEnabled(1, true), ErrRoomClosed))

	r.OnEvent(offerer(8, bobTracks()...))
	assert.Empty(t, r.Peers())
}
