package app

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	reason protocol.CloseReason
	err    error
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close(reason protocol.CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reason = reason
}

func (c *fakeConn) closedWith() protocol.CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// take decodes and clears the events received so far.
func (c *fakeConn) take(t *testing.T) []protocol.Event {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()
	out := make([]protocol.Event, 0, len(frames))
	for _, f := range frames {
		msg, err := protocol.DecodeServerMsg(f)
		require.NoError(t, err)
		require.NotNil(t, msg.Event)
		out = append(out, msg.Event)
	}
	return out
}

func takeOne[E protocol.Event](t *testing.T, c *fakeConn) E {
	t.Helper()
	evs := c.take(t)
	require.Len(t, evs, 1, "events: %#v", evs)
	ev, ok := evs[0].(E)
	require.True(t, ok, "unexpected event %T", evs[0])
	return ev
}

func src(room, member, ep string) domain.SrcURI {
	return domain.SrcURI{Room: domain.RoomID(room), Member: domain.MemberID(member), Endpoint: domain.EndpointID(ep)}
}

// callRoom is the two-party room: both publish audio and video and play
// each other.
func callRoom() domain.RoomSpec {
	return domain.RoomSpec{
		ID: "call-1",
		Members: []domain.MemberSpec{
			{
				ID:          "alice",
				Credentials: "alice-pass",
				Publish:     []domain.PublishEndpoint{{ID: "publish"}},
				Play:        []domain.PlayEndpoint{{ID: "play-bob", Src: src("call-1", "bob", "publish")}},
			},
			{
				ID:          "bob",
				Credentials: "bob-pass",
				Publish:     []domain.PublishEndpoint{{ID: "publish"}},
				Play:        []domain.PlayEndpoint{{ID: "play-alice", Src: src("call-1", "alice", "publish")}},
			},
		},
	}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Heartbeat.ReconnectTimeout = 50 * time.Millisecond
	s.IceServers = []protocol.IceServer{{URLs: []string{"stun:stun.example.org:3478"}}}
	return s
}

func newTestRoom(t *testing.T, spec domain.RoomSpec, cb core.CallbackSender) *Room {
	t.Helper()
	r, err := NewRoom(spec, testSettings(), SimplePolicy{}, cb)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(core.LeaveServerShutdown) })
	return r
}

func connect(t *testing.T, r *Room, id domain.MemberID) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	resumed, err := r.Connect(id, c)
	require.NoError(t, err)
	require.False(t, resumed)
	return c
}

func trackOf(tracks []protocol.Track, dir protocol.Direction, kind domain.MediaKind) protocol.Track {
	for _, tr := range tracks {
		if tr.Direction == dir && tr.Media.Kind == kind {
			return tr
		}
	}
	return protocol.Track{}
}

func hasRole(ev protocol.Event) bool {
	ta, ok := ev.(protocol.TracksApplied)
	return ok && ta.NegotiationRole != nil
}

// negotiate runs the first offer/answer round of a fresh pair.
func negotiate(t *testing.T, r *Room, offerer, answerer domain.MemberID, oc, ac *fakeConn) (protocol.PeerCreated, protocol.PeerCreated) {
	t.Helper()
	created := takeOne[protocol.PeerCreated](t, oc)
	require.NoError(t, r.HandleCommand(offerer, protocol.MakeSdpOffer{PeerID: created.PeerID, SdpOffer: "offer-1"}))
	answered := takeOne[protocol.PeerCreated](t, ac)
	require.NoError(t, r.HandleCommand(answerer, protocol.MakeSdpAnswer{PeerID: answered.PeerID, SdpAnswer: "answer-1"}))
	takeOne[protocol.SdpAnswerMade](t, oc)
	return created, answered
}
