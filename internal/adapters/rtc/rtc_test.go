package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func media(kind domain.MediaKind) protocol.MediaType {
	return protocol.MediaType{Kind: kind, Source: domain.SourceDevice}
}

func sendTrack(id domain.TrackID, kind domain.MediaKind) protocol.Track {
	return protocol.Track{ID: id, Direction: protocol.DirectionSend, Media: media(kind), EnabledIndividual: true, EnabledGeneral: true}
}

func recvTrack(id domain.TrackID, kind domain.MediaKind) protocol.Track {
	return protocol.Track{ID: id, Direction: protocol.DirectionRecv, Media: media(kind), EnabledIndividual: true, EnabledGeneral: true}
}

func newConn(t *testing.T, f *Factory, peer domain.PeerID) *Connection {
	t.Helper()
	mc, err := f.NewConnection(context.Background(), peer, nil, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mc.Close() })
	c, ok := mc.(*Connection)
	require.True(t, ok)
	return c
}

func TestOfferAnswerMatchesMids(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(nil, NewLoggerFactory(zerolog.Disabled))
	require.NoError(t, err)
	o, a := newConn(t, f, 1), newConn(t, f, 2)

	require.NoError(t, o.AddSendTrack(ctx, sendTrack(1, domain.MediaAudio)))
	err = o.AddSendTrack(ctx, sendTrack(2, domain.MediaVideo))
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	require.NoError(t, o.AddRecvTrack(ctx, recvTrack(3, domain.MediaAudio)))
	require.NoError(t, o.AddRecvTrack(ctx, recvTrack(4, domain.MediaVideo)))

	require.NoError(t, a.AddSendTrack(ctx, sendTrack(3, domain.MediaAudio)))
	require.ErrorIs(t, a.AddSendTrack(ctx, sendTrack(4, domain.MediaVideo)), ErrDeviceUnavailable)
	require.NoError(t, a.AddRecvTrack(ctx, recvTrack(1, domain.MediaAudio)))
	require.NoError(t, a.AddRecvTrack(ctx, recvTrack(2, domain.MediaVideo)))
	assert.Empty(t, a.Mids())

	offer, err := o.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, o.SetLocalDescription(ctx, negotiation.SdpOffer, offer))
	require.Len(t, o.Mids(), 4)

	require.NoError(t, a.SetRemoteDescription(ctx, negotiation.SdpOffer, offer))
	answer, err := a.CreateAnswer(ctx)
	require.NoError(t, err)
	require.NoError(t, a.SetLocalDescription(ctx, negotiation.SdpAnswer, answer))
	require.NoError(t, o.SetRemoteDescription(ctx, negotiation.SdpAnswer, answer))

	assert.Equal(t, o.Mids(), a.Mids())
	assert.Equal(t, webrtc.SignalingStateStable, o.pc.Load().SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, a.pc.Load().SignalingState())
}

func TestAddTrackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(nil, nil)
	require.NoError(t, err)
	c := newConn(t, f, 1)

	require.NoError(t, c.AddRecvTrack(ctx, recvTrack(1, domain.MediaAudio)))
	require.NoError(t, c.AddRecvTrack(ctx, recvTrack(1, domain.MediaAudio)))
	assert.Len(t, c.pc.Load().GetTransceivers(), 1)

	require.NoError(t, c.RemoveTrack(1))
	require.NoError(t, c.RemoveTrack(1))
}

func TestRollbackLocalOffer(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(nil, nil)
	require.NoError(t, err)
	c := newConn(t, f, 1)
	require.NoError(t, c.AddRecvTrack(ctx, recvTrack(1, domain.MediaAudio)))

	offer, err := c.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetLocalDescription(ctx, negotiation.SdpOffer, offer))
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, c.pc.Load().SignalingState())

	require.NoError(t, c.Rollback(ctx))
	assert.Equal(t, webrtc.SignalingStateStable, c.pc.Load().SignalingState())
	assert.Len(t, c.pc.Load().GetTransceivers(), 1)
	assert.Empty(t, c.Mids())

	offer, err = c.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetLocalDescription(ctx, negotiation.SdpOffer, offer))
	assert.Len(t, c.Mids(), 1)
}

func TestRollbackAfterCompletedRound(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(nil, nil)
	require.NoError(t, err)
	o, a := newConn(t, f, 1), newConn(t, f, 2)

	round := func() {
		t.Helper()
		offer, err := o.CreateOffer(ctx)
		require.NoError(t, err)
		require.NoError(t, o.SetLocalDescription(ctx, negotiation.SdpOffer, offer))
		require.NoError(t, a.SetRemoteDescription(ctx, negotiation.SdpOffer, offer))
		answer, err := a.CreateAnswer(ctx)
		require.NoError(t, err)
		require.NoError(t, a.SetLocalDescription(ctx, negotiation.SdpAnswer, answer))
		require.NoError(t, o.SetRemoteDescription(ctx, negotiation.SdpAnswer, answer))
	}

	require.NoError(t, o.AddRecvTrack(ctx, recvTrack(1, domain.MediaAudio)))
	require.NoError(t, a.AddSendTrack(ctx, sendTrack(1, domain.MediaAudio)))
	round()
	before := o.pc.Load()
	remote := before.CurrentRemoteDescription().SDP

	require.NoError(t, o.AddRecvTrack(ctx, recvTrack(2, domain.MediaVideo)))
	offer, err := o.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, o.SetLocalDescription(ctx, negotiation.SdpOffer, offer))

	require.NoError(t, o.Rollback(ctx))
	assert.Same(t, before, o.pc.Load())
	assert.Equal(t, webrtc.SignalingStateStable, before.SignalingState())
	assert.Equal(t, negotiation.IceUfrag(remote), negotiation.IceUfrag(before.CurrentRemoteDescription().SDP))

	require.ErrorIs(t, a.AddSendTrack(ctx, sendTrack(2, domain.MediaVideo)), ErrDeviceUnavailable)
	round()
	assert.Equal(t, webrtc.SignalingStateStable, before.SignalingState())
	assert.Equal(t, o.Mids(), a.Mids())
	assert.Len(t, o.Mids(), 2)
}

func TestRollbackInStableIsNoop(t *testing.T) {
	f, err := NewFactory(nil, nil)
	require.NoError(t, err)
	c := newConn(t, f, 1)
	before := c.pc.Load()

	require.NoError(t, c.Rollback(context.Background()))
	assert.Same(t, before, c.pc.Load())
}

func TestSendGateFlagsAreIndependent(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticRTP(CodecFor(domain.MediaAudio), "1", "s")
	require.NoError(t, err)
	g := NewSendGate(track)
	pkt := &rtp.Packet{Header: rtp.Header{Version: 2}, Payload: opusSilence}

	require.NoError(t, g.WriteRTP(pkt))
	assert.Equal(t, uint64(1), g.Written())

	g.SetEnabled(false)
	g.SetMuted(true)
	g.SetEnabled(true)
	assert.Equal(t, GateMuted, g.State())
	require.NoError(t, g.WriteRTP(pkt))
	assert.Equal(t, uint64(1), g.Written())

	g.SetMuted(false)
	assert.Equal(t, GateOpen, g.State())
	g.Close()
	assert.Equal(t, GateClosed, g.State())
}

func TestConnectionGatesTrack(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(nil, nil)
	require.NoError(t, err)
	c := newConn(t, f, 1)

	tr := sendTrack(1, domain.MediaAudio)
	tr.Muted = true
	require.NoError(t, c.AddSendTrack(ctx, tr))
	g := c.Gate(1)
	require.NotNil(t, g)
	assert.Equal(t, GateMuted, g.State())

	c.SetTrackMuted(1, false)
	c.SetTrackEnabled(1, false)
	assert.Equal(t, GateDisabled, g.State())

	require.NoError(t, c.RemoveTrack(1))
	assert.Equal(t, GateClosed, g.State())
	assert.Nil(t, c.Gate(1))
}

type stubSource struct {
	pkts chan *rtp.Packet
}

func (s *stubSource) ReadRTP(ctx context.Context) (*rtp.Packet, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p, ok := <-s.pkts:
		if !ok {
			return nil, errors.New("eof")
		}
		return p, nil
	}
}

func (s *stubSource) Close() error { return nil }

func TestPumpStopsOnSourceEnd(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticRTP(CodecFor(domain.MediaAudio), "1", "s")
	require.NoError(t, err)
	g := NewSendGate(track)
	src := &stubSource{pkts: make(chan *rtp.Packet, 3)}
	for range 3 {
		src.pkts <- &rtp.Packet{Header: rtp.Header{Version: 2}, Payload: opusSilence}
	}
	close(src.pkts)

	done := make(chan struct{})
	lg := zerolog.Nop()
	go func() {
		pump(context.Background(), src, g, &lg)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
	assert.Equal(t, uint64(3), g.Written())
	assert.Equal(t, GateClosed, g.State())
}

func TestSilence(t *testing.T) {
	src, err := SilenceCapturer{Frame: time.Millisecond}.Capture(context.Background(), media(domain.MediaAudio))
	require.NoError(t, err)
	defer src.Close()

	p1, err := src.ReadRTP(context.Background())
	require.NoError(t, err)
	p2, err := src.ReadRTP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p1.SequenceNumber+1, p2.SequenceNumber)
	assert.Equal(t, p1.Timestamp+48, p2.Timestamp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ReadRTP(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigForceRelay(t *testing.T) {
	cfg := Config([]protocol.IceServer{{URLs: []string{"turn:turn.example.org"}, Username: "u", Credential: "p"}}, true)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, cfg.ICETransportPolicy)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "p", cfg.ICEServers[0].Credential)

	assert.Equal(t, webrtc.ICETransportPolicyAll, Config(nil, false).ICETransportPolicy)
}
