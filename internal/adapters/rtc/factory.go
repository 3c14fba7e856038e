package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// Factory opens pion peer connections sharing one API instance.
type Factory struct {
	api     *webrtc.API
	capture Capturer
}

func NewFactory(capture Capturer, lf logging.LoggerFactory) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	if lf != nil {
		se.LoggerFactory = lf
	}
	if capture == nil {
		capture = SilenceCapturer{}
	}
	return &Factory{
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		capture: capture,
	}, nil
}

// Config builds the pion configuration of a peer. Force relay restricts ICE
// to TURN candidates.
func Config(iceServers []protocol.IceServer, forceRelay bool) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	for _, s := range iceServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, srv)
	}
	if forceRelay {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return cfg
}

func (f *Factory) NewConnection(ctx context.Context, peer domain.PeerID, iceServers []protocol.IceServer, forceRelay bool) (core.MediaConnection, error) {
	c, err := newConnection(ctx, f.api, Config(iceServers, forceRelay), peer, f.capture)
	if err != nil {
		return nil, fmt.Errorf("peer %s: %w", peer, err)
	}
	return c, nil
}
