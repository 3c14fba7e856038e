package rtc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrDeviceUnavailable = errors.New("media device unavailable")

// PacketSource produces the RTP packets of one local track.
type PacketSource interface {
	ReadRTP(ctx context.Context) (*rtp.Packet, error)
	Close() error
}

// Capturer opens local media for a track kind.
type Capturer interface {
	Capture(ctx context.Context, media protocol.MediaType) (PacketSource, error)
}

// CodecFor is the codec announced for a local track of the given kind.
func CodecFor(kind domain.MediaKind) webrtc.RTPCodecCapability {
	if kind == domain.MediaVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

// SilenceCapturer produces opus silence for audio and has no video device.
type SilenceCapturer struct {
	Frame time.Duration
}

func (c SilenceCapturer) Capture(_ context.Context, media protocol.MediaType) (PacketSource, error) {
	if media.Kind != domain.MediaAudio {
		return nil, fmt.Errorf("%w: %s/%s", ErrDeviceUnavailable, media.Kind, media.Source)
	}
	frame := c.Frame
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}
	return NewSilence(frame), nil
}

// opusSilence is a single opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Silence paces opus silence frames.
type Silence struct {
	frame  time.Duration
	ticker *time.Ticker
	seq    uint16
	ts     uint32
	step   uint32
}

func NewSilence(frame time.Duration) *Silence {
	return &Silence{
		frame:  frame,
		ticker: time.NewTicker(frame),
		step:   uint32(48000 * frame / time.Second),
	}
}

func (s *Silence) ReadRTP(ctx context.Context) (*rtp.Packet, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         s.seq == 0,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
		},
		Payload: opusSilence,
	}
	s.seq++
	s.ts += s.step
	return pkt, nil
}

func (s *Silence) Close() error {
	s.ticker.Stop()
	return nil
}
