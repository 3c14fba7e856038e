package domain

import "fmt"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

type MediaSource string

const (
	SourceDevice  MediaSource = "device"
	SourceDisplay MediaSource = "display"
)

// PublishPolicy decides whether a kind is published by a Publish endpoint
// and whether the resulting Track may be disabled.
type PublishPolicy string

const (
	PolicyOptional PublishPolicy = "optional"
	PolicyRequired PublishPolicy = "required"
	PolicyDisabled PublishPolicy = "disabled"
)

func (p PublishPolicy) valid() bool {
	switch p {
	case PolicyOptional, PolicyRequired, PolicyDisabled:
		return true
	}
	return false
}

type P2PMode string

const (
	P2PAlways     P2PMode = "always"
	P2PNever      P2PMode = "never"
	P2PIfPossible P2PMode = "if_possible"
)

type AudioSettings struct {
	Policy PublishPolicy
}

type VideoSettings struct {
	Policy PublishPolicy
	Source MediaSource
}

// PublishEndpoint declares the tracks a Member offers.
type PublishEndpoint struct {
	ID         EndpointID
	P2P        P2PMode
	ForceRelay bool
	Audio      AudioSettings
	Video      VideoSettings
}

// TrackKind is one media kind a Publish endpoint produces.
type TrackKind struct {
	Kind   MediaKind
	Source MediaSource
	Policy PublishPolicy
}

// Kinds lists the kinds this endpoint publishes, audio first.
func (e PublishEndpoint) Kinds() []TrackKind {
	out := make([]TrackKind, 0, 2)
	if e.Audio.Policy != PolicyDisabled {
		out = append(out, TrackKind{Kind: MediaAudio, Source: SourceDevice, Policy: e.Audio.Policy})
	}
	if e.Video.Policy != PolicyDisabled {
		src := e.Video.Source
		if src == "" {
			src = SourceDevice
		}
		out = append(out, TrackKind{Kind: MediaVideo, Source: src, Policy: e.Video.Policy})
	}
	return out
}

// Normalize fills zero values with defaults.
func (e *PublishEndpoint) Normalize() {
	if e.P2P == "" {
		e.P2P = P2PAlways
	}
	if e.Audio.Policy == "" {
		e.Audio.Policy = PolicyOptional
	}
	if e.Video.Policy == "" {
		e.Video.Policy = PolicyOptional
	}
	if e.Video.Source == "" {
		e.Video.Source = SourceDevice
	}
}

func (e PublishEndpoint) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: publish endpoint id is empty", ErrInvalidSpec)
	}
	if !e.Audio.Policy.valid() || !e.Video.Policy.valid() {
		return fmt.Errorf("%w: publish endpoint %s has unknown publish policy", ErrInvalidSpec, e.ID)
	}
	switch e.Video.Source {
	case SourceDevice, SourceDisplay:
	default:
		return fmt.Errorf("%w: publish endpoint %s has unknown video source %q", ErrInvalidSpec, e.ID, e.Video.Source)
	}
	if e.P2P == P2PNever {
		return fmt.Errorf("%w: publish endpoint %s: p2p mode %q needs a media relay", ErrInvalidSpec, e.ID, e.P2P)
	}
	return nil
}

// PlayEndpoint declares a source this Member wants to receive.
type PlayEndpoint struct {
	ID         EndpointID
	Src        SrcURI
	ForceRelay bool
}

func (e PlayEndpoint) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: play endpoint id is empty", ErrInvalidSpec)
	}
	if e.Src.Endpoint == "" || e.Src.Member == "" || e.Src.Room == "" {
		return fmt.Errorf("%w: play endpoint %s has no source", ErrInvalidSpec, e.ID)
	}
	return nil
}
