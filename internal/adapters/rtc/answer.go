package rtc

import (
	"errors"
	"strings"

	"github.com/pion/sdp/v3"
)

var errNoRemoteMedia = errors.New("remote description has no media")

// restoringAnswer answers a pending local offer with the transport and media
// of the last completed round. m-lines the offer added are answered inactive.
func restoringAnswer(offer, remote string) (string, error) {
	var o, r sdp.SessionDescription
	if err := o.UnmarshalString(offer); err != nil {
		return "", err
	}
	if err := r.UnmarshalString(remote); err != nil {
		return "", err
	}
	if len(r.MediaDescriptions) == 0 {
		return "", errNoRemoteMedia
	}

	known := make(map[string]*sdp.MediaDescription, len(r.MediaDescriptions))
	for _, m := range r.MediaDescriptions {
		if mid, ok := m.Attribute(sdp.AttrKeyMID); ok {
			known[mid] = m
		}
	}
	transport := r.MediaDescriptions[0]

	answer := r
	answer.MediaDescriptions = make([]*sdp.MediaDescription, 0, len(o.MediaDescriptions))
	for _, om := range o.MediaDescriptions {
		mid, _ := om.Attribute(sdp.AttrKeyMID)
		if m, ok := known[mid]; ok {
			answer.MediaDescriptions = append(answer.MediaDescriptions, withoutCandidates(m))
			continue
		}
		answer.MediaDescriptions = append(answer.MediaDescriptions, inactiveMedia(om, transport))
	}

	answer.Attributes = make([]sdp.Attribute, 0, len(r.Attributes))
	for _, a := range r.Attributes {
		if a.Key == sdp.AttrKeyGroup && strings.HasPrefix(a.Value, "BUNDLE") {
			if g, ok := bundleGroup(&o); ok {
				a.Value = g
			}
		}
		answer.Attributes = append(answer.Attributes, a)
	}

	out, err := answer.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func withoutCandidates(m *sdp.MediaDescription) *sdp.MediaDescription {
	c := *m
	c.Attributes = make([]sdp.Attribute, 0, len(m.Attributes))
	for _, a := range m.Attributes {
		if a.Key == sdp.AttrKeyCandidate || a.Key == sdp.AttrKeyEndOfCandidates {
			continue
		}
		c.Attributes = append(c.Attributes, a)
	}
	return &c
}

// inactiveMedia answers an offered m-line with its own codecs and the
// transport credentials of an established m-line.
func inactiveMedia(offered, transport *sdp.MediaDescription) *sdp.MediaDescription {
	m := &sdp.MediaDescription{
		MediaName:             offered.MediaName,
		ConnectionInformation: transport.ConnectionInformation,
	}
	for _, a := range offered.Attributes {
		switch a.Key {
		case sdp.AttrKeyMID, "rtpmap", "fmtp", "rtcp-fb", sdp.AttrKeyExtMap, sdp.AttrKeyRTCPMux, sdp.AttrKeyRTCPRsize:
			m.Attributes = append(m.Attributes, a)
		}
	}
	for _, a := range transport.Attributes {
		switch a.Key {
		case "ice-ufrag", "ice-pwd", "fingerprint", sdp.AttrKeyConnectionSetup:
			m.Attributes = append(m.Attributes, a)
		}
	}
	m.Attributes = append(m.Attributes, sdp.NewPropertyAttribute(sdp.AttrKeyInactive))
	return m
}

func bundleGroup(s *sdp.SessionDescription) (string, bool) {
	for _, a := range s.Attributes {
		if a.Key == sdp.AttrKeyGroup && strings.HasPrefix(a.Value, "BUNDLE") {
			return a.Value, true
		}
	}
	return "", false
}
