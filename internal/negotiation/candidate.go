package negotiation

import (
	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog/log"
)

// Candidate is a trickled ICE candidate.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SdpMLineIndex    *uint16 `json:"sdp_m_line_index,omitempty"`
	SdpMid           *string `json:"sdp_mid,omitempty"`
	UsernameFragment string  `json:"username_fragment,omitempty"`
}

// CandidateBuffer holds remote candidates until the remote description they
// belong to is applied. Candidates tagged with a ufrag of an older round are
// dropped. Not safe for concurrent use.
type CandidateBuffer struct {
	pending []Candidate
	ufrag   string
	ready   bool
}

// Push returns the candidates that may be applied right away.
func (b *CandidateBuffer) Push(c Candidate) []Candidate {
	if !b.ready {
		b.pending = append(b.pending, c)
		return nil
	}
	if b.stale(c) {
		log.Debug().Str("module", "negotiation").Str("ufrag", c.UsernameFragment).Msg("discarding candidate of a previous round")
		return nil
	}
	return []Candidate{c}
}

// RemoteApplied records the applied remote description and releases the
// queued candidates that match it.
func (b *CandidateBuffer) RemoteApplied(remoteSDP string) []Candidate {
	b.ufrag = IceUfrag(remoteSDP)
	b.ready = true
	queued := b.pending
	b.pending = nil
	out := queued[:0]
	for _, c := range queued {
		if b.stale(c) {
			log.Debug().Str("module", "negotiation").Str("ufrag", c.UsernameFragment).Msg("discarding queued candidate of a previous round")
			continue
		}
		out = append(out, c)
	}
	return out
}

// Hold makes subsequent candidates queue until the next RemoteApplied.
func (b *CandidateBuffer) Hold() { b.ready = false }

func (b *CandidateBuffer) Len() int { return len(b.pending) }

func (b *CandidateBuffer) Reset() {
	b.pending = nil
	b.ufrag = ""
	b.ready = false
}

func (b *CandidateBuffer) stale(c Candidate) bool {
	return c.UsernameFragment != "" && b.ufrag != "" && c.UsernameFragment != b.ufrag
}

// IceUfrag returns the ice-ufrag of an SDP blob, session level first. Empty
// when the blob does not parse or carries none.
func IceUfrag(raw string) string {
	if raw == "" {
		return ""
	}
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(raw); err != nil {
		return ""
	}
	if v, ok := desc.Attribute("ice-ufrag"); ok {
		return v
	}
	for _, m := range desc.MediaDescriptions {
		if v, ok := m.Attribute("ice-ufrag"); ok {
			return v
		}
	}
	return ""
}
