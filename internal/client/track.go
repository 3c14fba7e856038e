package client

import (
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

// Track mirrors one side of a media flow.
type Track struct {
	id        domain.TrackID
	peer      domain.PeerID
	member    domain.MemberID
	direction protocol.Direction
	media     protocol.MediaType
	mid       string

	individual bool
	general    bool
	// remote is the other side's individual flag as far as known.
	remote bool
	muted  bool
}

func newTrack(peer domain.PeerID, t protocol.Track) *Track {
	tr := &Track{
		id:        t.ID,
		peer:      peer,
		direction: t.Direction,
		media:     t.Media,
		mid:       t.Mid,
	}
	if t.Direction == protocol.DirectionRecv {
		tr.member = t.Sender
	} else if len(t.Receivers) > 0 {
		tr.member = t.Receivers[0]
	}
	tr.reset(t)
	return tr
}

func (t *Track) reset(v protocol.Track) {
	t.individual = v.EnabledIndividual
	t.general = v.EnabledGeneral
	t.remote = v.EnabledGeneral || !v.EnabledIndividual
	t.muted = v.Muted
	if v.Mid != "" {
		t.mid = v.Mid
	}
}

// Enabled is the own side's flag for outgoing tracks and the combined flag
// for incoming ones.
func (t *Track) Enabled() bool {
	if t.direction == protocol.DirectionSend {
		return t.individual
	}
	return t.general
}

func (t *Track) sends() bool { return t.direction == protocol.DirectionSend }

// required tracks are published under a required policy; their sender
// cannot disable them.
func (t *Track) required() bool { return t.sends() && t.media.Required }

func (t *Track) setIndividual(v bool) {
	t.individual = v
	t.general = v && t.remote
}

func (t *Track) setGeneral(v bool) {
	t.general = v
	if t.individual {
		t.remote = v
	}
}

func (t *Track) info() TrackInfo {
	return TrackInfo{
		ID:        t.id,
		Peer:      t.peer,
		Member:    t.member,
		Direction: t.direction,
		Media:     t.media,
		Mid:       t.mid,
		Enabled:   t.Enabled(),
		Muted:     t.muted,
	}
}
