package app

import (
	"fmt"
	"slices"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

// handleUpdateTracks applies enable and mute intents of one member. The whole
// command is validated before any track changes.
//
// Muting and flipping one side's enabled flag only patch the tracks. A track
// whose both sides become disabled (or stop being so) changes transceiver
// presence and renegotiates the pair.
func (r *Room) handleUpdateTracks(from domain.MemberID, cmd protocol.UpdateTracks) error {
	p, q, err := r.peerOf(from, cmd.PeerID)
	if err != nil {
		return err
	}
	for _, patch := range cmd.TracksPatches {
		if !slices.Contains(p.tracks, patch.ID) {
			return fmt.Errorf("%w: track %s on peer %s", domain.ErrNotFound, patch.ID, p.id)
		}
		t := r.tracks[patch.ID]
		if patch.Enabled != nil && !*patch.Enabled && t.sender == from && t.policy == domain.PolicyRequired {
			return fmt.Errorf("%w: track %s", domain.ErrRequiredTrack, t.id)
		}
	}

	var mine, theirs []protocol.TrackPatchEvent
	renegotiate := false
	for _, patch := range cmd.TracksPatches {
		t := r.tracks[patch.ID]
		own := protocol.TrackPatchEvent{ID: t.id}
		other := protocol.TrackPatchEvent{ID: t.id}

		if patch.Enabled != nil {
			wasGeneral, wasOff := t.general(), t.bothDisabled()
			if t.sender == from {
				t.sendEnabled = *patch.Enabled
			} else {
				t.recvEnabled = *patch.Enabled
			}
			own.EnabledIndividual = protocol.Bool(*patch.Enabled)
			if g := t.general(); g != wasGeneral {
				own.EnabledGeneral = protocol.Bool(g)
				other.EnabledGeneral = protocol.Bool(g)
			}
			if t.bothDisabled() != wasOff {
				renegotiate = true
			}
		}
		if patch.Muted != nil {
			if t.sender != from {
				r.log.Debug().Str("member", string(from)).Stringer("track", t.id).Msg("mute from receiver ignored")
			} else {
				own.Muted = protocol.Bool(*patch.Muted)
				if t.muted != *patch.Muted {
					t.muted = *patch.Muted
					other.Muted = protocol.Bool(t.muted)
				}
			}
		}
		if !own.Empty() {
			mine = append(mine, own)
		}
		if !other.Empty() {
			theirs = append(theirs, other)
		}
	}

	r.deliverPatches(p, mine, renegotiate)
	r.deliverPatches(q, theirs, renegotiate)
	if renegotiate {
		r.renegotiate(p, q)
	}
	return nil
}

// deliverPatches sends patches now, or keeps them for the round they belong
// to.
func (r *Room) deliverPatches(p *peer, patches []protocol.TrackPatchEvent, withRound bool) {
	if len(patches) == 0 || !p.created {
		return
	}
	updates := make([]protocol.TrackUpdate, 0, len(patches))
	for _, patch := range patches {
		updates = append(updates, protocol.Updated(patch))
	}
	if withRound {
		p.pending = append(p.pending, updates...)
		return
	}
	r.send(p.member, protocol.TracksApplied{PeerID: p.id, Updates: updates})
}
