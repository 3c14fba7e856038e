package client

import (
	"slices"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

func sortedTrackIDs(tracks map[domain.TrackID]*Track) []domain.TrackID {
	ids := make([]domain.TrackID, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// fullPatch turns a complete track into a patch so a replayed track goes
// through the same precedence rules as an update.
func fullPatch(t protocol.Track) protocol.TrackPatchEvent {
	return protocol.TrackPatchEvent{
		ID:                t.ID,
		EnabledIndividual: protocol.Bool(t.EnabledIndividual),
		EnabledGeneral:    protocol.Bool(t.EnabledGeneral),
		Muted:             protocol.Bool(t.Muted),
	}
}

// addTrack attaches a track to its peer. A known id is treated as a patch.
func (r *Room) addTrack(p *Peer, t protocol.Track) {
	if tr, ok := p.tracks[t.ID]; ok {
		if t.Mid != "" {
			tr.mid = t.Mid
		}
		r.patchTrack(p, tr, fullPatch(t))
		return
	}
	tr := newTrack(p.id, t)
	if tr.member == "" {
		tr.member = p.member
	}
	p.tracks[t.ID] = tr
	r.tracks[t.ID] = tr
	defaulted := r.applyDefaults(tr)

	if tr.sends() {
		if err := p.conn.AddSendTrack(r.ctx, t); err != nil {
			r.reportError(KindMedia, err, "%s track %s", t.Media.Kind, t.ID)
		}
		p.conn.SetTrackEnabled(tr.id, tr.general)
		p.conn.SetTrackMuted(tr.id, tr.muted)
	} else if err := p.conn.AddRecvTrack(r.ctx, t); err != nil {
		r.reportError(KindNegotiation, err, "track %s", t.ID)
	}
	r.d.track(tr.info(), true)
	r.log.Debug().Stringer("peer", p.id).Stringer("track", t.ID).Str("direction", string(t.Direction)).Msg("track added")
	if defaulted {
		r.sendPatches(p.id, []domain.TrackID{tr.id})
	}
}

// applyDefaults turns a stored intent for the track, or the default of its
// media kind, into the track's local state. It reports whether an intent
// has to be sent.
func (r *Room) applyDefaults(tr *Track) bool {
	in, ok := r.intents[tr.id]
	if !ok {
		def, ok := r.defaults[mediaKey{kind: tr.media.Kind, direction: tr.direction}]
		if !ok {
			return false
		}
		in = &intent{}
		if def.enabled != nil && *def.enabled != tr.individual && (*def.enabled || !tr.required()) {
			in.enabled = protocol.Bool(*def.enabled)
		}
		if def.muted != nil && tr.sends() && *def.muted != tr.muted {
			in.muted = protocol.Bool(*def.muted)
		}
		if in.empty() {
			return false
		}
		r.intents[tr.id] = in
	}
	if in.enabled != nil {
		tr.setIndividual(*in.enabled)
	}
	if in.muted != nil {
		tr.muted = *in.muted
	}
	return true
}

func (r *Room) removeTrack(p *Peer, id domain.TrackID) {
	tr, ok := p.tracks[id]
	if !ok {
		return
	}
	if err := p.conn.RemoveTrack(id); err != nil {
		r.log.Debug().Err(err).Stringer("track", id).Msg("remove track")
	}
	delete(p.tracks, id)
	delete(r.tracks, id)
	delete(r.intents, id)
	r.d.track(tr.info(), false)
	r.log.Debug().Stringer("peer", p.id).Stringer("track", id).Msg("track removed")
}

// patchTrack applies a coordinator patch. A pending local intent wins over
// a conflicting value and is dropped once the coordinator confirms it.
func (r *Room) patchTrack(p *Peer, tr *Track, patch protocol.TrackPatchEvent) {
	wasEnabled, wasMuted := tr.Enabled(), tr.muted
	in := r.intents[tr.id]

	if v := patch.EnabledIndividual; v != nil {
		switch {
		case in == nil || in.enabled == nil:
			tr.setIndividual(*v)
		case *in.enabled == *v:
			in.enabled = nil
		default:
			r.log.Debug().Stringer("track", tr.id).Msg("enabled patch overridden by local intent")
		}
	}
	if v := patch.EnabledGeneral; v != nil {
		tr.setGeneral(*v && tr.individual)
	}
	if v := patch.Muted; v != nil {
		switch {
		case !tr.sends() || in == nil || in.muted == nil:
			tr.muted = *v
		case *in.muted == *v:
			in.muted = nil
		default:
			r.log.Debug().Stringer("track", tr.id).Msg("mute patch overridden by local intent")
		}
	}
	if in != nil && in.empty() {
		delete(r.intents, tr.id)
	}
	r.trackChanged(p, tr, wasEnabled, wasMuted)
}

// trackChanged pushes the flags of a track to its media and records the
// transitions for the dispatcher.
func (r *Room) trackChanged(p *Peer, tr *Track, wasEnabled, wasMuted bool) {
	if tr.sends() {
		p.conn.SetTrackEnabled(tr.id, tr.general)
		p.conn.SetTrackMuted(tr.id, tr.muted)
	}
	info := tr.info()
	if info.Enabled != wasEnabled {
		r.d.enabled(info, wasEnabled)
	}
	if info.Muted != wasMuted {
		r.d.muted(info, wasMuted)
	}
}

// reconcileTracks makes the tracks of p match a full list.
func (r *Room) reconcileTracks(p *Peer, tracks []protocol.Track) {
	keep := make(map[domain.TrackID]bool, len(tracks))
	for _, t := range tracks {
		keep[t.ID] = true
	}
	for _, id := range sortedTrackIDs(p.tracks) {
		if !keep[id] {
			r.removeTrack(p, id)
		}
	}
	for _, t := range tracks {
		r.addTrack(p, t)
	}
}
