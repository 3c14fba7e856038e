package client

import (
	"slices"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

// intent is a local change not yet confirmed by the coordinator.
type intent struct {
	enabled *bool
	muted   *bool
}

func (in *intent) empty() bool { return in.enabled == nil && in.muted == nil }

type mediaKey struct {
	kind      domain.MediaKind
	direction protocol.Direction
}

// SetTrackEnabled enables or disables the local side of a track. The change
// applies at once and is sent to the coordinator; it survives a lost
// session and is sent again on resync.
func (r *Room) SetTrackEnabled(id domain.TrackID, enabled bool) error {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, err := r.intentTarget(id)
	if err != nil {
		return err
	}
	if !enabled && tr.required() {
		return newError(KindState, ErrRequiredTrack, "track %s", id)
	}
	r.setEnabled(tr, enabled)
	r.sendPatches(tr.peer, []domain.TrackID{id})
	return nil
}

// SetTrackMuted mutes or unmutes an outgoing track.
func (r *Room) SetTrackMuted(id domain.TrackID, muted bool) error {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, err := r.intentTarget(id)
	if err != nil {
		return err
	}
	if !tr.sends() {
		return newError(KindState, ErrNotSender, "track %s", id)
	}
	r.setMuted(tr, muted)
	r.sendPatches(tr.peer, []domain.TrackID{id})
	return nil
}

// SetMediaEnabled applies enabled to every track of a kind and direction,
// and to the ones that arrive later. Nothing changes if one of the tracks
// refuses.
func (r *Room) SetMediaEnabled(kind domain.MediaKind, dir protocol.Direction, enabled bool) error {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return newError(KindState, ErrRoomClosed, "%s %s", dir, kind)
	}
	tracks := r.tracksOf(kind, dir)
	if !enabled {
		for _, tr := range tracks {
			if tr.required() {
				return newError(KindState, ErrRequiredTrack, "track %s", tr.id)
			}
		}
	}
	r.defaultFor(mediaKey{kind: kind, direction: dir}).enabled = protocol.Bool(enabled)
	for _, tr := range tracks {
		r.setEnabled(tr, enabled)
	}
	r.sendGrouped(tracks)
	return nil
}

// SetMediaMuted mutes every outgoing track of a kind, present and future.
func (r *Room) SetMediaMuted(kind domain.MediaKind, muted bool) error {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return newError(KindState, ErrRoomClosed, "%s", kind)
	}
	tracks := r.tracksOf(kind, protocol.DirectionSend)
	r.defaultFor(mediaKey{kind: kind, direction: protocol.DirectionSend}).muted = protocol.Bool(muted)
	for _, tr := range tracks {
		r.setMuted(tr, muted)
	}
	r.sendGrouped(tracks)
	return nil
}

// Batch runs fn and reports the resulting transitions only afterwards, so
// changes that cancel out inside fn produce no callback.
func (r *Room) Batch(fn func()) {
	r.d.begin()
	defer r.d.end()
	fn()
}

func (r *Room) intentTarget(id domain.TrackID) (*Track, error) {
	if r.closed {
		return nil, newError(KindState, ErrRoomClosed, "track %s", id)
	}
	tr, ok := r.tracks[id]
	if !ok {
		return nil, newError(KindState, ErrUnknownTrack, "track %s", id)
	}
	return tr, nil
}

func (r *Room) intentFor(id domain.TrackID) *intent {
	in, ok := r.intents[id]
	if !ok {
		in = &intent{}
		r.intents[id] = in
	}
	return in
}

func (r *Room) defaultFor(k mediaKey) *intent {
	in, ok := r.defaults[k]
	if !ok {
		in = &intent{}
		r.defaults[k] = in
	}
	return in
}

func (r *Room) setEnabled(tr *Track, enabled bool) {
	wasEnabled, wasMuted := tr.Enabled(), tr.muted
	tr.setIndividual(enabled)
	r.intentFor(tr.id).enabled = protocol.Bool(enabled)
	r.trackChanged(r.peers[tr.peer], tr, wasEnabled, wasMuted)
}

func (r *Room) setMuted(tr *Track, muted bool) {
	wasEnabled, wasMuted := tr.Enabled(), tr.muted
	tr.muted = muted
	r.intentFor(tr.id).muted = protocol.Bool(muted)
	r.trackChanged(r.peers[tr.peer], tr, wasEnabled, wasMuted)
}

func (r *Room) tracksOf(kind domain.MediaKind, dir protocol.Direction) []*Track {
	var out []*Track
	for _, id := range sortedTrackIDs(r.tracks) {
		tr := r.tracks[id]
		if tr.media.Kind == kind && tr.direction == dir {
			out = append(out, tr)
		}
	}
	return out
}

// sendPatches sends the pending intents of ids. A failed send keeps them
// for the next resync.
func (r *Room) sendPatches(peer domain.PeerID, ids []domain.TrackID) {
	var patches []protocol.TrackPatchCommand
	for _, id := range ids {
		in, ok := r.intents[id]
		if !ok || in.empty() {
			continue
		}
		patches = append(patches, protocol.TrackPatchCommand{ID: id, Enabled: in.enabled, Muted: in.muted})
	}
	if len(patches) == 0 {
		return
	}
	if err := r.send(protocol.UpdateTracks{PeerID: peer, TracksPatches: patches}); err != nil {
		r.log.Debug().Err(err).Stringer("peer", peer).Int("patches", len(patches)).Msg("intents kept until resync")
	}
}

func (r *Room) sendGrouped(tracks []*Track) {
	byPeer := make(map[domain.PeerID][]domain.TrackID)
	for _, tr := range tracks {
		byPeer[tr.peer] = append(byPeer[tr.peer], tr.id)
	}
	peers := make([]domain.PeerID, 0, len(byPeer))
	for id := range byPeer {
		peers = append(peers, id)
	}
	slices.Sort(peers)
	for _, id := range peers {
		r.sendPatches(id, byPeer[id])
	}
}

// resendIntents sends every unconfirmed intent again.
func (r *Room) resendIntents() {
	var tracks []*Track
	for _, id := range sortedTrackIDs(r.tracks) {
		if in, ok := r.intents[id]; ok && !in.empty() {
			tracks = append(tracks, r.tracks[id])
		}
	}
	for id := range r.intents {
		if _, ok := r.tracks[id]; !ok {
			delete(r.intents, id)
		}
	}
	r.sendGrouped(tracks)
}
