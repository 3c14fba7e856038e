package app

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager owns the rooms of this server. Rooms are independent: each one
// serializes its own mutations.
type RoomManager struct {
	settings  Settings
	policy    Policy
	callbacks core.CallbackSender

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRoomManager(settings Settings, policy Policy, callbacks core.CallbackSender) *RoomManager {
	return &RoomManager{
		settings:  settings,
		policy:    policy,
		callbacks: callbacks,
		rooms:     make(map[domain.RoomID]*Room),
	}
}

func (f *RoomManager) Settings() Settings { return f.settings }

func (f *RoomManager) Create(spec domain.RoomSpec) (*Room, error) {
	room, err := NewRoom(spec, f.settings, f.policy, f.callbacks)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[spec.ID]; ok {
		return nil, fmt.Errorf("%w: room %s", domain.ErrDuplicateID, spec.ID)
	}
	f.rooms[spec.ID] = room
	log.Info().Str("module", "app.rooms").Str("room", string(spec.ID)).Int("members", len(spec.Members)).Msg("room created")
	return room, nil
}

func (f *RoomManager) Get(id domain.RoomID) (*Room, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", domain.ErrNotFound, id)
	}
	return room, nil
}

// Remove closes the room and forgets it.
func (f *RoomManager) Remove(id domain.RoomID, reason core.LeaveReason) error {
	f.mu.Lock()
	room, ok := f.rooms[id]
	delete(f.rooms, id)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: room %s", domain.ErrNotFound, id)
	}
	room.Close(reason)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room removed")
	return nil
}

func (f *RoomManager) List() []core.RoomInfo {
	f.mu.RLock()
	rooms := make([]*Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// CloseAll closes every room, used on shutdown.
func (f *RoomManager) CloseAll(reason core.LeaveReason) {
	f.mu.Lock()
	rooms := f.rooms
	f.rooms = make(map[domain.RoomID]*Room)
	f.mu.Unlock()
	for _, r := range rooms {
		r.Close(reason)
	}
}
