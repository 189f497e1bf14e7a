package core

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

const DefaultRoomCapacity = 50

// RoomManager is the process-wide room registry. Rooms exist between the
// first join and the last leave; an emptied room is dropped immediately.
type RoomManager struct {
	capacity int
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomImpl

	// Reverse index sid -> rooms. Always updated from inside the room's
	// critical section; lock order is room.mu -> idxMu.
	idxMu       sync.Mutex
	memberships map[SessionID]map[domain.RoomID]struct{}
}

func NewRoomManager(capacity int) *RoomManager {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &RoomManager{
		capacity:    capacity,
		now:         time.Now,
		rooms:       make(map[domain.RoomID]*roomImpl),
		memberships: make(map[SessionID]map[domain.RoomID]struct{}),
	}
}

func (m *RoomManager) Capacity() int { return m.capacity }

// EnsureRoom returns the room for id, creating an empty one if needed.
// Join is the only caller in the server; the room is expected to be joined
// right away.
func (m *RoomManager) EnsureRoom(id domain.RoomID) RoomService {
	return m.ensure(id)
}

func (m *RoomManager) ensure(id domain.RoomID) *roomImpl {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room
	}
	room = newRoom(id, m.now())
	m.rooms[id] = room
	log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (m *RoomManager) GetRoom(id domain.RoomID) (RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	return room, true
}

func (m *RoomManager) Exists(id domain.RoomID) bool {
	_, ok := m.GetRoom(id)
	return ok
}

func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*roomImpl, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{ID: r.room.ID, MemberCount: r.MemberCount(), CreatedAt: r.room.CreatedAt})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Join adds ms to room id, creating the room on first join.
// Returns domain.ErrRoomFull when the room is at capacity.
func (m *RoomManager) Join(id domain.RoomID, ms MemberSession) (JoinResult, error) {
	sid := ms.SID()
	for {
		room := m.ensure(id)
		res, err := room.join(ms, m.capacity, func() { m.track(sid, id) })
		if errors.Is(err, domain.ErrRoomClosed) {
			// Lost a race with the last leaver; start over on a fresh room.
			m.drop(id, room)
			continue
		}
		return res, err
	}
}

// Leave removes sid from room id. It reports false when sid was not a member.
func (m *RoomManager) Leave(id domain.RoomID, sid SessionID, notice string) (LeaveResult, bool) {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return LeaveResult{}, false
	}
	res, ok := room.leave(sid, notice, func() { m.untrack(sid, id) })
	if !ok {
		return LeaveResult{}, false
	}
	if res.Empty {
		m.drop(id, room)
	}
	return res, true
}

// RoomsOf returns the rooms sid is currently a member of.
func (m *RoomManager) RoomsOf(sid SessionID) []domain.RoomID {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	set := m.memberships[sid]
	out := make([]domain.RoomID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (m *RoomManager) drop(id domain.RoomID, room *roomImpl) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[id] == room {
		delete(m.rooms, id)
		log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room removed")
	}
}

func (m *RoomManager) track(sid SessionID, id domain.RoomID) {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	set, ok := m.memberships[sid]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		m.memberships[sid] = set
	}
	set[id] = struct{}{}
}

func (m *RoomManager) untrack(sid SessionID, id domain.RoomID) {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	set := m.memberships[sid]
	delete(set, id)
	if len(set) == 0 {
		delete(m.memberships, sid)
	}
}
