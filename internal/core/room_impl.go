package core

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room

	mu     sync.Mutex
	bySID  map[SessionID]MemberSession
	order  []SessionID
	host   SessionID
	closed bool
}

func newRoom(id domain.RoomID, createdAt time.Time) *roomImpl {
	return &roomImpl{
		room:  &domain.Room{ID: id, CreatedAt: createdAt},
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySID)
}

func (r *roomImpl) MembersSnapshot() []protocol.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *roomImpl) Host() (SessionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host, r.host != ""
}

func (r *roomImpl) HasMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bySID[sid]
	return ok
}

// join inserts ms unless the room is full. onJoined runs inside the critical
// section so the registry's reverse index moves together with the room.
func (r *roomImpl) join(ms MemberSession, capacity int, onJoined func()) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinResult{}, domain.ErrRoomClosed
	}
	sid := ms.SID()
	res := JoinResult{Room: r.room.ID}

	if _, ok := r.bySID[sid]; ok {
		res.Rejoined = true
		res.IsHost = r.host == sid
		res.Participants = r.snapshotLocked()
		res.Publish = r.sendLocked(sid, protocol.EventRoomJoined, protocol.RoomJoined{
			RoomID:        string(r.room.ID),
			ConnectionKey: string(sid),
			IsHost:        res.IsHost,
			Participants:  res.Participants,
		})
		return res, nil
	}
	if capacity > 0 && len(r.bySID) >= capacity {
		return JoinResult{}, domain.ErrRoomFull
	}

	r.bySID[sid] = ms
	r.order = append(r.order, sid)
	if r.host == "" {
		r.host = sid
	}
	if onJoined != nil {
		onJoined()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("user", string(ms.Meta().User.ID)).Msg("member added")

	res.IsHost = r.host == sid
	res.Participants = r.snapshotLocked()
	res.Publish = r.sendLocked(sid, protocol.EventRoomJoined, protocol.RoomJoined{
		RoomID:        string(r.room.ID),
		ConnectionKey: string(sid),
		IsHost:        res.IsHost,
		Participants:  res.Participants,
	})
	res.Publish.merge(r.broadcastLocked(sid, protocol.EventUserJoined, protocol.UserJoined{
		RoomID:      string(r.room.ID),
		Participant: r.viewLocked(ms),
	}))
	res.Publish.merge(r.publishListLocked(res.Participants))
	return res, nil
}

// leave removes sid and tells the remaining members with the given notice
// event (user-left or user-leaving). Leaving a room twice is a no-op.
func (r *roomImpl) leave(sid SessionID, notice string, onLeft func()) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.bySID[sid]
	if !ok {
		return LeaveResult{}, false
	}
	res := LeaveResult{Member: r.viewLocked(ms)}

	delete(r.bySID, sid)
	r.order = slices.DeleteFunc(r.order, func(s SessionID) bool { return s == sid })
	if onLeft != nil {
		onLeft()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")

	if len(r.bySID) == 0 {
		r.closed = true
		r.host = ""
		res.Empty = true
		return res, true
	}

	if r.host == sid {
		// Earliest remaining joiner inherits the host role.
		r.host = r.order[0]
		res.NewHost = r.host
	}

	res.Publish = r.broadcastLocked("", notice, protocol.UserLeft{
		RoomID:        string(r.room.ID),
		ConnectionKey: string(sid),
		DisplayName:   res.Member.DisplayName,
	})
	if res.NewHost != "" {
		res.Publish.merge(r.broadcastLocked("", protocol.EventHostChanged, protocol.HostChanged{
			RoomID:        string(r.room.ID),
			ConnectionKey: string(res.NewHost),
		}))
	}
	res.Publish.merge(r.publishListLocked(r.snapshotLocked()))
	return res, true
}

func (r *roomImpl) UpdateStatus(sid SessionID, upd domain.StatusUpdate) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.bySID[sid]
	if !ok {
		return PublishResult{}, domain.ErrUnknownParticipant
	}
	upd.ApplyTo(ms.Meta())
	// The list is re-sent even when nothing changed; clients treat it as the ack.
	return r.publishListLocked(r.snapshotLocked()), nil
}

func (r *roomImpl) SetScreenSharing(sid SessionID, on bool) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.bySID[sid]
	if !ok {
		return PublishResult{}, domain.ErrUnknownParticipant
	}
	ms.Meta().ScreenSharing = on

	res := r.publishListLocked(r.snapshotLocked())
	event := protocol.EventScreenShareStopped
	if on {
		event = protocol.EventScreenShareStarted
	}
	res.merge(r.broadcastLocked(sid, event, protocol.ScreenShare{
		RoomID:        string(r.room.ID),
		ConnectionKey: string(sid),
	}))
	return res, nil
}

// Signal relays a negotiation message: to one member when sig.To is set,
// otherwise to everybody but the sender.
func (r *roomImpl) Signal(from SessionID, sig protocol.Signal) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.bySID[from]
	if !ok {
		return PublishResult{}, domain.ErrUnknownParticipant
	}
	out := protocol.RelayedSignal{
		RoomID:   string(r.room.ID),
		Type:     sig.Type,
		Payload:  sig.Payload,
		From:     string(from),
		FromName: ms.Meta().DisplayName,
		To:       sig.To,
	}
	if sig.To == "" {
		return r.broadcastLocked(from, protocol.EventSignal, out), nil
	}
	to := SessionID(sig.To)
	if _, ok := r.bySID[to]; !ok || to == from {
		return PublishResult{}, domain.ErrUnknownRecipient
	}
	return r.sendLocked(to, protocol.EventSignal, out), nil
}

func (r *roomImpl) Chat(from SessionID, text string, at time.Time) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.bySID[from]
	if !ok {
		return PublishResult{}, domain.ErrUnknownParticipant
	}
	return r.broadcastLocked("", protocol.EventChatMessage, protocol.ChatOut{
		RoomID:    string(r.room.ID),
		From:      string(from),
		FromName:  ms.Meta().DisplayName,
		Message:   text,
		Timestamp: at,
	}), nil
}

func (r *roomImpl) viewLocked(ms MemberSession) protocol.Participant {
	m := ms.Meta()
	return protocol.Participant{
		ConnectionKey: string(ms.SID()),
		UserID:        string(m.User.ID),
		DisplayName:   m.DisplayName,
		Avatar:        m.Avatar,
		Muted:         m.Muted,
		VideoOff:      m.VideoOff,
		ScreenSharing: m.ScreenSharing,
		IsHost:        ms.SID() == r.host,
		JoinedAt:      m.JoinedAt,
	}
}

func (r *roomImpl) snapshotLocked() []protocol.Participant {
	out := make([]protocol.Participant, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.viewLocked(r.bySID[sid]))
	}
	return out
}

func (r *roomImpl) publishListLocked(list []protocol.Participant) PublishResult {
	return r.broadcastLocked("", protocol.EventParticipantsList, protocol.ParticipantsList{
		RoomID:       string(r.room.ID),
		Participants: list,
	})
}

// broadcastLocked fans out to every member except `except` (empty: everyone).
func (r *roomImpl) broadcastLocked(except SessionID, event string, data any) PublishResult {
	res := PublishResult{}
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("event", event).Msg("encode")
		return res
	}
	for _, sid := range r.order {
		if sid == except {
			continue
		}
		if err := r.bySID[sid].Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) sendLocked(to SessionID, event string, data any) PublishResult {
	res := PublishResult{}
	ms, ok := r.bySID[to]
	if !ok {
		return res
	}
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("event", event).Msg("encode")
		return res
	}
	if err := ms.Signal().TrySend(frame); err != nil {
		res.Dropped = append(res.Dropped, to)
		return res
	}
	res.SendTo++
	return res
}
