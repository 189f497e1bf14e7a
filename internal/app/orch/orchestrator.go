package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/protocol"
)

const DefaultChatMaxLength = 2000

// AccessChecker answers room authorization. auth.Gate implements it.
type AccessChecker interface {
	CanAccess(ctx context.Context, user *domain.User, room domain.RoomID) bool
}

// Orchestrator routes inbound events to rooms and owns connection lifecycle.
// Nil Policy, Access and Metrics are allowed.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *core.RoomManager
	Policy   app.Policy
	Access   AccessChecker
	Metrics  *metrics.Metrics

	DefaultAvatar string
	ChatMaxLength int

	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// OnConnect registers an authenticated connection. It is not in any room yet.
func (o *Orchestrator) OnConnect(sid core.SessionID, user *domain.User, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.Bind(sid, user, conn, cancel)
	o.Metrics.Connected()
}

// OnDisconnecting runs on a graceful close: remaining members see user-leaving.
func (o *Orchestrator) OnDisconnecting(sid core.SessionID) {
	o.leaveAll(sid, protocol.EventUserLeaving)
}

// OnDisconnected runs once the transport is gone. Whatever memberships
// survived OnDisconnecting are removed with user-left, then the connection
// is forgotten.
func (o *Orchestrator) OnDisconnected(sid core.SessionID) {
	o.leaveAll(sid, protocol.EventUserLeft)
	if o.Registry.Unbind(sid) {
		o.Metrics.Disconnected()
	}
	if f, ok := o.Policy.(interface{ Forget(core.SessionID) }); ok {
		f.Forget(sid)
	}
}

func (o *Orchestrator) leaveAll(sid core.SessionID, notice string) {
	for _, id := range o.Rooms.RoomsOf(sid) {
		o.leave(id, sid, notice)
	}
}

func (o *Orchestrator) leave(id domain.RoomID, sid core.SessionID, notice string) bool {
	room, _ := o.Rooms.GetRoom(id)
	res, ok := o.Rooms.Leave(id, sid, notice)
	if !ok {
		return false
	}
	o.Metrics.Left()
	o.Metrics.SetRooms(o.Rooms.Count())
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Str("notice", notice).Bool("room_empty", res.Empty).Msg("left room")
	if res.NewHost != "" {
		log.Info().Str("module", "orch").Str("room", string(id)).Str("host", string(res.NewHost)).Msg("host handed over")
	}
	o.applyPolicy(room, res.Publish)
	return true
}

// applyPolicy handles recipients whose buffers overflowed during a fan-out.
// It runs after the room lock is released.
func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	o.Metrics.Drops(len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		action := o.Policy.OnBackPressure(room, slow)
		log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("action", action.String()).Msg("backpressure")
		switch action {
		case app.KickMember:
			o.Registry.Cancel(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// Snapshot returns the participant list of a live room.
func (o *Orchestrator) Snapshot(id domain.RoomID) ([]protocol.Participant, bool) {
	room, ok := o.Rooms.GetRoom(id)
	if !ok {
		return nil, false
	}
	return room.MembersSnapshot(), true
}

type Stats struct {
	Connections int `json:"activeConnections"`
	Rooms       int `json:"activeRooms"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{Connections: o.Registry.Count(), Rooms: o.Rooms.Count()}
}
