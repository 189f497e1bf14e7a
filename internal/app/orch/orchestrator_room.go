package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// Join admits sid into the requested room. The access check runs before any
// room lock is taken.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, req protocol.JoinRoom) (core.JoinResult, error) {
	user, ok := o.Registry.User(sid)
	if !ok {
		return core.JoinResult{}, domain.ErrUnknownParticipant
	}
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return core.JoinResult{}, domain.ErrUnknownParticipant
	}
	id, err := domain.ParseRoomID(req.RoomID)
	if err != nil {
		o.Metrics.Reject("join", "bad_room")
		return core.JoinResult{}, fmt.Errorf("%w: %w", domain.ErrBadPayload, err)
	}
	if o.Access != nil && !o.Access.CanAccess(ctx, user, id) {
		o.Metrics.Reject("join", "forbidden")
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Msg("join denied")
		return core.JoinResult{}, domain.ErrAccessDenied
	}
	member, err := domain.NewMember(user, req.DisplayName, req.Avatar, o.DefaultAvatar, o.now())
	if err != nil {
		o.Metrics.Reject("join", "bad_name")
		return core.JoinResult{}, fmt.Errorf("%w: %w", domain.ErrBadPayload, err)
	}

	res, err := o.Rooms.Join(id, core.NewMemberSession(sid, member, conn))
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			o.Metrics.Reject("join", "room_full")
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Msg("room full")
		}
		return core.JoinResult{}, err
	}
	if !res.Rejoined {
		o.Metrics.Joined()
		o.Metrics.SetRooms(o.Rooms.Count())
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Bool("host", res.IsHost).Bool("rejoin", res.Rejoined).Msg("joined room")

	room, _ := o.Rooms.GetRoom(id)
	o.applyPolicy(room, res.Publish)
	return res, nil
}

// Leave removes sid from a room on request. It reports whether sid was a member.
func (o *Orchestrator) Leave(sid core.SessionID, req protocol.RoomRef) (bool, error) {
	id, err := domain.ParseRoomID(req.RoomID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrBadPayload, err)
	}
	return o.leave(id, sid, protocol.EventUserLeft), nil
}

func (o *Orchestrator) UpdateStatus(sid core.SessionID, req protocol.UpdateStatus) error {
	room, err := o.memberRoom(req.RoomID)
	if err != nil {
		return err
	}
	res, err := room.UpdateStatus(sid, req.Status)
	if err != nil {
		return err
	}
	o.applyPolicy(room, res)
	return nil
}

func (o *Orchestrator) ScreenShare(sid core.SessionID, req protocol.RoomRef, on bool) error {
	room, err := o.memberRoom(req.RoomID)
	if err != nil {
		return err
	}
	res, err := room.SetScreenSharing(sid, on)
	if err != nil {
		return err
	}
	o.applyPolicy(room, res)
	return nil
}

// memberRoom resolves a live room. An absent room means the sender cannot be
// a member of it.
func (o *Orchestrator) memberRoom(raw string) (core.RoomService, error) {
	id, err := domain.ParseRoomID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadPayload, err)
	}
	room, ok := o.Rooms.GetRoom(id)
	if !ok {
		return nil, domain.ErrUnknownParticipant
	}
	return room, nil
}
