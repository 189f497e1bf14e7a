package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

// handleJoin answers via the room itself: room-joined, user-joined and
// participants-list are published inside the join.
func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p protocol.JoinRoom
	if err := decode(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.reply(sid, conn, "", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", p.RoomID).Msg("join")
	if _, err := ctl.Orch.Join(ctx, sid, p); err != nil {
		ctl.reply(sid, conn, p.RoomID, err)
	}
}

// handleLeave leaves one room; the connection stays open. The ack is sent
// even when sid was not a member.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p protocol.RoomRef
	if err := decode(data, &p); err != nil {
		ctl.reply(sid, conn, "", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", p.RoomID).Msg("leave")
	if _, err := ctl.Orch.Leave(sid, p); err != nil {
		ctl.reply(sid, conn, p.RoomID, err)
		return
	}
	ctl.sendEvent(conn, protocol.EventRoomLeft, protocol.RoomRef{RoomID: p.RoomID})
}

func (ctl *SignalWSController) handleStatus(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p protocol.UpdateStatus
	if err := decode(data, &p); err != nil {
		ctl.reply(sid, conn, "", err)
		return
	}
	if err := ctl.Orch.UpdateStatus(sid, p); err != nil {
		ctl.reply(sid, conn, p.RoomID, err)
	}
}

func (ctl *SignalWSController) handleScreenShare(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
	on bool,
) {
	var p protocol.RoomRef
	if err := decode(data, &p); err != nil {
		ctl.reply(sid, conn, "", err)
		return
	}
	if err := ctl.Orch.ScreenShare(sid, p, on); err != nil {
		ctl.reply(sid, conn, p.RoomID, err)
	}
}
