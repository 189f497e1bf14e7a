package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

// handleRTCSignal relays offer/answer/ice-candidate/hang-up between peers.
// The server never terminates the peer connection itself.
func (ctl *SignalWSController) handleRTCSignal(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p protocol.Signal
	if err := decode(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad signal payload")
		ctl.sendEvent(conn, protocol.EventSignalError, protocol.ErrorNotice{Message: err.Error()})
		return
	}
	if err := ctl.Orch.Signal(sid, p); err != nil {
		ctl.reply(sid, conn, p.RoomID, err)
	}
}
