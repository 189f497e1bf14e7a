package signal

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleChat(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p protocol.ChatMessage
	if err := decode(data, &p); err != nil {
		ctl.reply(sid, conn, "", err)
		return
	}
	if err := ctl.Orch.Chat(sid, p); err != nil {
		ctl.reply(sid, conn, p.RoomID, err)
	}
}
