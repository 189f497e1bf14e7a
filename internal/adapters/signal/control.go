package signal

import "github.com/dkeye/Huddle/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendEvent(conn, protocol.EventPong, protocol.Empty{})
}
