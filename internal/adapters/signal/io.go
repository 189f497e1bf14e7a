package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(ctl.opts.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				return
			}
		}
	}
}

// readPump owns the read side. Its exit is the single place where an
// abrupt disconnect is turned into room cleanup.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnected(sid)
		ctl.Limiter.Forget(sid)
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})
	defaultClose := c.conn.CloseHandler()
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Int("code", code).Msg("close frame")
		ctl.Orch.OnDisconnecting(sid)
		return defaultClose(code, text)
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump unexpected close")
			}
			return
		}
		// Any inbound frame proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleMessage(ctx, sid, c, data)
	}
}

func (ctl *SignalWSController) handleMessage(ctx context.Context, sid core.SessionID, c *WsSignalConn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("sid", string(sid)).Interface("panic", r).Msg("handler panic")
			ctl.sendError(c, "internal error", protocol.CodeInternal)
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, "malformed frame", protocol.CodeBadPayload)
		return
	}
	if env.Event != protocol.EventPing && !ctl.Limiter.Allow(sid) {
		ctl.Orch.Metrics.Reject(env.Event, "rate_limited")
		ctl.sendError(c, "too many messages", protocol.CodeRateLimited)
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		ctl.handleJoin(ctx, sid, c, env.Data)
	case protocol.EventLeaveRoom:
		ctl.handleLeave(sid, c, env.Data)
	case protocol.EventUpdateStatus:
		ctl.handleStatus(sid, c, env.Data)
	case protocol.EventScreenShareStart:
		ctl.handleScreenShare(sid, c, env.Data, true)
	case protocol.EventScreenShareStop:
		ctl.handleScreenShare(sid, c, env.Data, false)
	case protocol.EventSignal:
		ctl.handleRTCSignal(sid, c, env.Data)
	case protocol.EventChatMessage:
		ctl.handleChat(sid, c, env.Data)
	case protocol.EventPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
		ctl.sendError(c, fmt.Sprintf("unknown event %q", env.Event), protocol.CodeUnknown)
		return
	}
	ctl.Orch.Metrics.Event(env.Event)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBadPayload, err)
	}
	return nil
}

// reply turns an operation error into the frame the client expects.
func (ctl *SignalWSController) reply(sid core.SessionID, c *WsSignalConn, roomID string, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomFull):
		ctl.sendEvent(c, protocol.EventRoomFull, protocol.RoomFull{RoomID: roomID, Capacity: ctl.Orch.Rooms.Capacity()})
	case errors.Is(err, domain.ErrInvalidSignal), errors.Is(err, domain.ErrUnknownRecipient):
		ctl.sendEvent(c, protocol.EventSignalError, protocol.ErrorNotice{Message: err.Error()})
	case errors.Is(err, domain.ErrUnknownParticipant):
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("room", roomID).Msg("dropped message from non-member")
	case errors.Is(err, domain.ErrAccessDenied):
		ctl.sendError(c, err.Error(), protocol.CodeForbidden)
	case errors.Is(err, domain.ErrBadPayload):
		ctl.sendError(c, err.Error(), protocol.CodeBadPayload)
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("operation failed")
		ctl.sendError(c, "internal error", protocol.CodeInternal)
	}
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("sendEvent marshal")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("event", event).Msg("sendEvent")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, msg, code string) {
	ctl.sendEvent(c, protocol.EventError, protocol.ErrorNotice{Message: msg, Code: code})
}
