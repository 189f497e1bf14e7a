package orch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// Signal relays offer/answer/ice-candidate/hang-up between members.
// Messages from non-members are dropped before validation.
func (o *Orchestrator) Signal(sid core.SessionID, sig protocol.Signal) error {
	room, err := o.memberRoom(sig.RoomID)
	if err != nil {
		return err
	}
	if !room.HasMember(sid) {
		return domain.ErrUnknownParticipant
	}
	if err := sig.Validate(); err != nil {
		o.Metrics.Reject("signal", "invalid")
		return err
	}
	res, err := room.Signal(sid, sig)
	if err != nil {
		o.Metrics.Reject("signal", "recipient")
		return err
	}
	o.Metrics.Signal(sig.Type, sig.To != "")
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", sig.RoomID).Str("type", sig.Type).Str("to", sig.To).Int("sent_to", res.SendTo).Msg("signal relayed")
	o.applyPolicy(room, res)
	return nil
}

func (o *Orchestrator) Chat(sid core.SessionID, msg protocol.ChatMessage) error {
	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return fmt.Errorf("%w: empty message", domain.ErrBadPayload)
	}
	limit := o.ChatMaxLength
	if limit <= 0 {
		limit = DefaultChatMaxLength
	}
	if utf8.RuneCountInString(text) > limit {
		return fmt.Errorf("%w: message longer than %d characters", domain.ErrBadPayload, limit)
	}
	room, err := o.memberRoom(msg.RoomID)
	if err != nil {
		return err
	}
	res, err := room.Chat(sid, text, o.now())
	if err != nil {
		return err
	}
	o.applyPolicy(room, res)
	return nil
}
