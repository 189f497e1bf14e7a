package core

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

func (p *PublishResult) merge(o PublishResult) {
	p.SendTo += o.SendTo
	p.Dropped = append(p.Dropped, o.Dropped...)
}

type JoinResult struct {
	Room         domain.RoomID
	IsHost       bool
	Rejoined     bool
	Participants []protocol.Participant
	Publish      PublishResult
}

type LeaveResult struct {
	Member  protocol.Participant
	NewHost SessionID
	Empty   bool
	Publish PublishResult
}

// RoomService is the core-facing API of a room.
// Every mutation broadcasts the resulting state before the room lock is released,
// so members observe updates in the order they were applied.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []protocol.Participant
	Host() (SessionID, bool)
	HasMember(sid SessionID) bool

	UpdateStatus(sid SessionID, upd domain.StatusUpdate) (PublishResult, error)
	SetScreenSharing(sid SessionID, on bool) (PublishResult, error)
	Signal(from SessionID, sig protocol.Signal) (PublishResult, error)
	Chat(from SessionID, text string, at time.Time) (PublishResult, error)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
	CreatedAt   time.Time     `json:"createdAt"`
}
