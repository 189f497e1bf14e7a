// Package protocol describes the JSON frames exchanged over the signaling socket.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// Inbound events.
const (
	EventJoinRoom         = "join-room"
	EventUpdateStatus     = "update-status"
	EventScreenShareStart = "screen-share-start"
	EventScreenShareStop  = "screen-share-stop"
	EventSignal           = "signal"
	EventChatMessage      = "chat-message"
	EventLeaveRoom        = "leave-room"
	EventPing             = "ping"
)

// Outbound events.
const (
	EventRoomJoined         = "room-joined"
	EventRoomLeft           = "room-left"
	EventParticipantsList   = "participants-list"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventUserLeaving        = "user-leaving"
	EventHostChanged        = "host-changed"
	EventRoomFull           = "room-full"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
	EventError              = "error"
	EventSignalError        = "signal-error"
	EventPong               = "pong"
)

// Error codes carried in ErrorNotice.Code.
const (
	CodeBadPayload  = "bad_payload"
	CodeForbidden   = "forbidden"
	CodeRateLimited = "rate_limited"
	CodeUnknown     = "unknown_event"
	CodeInternal    = "internal"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Inbound payloads.

type JoinRoom struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

type UpdateStatus struct {
	RoomID string              `json:"roomId"`
	Status domain.StatusUpdate `json:"status"`
}

// RoomRef is the payload of screen-share-start/stop and leave-room.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

type ChatMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// Outbound payloads.

// Participant is the externally visible shape of a room member.
type Participant struct {
	ConnectionKey string    `json:"connectionKey"`
	UserID        string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	Avatar        string    `json:"avatar"`
	Muted         bool      `json:"muted"`
	VideoOff      bool      `json:"videoOff"`
	ScreenSharing bool      `json:"screenSharing"`
	IsHost        bool      `json:"isHost"`
	JoinedAt      time.Time `json:"joinedAt"`
}

type ParticipantsList struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

type RoomJoined struct {
	RoomID        string        `json:"roomId"`
	ConnectionKey string        `json:"connectionKey"`
	IsHost        bool          `json:"isHost"`
	Participants  []Participant `json:"participants"`
}

type UserJoined struct {
	RoomID string `json:"roomId"`
	Participant
}

// UserLeft is the payload of both user-left and user-leaving.
type UserLeft struct {
	RoomID        string `json:"roomId"`
	ConnectionKey string `json:"connectionKey"`
	DisplayName   string `json:"displayName"`
}

type HostChanged struct {
	RoomID        string `json:"roomId"`
	ConnectionKey string `json:"connectionKey"`
}

type RoomFull struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
}

type ScreenShare struct {
	RoomID        string `json:"roomId"`
	ConnectionKey string `json:"connectionKey"`
}

type ChatOut struct {
	RoomID    string    `json:"roomId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorNotice struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type Empty struct{}
