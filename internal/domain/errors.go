package domain

import "errors"

var (
	// ErrAuth rejects a connection before any room state exists for it.
	ErrAuth = errors.New("authentication failed")
	// ErrRoomFull rejects a join; the connection stays usable.
	ErrRoomFull = errors.New("room is full")
	// ErrInvalidSignal is a malformed or unknown signal message.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrUnknownParticipant means the sender is not (or no longer) in the room.
	// Usually a benign race with teardown, callers drop the message.
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrUnknownRecipient   = errors.New("recipient not in room")
	ErrAccessDenied       = errors.New("room access denied")
	ErrBadPayload         = errors.New("bad payload")
	// ErrRoomClosed is returned by a room that emptied and was dropped from the
	// registry while a join was waiting on its lock.
	ErrRoomClosed = errors.New("room closed")
)
