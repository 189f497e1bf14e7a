package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxRoomIDLen = 128

var ErrRoomIDInvalid = errors.New("room id invalid")

type RoomID string

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

// ParseRoomID trims and validates a client supplied room identifier.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDInvalid
	}
	return RoomID(raw), nil
}
