package domain

import (
	"errors"
	"time"
)

// DefaultAvatar is used when neither the client nor the config provide one.
const DefaultAvatar = "/static/images/default-profile.png"

// Member represents one connection's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User          *User
	DisplayName   string
	Avatar        string
	Muted         bool
	VideoOff      bool
	ScreenSharing bool
	JoinedAt      time.Time
}

// NewMember builds the presence record for a join request. An empty display
// name falls back to the username, an empty avatar to fallbackAvatar.
func NewMember(user *User, displayName, avatar, fallbackAvatar string, joinedAt time.Time) (*Member, error) {
	name, err := CleanName(displayName)
	if errors.Is(err, ErrUsernameEmpty) {
		name, err = user.Username, nil
	}
	if err != nil {
		return nil, err
	}
	if avatar == "" {
		avatar = fallbackAvatar
	}
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return &Member{
		User:        user,
		DisplayName: name,
		Avatar:      avatar,
		JoinedAt:    joinedAt,
	}, nil
}
