package core

import "github.com/dkeye/Huddle/internal/domain"

// SessionID is the connection key: unique per live connection, not per user.
type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	SID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
}
