// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 128
	MaxUsernameLen = 64
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDInvalid   = errors.New("user id invalid")
)

type UserID string

// User is the verified identity behind a connection. It is handed out by the
// identity provider and never changes for the lifetime of the connection.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser validates provider output before it is bound to a connection.
// An empty username falls back to the id.
func NewUser(id, username string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxUserIDLen {
		return nil, ErrUserIDInvalid
	}
	name, err := CleanName(username)
	if errors.Is(err, ErrUsernameEmpty) {
		name, err = CleanName(id)
	}
	if err != nil {
		return nil, err
	}
	return &User{ID: UserID(id), Username: name}, nil
}

// CleanName trims a user supplied display name and checks its length.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
