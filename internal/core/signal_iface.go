package core

import "errors"

// Frame is a raw encoded payload ready for the wire.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: rooms call it while holding their lock.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
