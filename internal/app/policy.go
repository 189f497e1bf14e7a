package app

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a member whose send buffer overflowed.
type Policy interface {
	OnBackPressure(room core.RoomService, sid core.SessionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomService, core.SessionID) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops frames for a connection until it has overflowed
// Strikes times, then kicks it. Forget resets the count on disconnect.
type TolerantPolicy struct {
	Strikes int

	mu     sync.Mutex
	counts map[core.SessionID]int
}

func NewTolerantPolicy(strikes int) *TolerantPolicy {
	if strikes <= 0 {
		strikes = 1
	}
	return &TolerantPolicy{Strikes: strikes, counts: make(map[core.SessionID]int)}
}

func (p *TolerantPolicy) OnBackPressure(_ core.RoomService, sid core.SessionID) BackpressureAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[sid]++
	if p.counts[sid] >= p.Strikes {
		delete(p.counts, sid)
		return KickMember
	}
	return DropFrame
}

func (p *TolerantPolicy) Forget(sid core.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.counts, sid)
}
