package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

var ErrNotConnected = errors.New("connection not registered")

type connEntry struct {
	User        *domain.User
	Conn        core.SignalConnection
	Cancel      context.CancelFunc
	ConnectedAt time.Time
}

// Registry tracks live, authenticated connections by connection key.
// Room membership lives in core.RoomManager, not here.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.SessionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.SessionID]*connEntry),
	}
}

func (r *Registry) Bind(
	sid core.SessionID,
	user *domain.User,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[sid] = &connEntry{
		User:        user,
		Conn:        conn,
		Cancel:      cancel,
		ConnectedAt: time.Now(),
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("bound connection")
}

// Unbind reports whether sid was registered.
func (r *Registry) Unbind(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[sid]; !ok {
		return false
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind connection")
	return true
}

func (r *Registry) User(sid core.SessionID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[sid]; ok {
		return e.User, true
	}
	return nil, false
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send encodes one frame and queues it for sid without blocking.
func (r *Registry) Send(sid core.SessionID, event string, data any) error {
	conn, ok := r.Conn(sid)
	if !ok {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	return conn.TrySend(frame)
}

// Cancel stops the connection's pumps; the adapter then runs normal
// disconnect cleanup.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.conns[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled connection")
	return true
}
