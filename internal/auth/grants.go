package auth

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type grant struct {
	rooms   []string
	expires time.Time
}

// grantCache remembers the room list of the most recent verified token per
// user, until that token expires.
type grantCache struct {
	mu  sync.Mutex
	now func() time.Time
	m   map[domain.UserID]grant
}

func newGrantCache() *grantCache {
	return &grantCache{now: time.Now, m: make(map[domain.UserID]grant)}
}

func (c *grantCache) put(id domain.UserID, rooms []string, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = grant{rooms: rooms, expires: expires}
}

func (c *grantCache) get(id domain.UserID) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.m[id]
	if !ok {
		return nil, false
	}
	if !g.expires.IsZero() && c.now().After(g.expires) {
		delete(c.m, id)
		return nil, false
	}
	return g.rooms, true
}
