package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// Gate bounds every provider call with a timeout and folds all failures
// into domain.ErrAuth or a denial.
type Gate struct {
	provider IdentityProvider
	timeout  time.Duration
}

func NewGate(p IdentityProvider, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{provider: p, timeout: timeout}
}

func (g *Gate) Authenticate(ctx context.Context, credential string) (*domain.User, error) {
	token := strings.TrimSpace(credential)
	if token == "" {
		return nil, fmt.Errorf("%w: missing credential", domain.ErrAuth)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	user, err := g.provider.Verify(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("module", "auth").Msg("verify failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: empty identity", domain.ErrAuth)
	}
	// Providers may hand back loosely formed names; normalize them here.
	clean, err := domain.NewUser(string(user.ID), user.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	return clean, nil
}

// CanAccess reports whether user may join room. Errors and timeouts deny.
func (g *Gate) CanAccess(ctx context.Context, user *domain.User, room domain.RoomID) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.provider.CanAccessRoom(ctx, user, room)
	if err != nil {
		log.Warn().Err(err).Str("module", "auth").Str("user", string(user.ID)).Str("room", string(room)).Msg("access check failed")
		return false
	}
	return ok
}
