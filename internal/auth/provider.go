// Package auth verifies connection credentials and room access.
package auth

//go:generate mockgen -source=provider.go -destination=mocks/provider_mock.go -package=mocks

import (
	"context"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

// IdentityProvider is the external identity collaborator.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*domain.User, error)
	CanAccessRoom(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error)
}

const (
	ProviderJWT      = "jwt"
	ProviderHTTP     = "http"
	ProviderInsecure = "insecure"
)

type Options struct {
	Provider string
	Secret   string
	Endpoint string
}

// NewProvider builds the provider named by opts.Provider.
func NewProvider(opts Options) (IdentityProvider, error) {
	switch opts.Provider {
	case ProviderJWT:
		return NewJWTProvider([]byte(opts.Secret))
	case ProviderHTTP:
		return NewHTTPProvider(opts.Endpoint, opts.Secret, nil)
	case ProviderInsecure:
		return InsecureProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", opts.Provider)
	}
}
