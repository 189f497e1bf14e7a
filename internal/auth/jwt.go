package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrEmptySecret = errors.New("auth secret is empty")

// Claims carried by relay tokens. An empty Rooms list grants every room.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Rooms []string `json:"rooms,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 tokens signed with a shared secret.
type JWTProvider struct {
	secret []byte
	parser *jwt.Parser

	// rooms granted per user id, filled by Verify.
	grants *grantCache
}

func NewJWTProvider(secret []byte) (*JWTProvider, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &JWTProvider{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
		grants: newGrantCache(),
	}, nil
}

func (p *JWTProvider) Verify(_ context.Context, token string) (*domain.User, error) {
	var claims Claims
	if _, err := p.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	user, err := domain.NewUser(claims.Subject, claims.Name)
	if err != nil {
		return nil, err
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	p.grants.put(user.ID, claims.Rooms, exp)
	return user, nil
}

func (p *JWTProvider) CanAccessRoom(_ context.Context, user *domain.User, room domain.RoomID) (bool, error) {
	rooms, ok := p.grants.get(user.ID)
	if !ok {
		return false, errors.New("no verified token for user")
	}
	return len(rooms) == 0 || slices.Contains(rooms, string(room)), nil
}

// Issue signs a token; used by tests and the dev tooling.
func (p *JWTProvider) Issue(userID, name string, rooms []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  name,
		Rooms: rooms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
