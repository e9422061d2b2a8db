package auth

import (
	"context"
	"errors"
)

// Errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyToken       = errors.New("token endpoint returned empty token")
)

// TokenProvider supplies authentication state and a connection credential.
type TokenProvider interface {
	// IsAuthenticated reports whether a connect attempt may proceed.
	// When false the manager makes no transport attempt at all.
	IsAuthenticated() bool

	// Token returns a credential for the socket handshake.
	// Called fresh on every connection attempt.
	Token(ctx context.Context) (string, error)
}

// StaticProvider returns a fixed token. Used by tools and tests.
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider around a fixed token.
// An empty token reports not-authenticated.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// IsAuthenticated reports whether a token is present.
func (p *StaticProvider) IsAuthenticated() bool {
	return p.token != ""
}

// Token returns the fixed token.
func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNotAuthenticated
	}
	return p.token, nil
}
