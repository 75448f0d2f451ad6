// Package identity resolves the owner behind an API key.
package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Provider authenticates an owner credential.
type Provider interface {
	Authenticate(ctx context.Context, apiKey string) (ownerID string, err error)
}

type credential struct {
	digest  [sha256.Size]byte
	ownerID string
}

// Service is a Provider over a fixed set of API keys.
type Service struct {
	creds  []credential
	logger zerolog.Logger
}

// NewService creates a provider from a key -> owner id map.
func NewService(keys map[string]string, logger zerolog.Logger) *Service {
	s := &Service{logger: logger.With().Str("component", "identity").Logger()}
	for key, owner := range keys {
		s.creds = append(s.creds, credential{digest: sha256.Sum256([]byte(key)), ownerID: owner})
	}
	return s
}

// Authenticate returns the owner of apiKey. Every stored key is compared so the
// time taken does not depend on which key matched.
func (s *Service) Authenticate(_ context.Context, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrUnauthenticated
	}

	digest := sha256.Sum256([]byte(apiKey))
	owner := ""
	for _, c := range s.creds {
		if subtle.ConstantTimeCompare(digest[:], c.digest[:]) == 1 {
			owner = c.ownerID
		}
	}
	if owner == "" {
		s.logger.Debug().Msg("rejected api key")
		return "", ErrUnauthenticated
	}
	return owner, nil
}

// CanManage reports whether apiKey belongs to ownerID.
func (s *Service) CanManage(ctx context.Context, apiKey, ownerID string) (bool, error) {
	owner, err := s.Authenticate(ctx, apiKey)
	if err != nil {
		return false, err
	}
	return owner == ownerID, nil
}

type ownerKey struct{}

// WithOwner stores an authenticated owner id on ctx.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom returns the owner id stored by WithOwner.
func OwnerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok && id != ""
}
