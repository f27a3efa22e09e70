// Package auth holds API key records and the key hashing scheme.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// Scopes granted to API keys.
const (
	ScopePromotionsRead = "promotions:read"
	ScopeOrdersWrite    = "orders:write"
)

// APIKey is a stored API key. Only the HMAC of the raw key is persisted.
type APIKey struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k APIKey) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides API key lookup and provisioning.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
	Upsert(ctx context.Context, key APIKey) error
}

// Hasher derives the stored hash of raw API keys.
type Hasher struct {
	pepper []byte
}

// NewHasher returns a Hasher keyed with pepper.
func NewHasher(pepper []byte) Hasher {
	return Hasher{pepper: pepper}
}

// Hash returns the hex-encoded HMAC-SHA256 of raw.
func (h Hasher) Hash(raw string) string {
	return hex.EncodeToString(h.sum(raw))
}

func (h Hasher) sum(raw string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(raw))
	return mac.Sum(nil)
}

// Authenticate resolves raw to its stored key. The stored hash is compared in
// constant time against the computed one.
func (h Hasher) Authenticate(ctx context.Context, repo Repository, raw string) (*APIKey, error) {
	if raw == "" {
		return nil, ErrKeyNotFound
	}
	sum := h.sum(raw)
	key, err := repo.FindByHash(ctx, hex.EncodeToString(sum))
	if err != nil {
		return nil, err
	}
	stored, err := hex.DecodeString(key.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(sum, stored) != 1 {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
