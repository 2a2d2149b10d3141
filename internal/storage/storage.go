package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrClientExists   = errors.New("client already exists")
	ErrKeyNotFound    = errors.New("key not found")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenExpired   = errors.New("token is expired")
	ErrUnavailable    = errors.New("storage unavailable")
)

// KeyValue is the durable state collaborator shared by all server instances.
// CompareAndDelete is the single coordination primitive the core relies on:
// concurrent redemption of the same credential is resolved by the store,
// not by in-process locks.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

const (
	authCodePrefix = "authcode:"
	refreshPrefix  = "refresh:"
	familyPrefix   = "family:"
	deniedPrefix   = "denied:"
)

// AuthCodeKey returns the storage key of an authorization code record.
func AuthCodeKey(code string) string { return authCodePrefix + code }

// RefreshTokenKey returns the storage key of a refresh token record.
func RefreshTokenKey(token string) string { return refreshPrefix + token }

// FamilyKey returns the storage key of a token family record.
func FamilyKey(familyID string) string { return familyPrefix + familyID }

// DeniedKey returns the deny-list key of a revoked access token's jti.
func DeniedKey(jti string) string { return deniedPrefix + jti }
