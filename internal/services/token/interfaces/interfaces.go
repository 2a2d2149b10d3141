package interfaces

import (
	"context"

	"authd/internal/domain/models"
)

// ClientRegistry is the slice of the client registry the token service needs.
type ClientRegistry interface {
	Lookup(ctx context.Context, clientID string) (*models.Client, error)
	Authenticate(ctx context.Context, client *models.Client, clientSecret string) error
}

// ReplayGuard turns "consume code" and "rotate refresh token" into atomic
// check-and-invalidate operations with cascading revocation on replay.
type ReplayGuard interface {
	ConsumeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error)
	RetireRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
}
