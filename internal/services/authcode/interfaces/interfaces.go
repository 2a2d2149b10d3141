package interfaces

import (
	"context"

	"authd/internal/domain/models"
)

// ClientRegistry is the slice of the client registry the issuer needs.
type ClientRegistry interface {
	Lookup(ctx context.Context, clientID string) (*models.Client, error)
	ValidateRedirectURI(client *models.Client, uri string) bool
}
