package interfaces

import (
	"context"

	"authd/internal/domain/models"
)

// ClientStorage persists registered clients across all server instances.
type ClientStorage interface {
	SaveClient(ctx context.Context, client *models.Client) error
	Client(ctx context.Context, clientID string) (*models.Client, error)
	UpdateClient(ctx context.Context, client *models.Client) error
	DeleteClient(ctx context.Context, clientID string) error
}
