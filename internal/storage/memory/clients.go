package memory

import (
	"context"
	"sync"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

// Clients is an in-process client registry storage for tests and single-node
// local runs.
type Clients struct {
	mu      sync.RWMutex
	clients map[string]models.Client
}

// NewClients creates an empty in-memory client storage.
func NewClients() *Clients {
	return &Clients{clients: make(map[string]models.Client)}
}

func (c *Clients) SaveClient(_ context.Context, client *models.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.clients[client.ID]; exists {
		return storage.ErrClientExists
	}
	c.clients[client.ID] = *client
	return nil
}

func (c *Clients) Client(_ context.Context, clientID string) (*models.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return &client, nil
}

func (c *Clients) UpdateClient(_ context.Context, client *models.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.clients[client.ID]; !exists {
		return storage.ErrClientNotFound
	}
	c.clients[client.ID] = *client
	return nil
}

func (c *Clients) DeleteClient(_ context.Context, clientID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, clientID)
	return nil
}
