package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"authd/internal/domain/models"
	"authd/internal/domain/oautherr"
	"authd/internal/lib/jwt/tokens"
	"authd/internal/services/clients/interfaces"
	"authd/internal/storage"
)

// Registry resolves and authenticates registered OAuth clients.
type Registry struct {
	log     *slog.Logger
	clients interfaces.ClientStorage
}

// New returns a new instance of the Registry service
func New(log *slog.Logger, clientStorage interfaces.ClientStorage) *Registry {
	return &Registry{
		log:     log,
		clients: clientStorage,
	}
}

// Lookup resolves a client by its id. An unknown or empty id is an
// invalid_client condition.
func (r *Registry) Lookup(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "clients.Lookup"
	logger := r.log.With(slog.String("op", op))

	if clientID == "" {
		return nil, oautherr.ErrInvalidClient
	}
	client, err := r.clients.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			logger.Info("unknown client", slog.String("client_id", clientID))
			return nil, oautherr.ErrInvalidClient
		}
		return nil, oautherr.StoreUnavailable(err)
	}
	return client, nil
}

// Authenticate verifies the client's credentials. Confidential clients must
// present their secret; the stored bcrypt hash makes the comparison
// constant-time. A secret supplied by a public client is ignored, not
// validated.
func (r *Registry) Authenticate(ctx context.Context, client *models.Client, clientSecret string) error {
	const op = "clients.Authenticate"
	logger := r.log.With(slog.String("op", op), slog.String("client_id", client.ID))

	if !client.Confidential() {
		return nil
	}
	if clientSecret == "" {
		logger.Info("confidential client presented no secret")
		return oautherr.ErrInvalidClient
	}
	if err := bcrypt.CompareHashAndPassword(client.SecretHash, []byte(clientSecret)); err != nil {
		logger.Info("client secret mismatch")
		return oautherr.ErrInvalidClient
	}
	return nil
}

// ValidateRedirectURI requires exact string equality against the registered
// set. No prefix, wildcard or query-stripping matching: anything looser
// opens the redirect to code-theft.
func (r *Registry) ValidateRedirectURI(client *models.Client, uri string) bool {
	if uri == "" {
		return false
	}
	return slices.Contains(client.RedirectURIs, uri)
}

// Register saves a new client. Confidential clients get a generated secret,
// returned in plaintext exactly once; only its bcrypt hash is stored.
func (r *Registry) Register(
	ctx context.Context,
	clientType models.ClientType,
	redirectURIs []string,
	allowedScopes []string,
	ownerID string,
) (*models.Client, string, error) {
	const op = "clients.Register"
	logger := r.log.With(slog.String("op", op))

	if len(redirectURIs) == 0 {
		return nil, "", oautherr.ErrInvalidRequest
	}
	now := time.Now()
	client := &models.Client{
		ID:            uuid.NewString(),
		Type:          clientType,
		RedirectURIs:  redirectURIs,
		AllowedScopes: allowedScopes,
		OwnerID:       ownerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var plainSecret string
	if clientType == models.ClientConfidential {
		secret, err := tokens.NewOpaque()
		if err != nil {
			return nil, "", fmt.Errorf("generating client secret: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("hashing client secret: %w", err)
		}
		client.SecretHash = hash
		plainSecret = secret
	}
	if err := r.clients.SaveClient(ctx, client); err != nil {
		return nil, "", oautherr.StoreUnavailable(err)
	}
	logger.Info("client registered",
		slog.String("client_id", client.ID),
		slog.String("type", string(clientType)))
	return client, plainSecret, nil
}
