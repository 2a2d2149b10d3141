package authcode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"authd/internal/domain/models"
	"authd/internal/domain/oautherr"
	"authd/internal/lib/jwt/tokens"
	"authd/internal/lib/pkce"
	"authd/internal/lib/scope"
	"authd/internal/services/authcode/interfaces"
	"authd/internal/storage"
)

// Issuer creates short-lived single-use authorization codes bound to a
// client, redirect URI, scope, user and PKCE challenge. The code is a
// capability: its short TTL bounds the blast radius of leakage, so nothing
// beyond the record in the store needs to be remembered.
type Issuer struct {
	log      *slog.Logger
	registry interfaces.ClientRegistry
	kv       storage.KeyValue
	codeTTL  time.Duration
}

// CreateCodeRequest carries everything the consent step binds into a code.
type CreateCodeRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
	Nonce               string
}

// New returns a new instance of the Issuer service
func New(log *slog.Logger, registry interfaces.ClientRegistry, kv storage.KeyValue, codeTTL time.Duration) *Issuer {
	return &Issuer{
		log:      log,
		registry: registry,
		kv:       kv,
		codeTTL:  codeTTL,
	}
}

// CreateCode validates the authorization request and persists a code record
// with the configured TTL. Preconditions run in order, first failure wins.
func (i *Issuer) CreateCode(ctx context.Context, req CreateCodeRequest) (string, error) {
	const op = "authcode.CreateCode"
	logger := i.log.With(slog.String("op", op), slog.String("client_id", req.ClientID))

	client, err := i.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return "", err
	}
	if !i.registry.ValidateRedirectURI(client, req.RedirectURI) {
		logger.Info("redirect uri not registered for client")
		return "", oautherr.ErrInvalidRequest
	}
	if req.CodeChallenge == "" {
		logger.Info("missing code challenge")
		return "", oautherr.ErrInvalidRequest
	}
	if req.CodeChallengeMethod != pkce.MethodS256 {
		logger.Info("unsupported code challenge method")
		return "", oautherr.ErrInvalidRequest
	}
	if !scope.Subset(req.Scope, strings.Join(client.AllowedScopes, " ")) {
		logger.Info("requested scope exceeds client's allowed scopes")
		return "", oautherr.ErrInvalidScope
	}

	code, err := tokens.NewOpaque()
	if err != nil {
		return "", fmt.Errorf("generating authorization code: %w", err)
	}
	now := time.Now()
	record := models.AuthorizationCode{
		Code:                code,
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		UserID:              req.UserID,
		Nonce:               req.Nonce,
		FamilyID:            uuid.NewString(),
		CreatedAt:           now,
		ExpiresAt:           now.Add(i.codeTTL),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshaling authorization code: %w", err)
	}
	if err = i.kv.SetWithTTL(ctx, storage.AuthCodeKey(code), raw, i.codeTTL); err != nil {
		return "", oautherr.StoreUnavailable(err)
	}
	// Never the full code in logs.
	logger.Info("authorization code issued",
		slog.String("code_prefix", code[:8]),
		slog.String("user_id", req.UserID),
		slog.String("scope", req.Scope))
	return code, nil
}
