package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"authd/internal/domain/models"
	"authd/internal/domain/oautherr"
	"authd/internal/lib/jwt"
	"authd/internal/lib/jwt/tokens"
	"authd/internal/lib/pkce"
	"authd/internal/lib/scope"
	"authd/internal/services/token/interfaces"
	"authd/internal/storage"
)

// ScopeOpenID marks a grant that also carries an identity assertion.
const ScopeOpenID = "openid"

// Service exchanges authorization codes and refresh tokens for token sets.
// It owns no state: client resolution goes through the registry, single-use
// enforcement through the replay guard, durable records through the store
// and signatures through the signer.
type Service struct {
	log             *slog.Logger
	registry        interfaces.ClientRegistry
	guard           interfaces.ReplayGuard
	kv              storage.KeyValue
	signer          jwt.Signer
	issuer          string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	rotationEnabled bool
}

// ExchangeRequest is the token endpoint's authorization_code grant input.
type ExchangeRequest struct {
	Code         string
	CodeVerifier string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// RefreshRequest is the token endpoint's refresh_token grant input.
type RefreshRequest struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	Scope        string
}

// New returns a new instance of the token Service
func New(
	log *slog.Logger,
	registry interfaces.ClientRegistry,
	guard interfaces.ReplayGuard,
	kv storage.KeyValue,
	signer jwt.Signer,
	issuer string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	rotationEnabled bool,
) *Service {
	return &Service{
		log:             log,
		registry:        registry,
		guard:           guard,
		kv:              kv,
		signer:          signer,
		issuer:          issuer,
		accessTTL:       accessTTL,
		refreshTTL:      refreshTTL,
		rotationEnabled: rotationEnabled,
	}
}

// ExchangeCode exchanges a single-use authorization code plus PKCE verifier
// for a token set. Which check failed is never surfaced beyond the standard
// error code.
// OAuth2.1 specification method
func (s *Service) ExchangeCode(ctx context.Context, req ExchangeRequest) (*tokens.TokenSet, error) {
	const op = "token.ExchangeCode"
	logger := s.log.With(slog.String("op", op), slog.String("client_id", req.ClientID))

	client, err := s.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if err = s.registry.Authenticate(ctx, client, req.ClientSecret); err != nil {
		return nil, err
	}

	code, err := s.guard.ConsumeAuthCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if code.ClientID != client.ID {
		logger.Info("authorization code bound to another client")
		return nil, oautherr.ErrInvalidGrant
	}
	// Byte-identical to the URI supplied at authorization time.
	if code.RedirectURI != req.RedirectURI {
		logger.Info("redirect uri mismatch at exchange")
		return nil, oautherr.ErrInvalidGrant
	}
	if code.Expired(time.Now()) {
		return nil, oautherr.ErrInvalidGrant
	}
	if !pkce.Verify(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
		logger.Info("pkce verification failed")
		return nil, oautherr.ErrInvalidGrant
	}

	set, err := s.mint(ctx, mintParams{
		userID:     code.UserID,
		clientID:   client.ID,
		scope:      code.Scope,
		grantScope: code.Scope,
		familyID:   code.FamilyID,
		nonce:      code.Nonce,
		generation: 1,
	})
	if err != nil {
		return nil, err
	}
	if err = s.saveGrantState(ctx, set, code.FamilyID, code.UserID, client.ID, nil); err != nil {
		return nil, err
	}
	logger.Info("authorization code exchanged",
		slog.String("user_id", code.UserID),
		slog.String("scope", code.Scope))
	return set, nil
}

// Refresh exchanges a refresh token for a fresh token set. With rotation
// enabled (the default) the presented token is retired atomically and the
// successor carries rotation_generation+1; the caller must discard the old
// token. Scope may only narrow, never escalate.
// OAuth2.1 specification method
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*tokens.TokenSet, error) {
	const op = "token.Refresh"
	logger := s.log.With(slog.String("op", op), slog.String("client_id", req.ClientID))

	client, err := s.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if err = s.registry.Authenticate(ctx, client, req.ClientSecret); err != nil {
		return nil, err
	}

	var record *models.RefreshToken
	if s.rotationEnabled {
		record, err = s.guard.RetireRefreshToken(ctx, req.RefreshToken)
		if err != nil {
			return nil, err
		}
	} else {
		record, err = s.refreshTokenRecord(ctx, req.RefreshToken)
		if err != nil {
			return nil, err
		}
	}
	if record.ClientID != client.ID {
		logger.Info("refresh token bound to another client")
		return nil, oautherr.ErrInvalidGrant
	}
	if record.Expired(time.Now()) {
		return nil, oautherr.ErrInvalidGrant
	}

	grantedScope := record.Scope
	if req.Scope != "" {
		if !scope.Subset(req.Scope, record.GrantScope) {
			logger.Info("scope escalation attempt on refresh")
			return nil, oautherr.ErrInvalidScope
		}
		grantedScope = req.Scope
	}

	generation := record.RotationGeneration
	if s.rotationEnabled {
		generation++
	}
	set, err := s.mint(ctx, mintParams{
		userID:     record.UserID,
		clientID:   client.ID,
		scope:      grantedScope,
		grantScope: record.GrantScope,
		familyID:   record.FamilyID,
		generation: generation,
	})
	if err != nil {
		return nil, err
	}
	if !s.rotationEnabled {
		// The presented token stays live; hand it back unchanged.
		set.Refresh = record
	}
	if err = s.saveGrantState(ctx, set, record.FamilyID, record.UserID, client.ID, record); err != nil {
		return nil, err
	}
	logger.Info("tokens refreshed",
		slog.String("user_id", record.UserID),
		slog.Int("rotation_generation", set.Refresh.RotationGeneration))
	return set, nil
}

type mintParams struct {
	userID     string
	clientID   string
	scope      string
	grantScope string
	familyID   string
	nonce      string
	generation int
}

// mint builds the access token (and, for openid grants, the id token) via
// the signer and the opaque refresh successor.
func (s *Service) mint(ctx context.Context, p mintParams) (*tokens.TokenSet, error) {
	now := time.Now()
	accessExpires := now.Add(s.accessTTL)
	jti := uuid.NewString()

	accessClaims := map[string]interface{}{
		"iss":       s.issuer,
		"sub":       p.userID,
		"aud":       p.clientID,
		"client_id": p.clientID,
		"scope":     p.scope,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       accessExpires.Unix(),
	}
	signedAccess, err := s.signer.Sign(ctx, accessClaims)
	if err != nil {
		return nil, oautherr.SigningUnavailable(err)
	}
	set := &tokens.TokenSet{
		Access: &tokens.AccessToken{
			Token:     signedAccess,
			JTI:       jti,
			Claims:    accessClaims,
			ExpiresAt: accessExpires,
		},
		Scope: p.scope,
	}

	if scope.Contains(p.scope, ScopeOpenID) {
		idClaims := map[string]interface{}{
			"iss": s.issuer,
			"sub": p.userID,
			"aud": p.clientID,
			"iat": now.Unix(),
			"exp": accessExpires.Unix(),
		}
		if p.nonce != "" {
			idClaims["nonce"] = p.nonce
		}
		signedID, err := s.signer.Sign(ctx, idClaims)
		if err != nil {
			return nil, oautherr.SigningUnavailable(err)
		}
		set.ID = &tokens.IDToken{
			Token:     signedID,
			Claims:    idClaims,
			ExpiresAt: accessExpires,
		}
	}

	refresh, err := tokens.NewOpaque()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	set.Refresh = &models.RefreshToken{
		Token:              refresh,
		UserID:             p.userID,
		ClientID:           p.clientID,
		Scope:              p.scope,
		GrantScope:         p.grantScope,
		FamilyID:           p.familyID,
		RotationGeneration: p.generation,
		IssuedAt:           now,
		ExpiresAt:          now.Add(s.refreshTTL),
	}
	return set, nil
}

// saveGrantState persists the refresh token record and folds the new access
// token (and refresh successor) into the grant's token family.
func (s *Service) saveGrantState(
	ctx context.Context,
	set *tokens.TokenSet,
	familyID string,
	userID string,
	clientID string,
	predecessor *models.RefreshToken,
) error {
	if s.rotationEnabled || predecessor == nil {
		raw, err := json.Marshal(set.Refresh)
		if err != nil {
			return fmt.Errorf("marshaling refresh token: %w", err)
		}
		if err = s.kv.SetWithTTL(ctx, storage.RefreshTokenKey(set.Refresh.Token), raw, s.refreshTTL); err != nil {
			return oautherr.StoreUnavailable(err)
		}
	}

	family, err := s.tokenFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if family == nil {
		family = &models.TokenFamily{
			ID:       familyID,
			UserID:   userID,
			ClientID: clientID,
			Access:   make(map[string]time.Time),
		}
	}
	family.Access[set.Access.JTI] = set.Access.ExpiresAt
	family.RefreshToken = set.Refresh.Token

	raw, err := json.Marshal(family)
	if err != nil {
		return fmt.Errorf("marshaling token family: %w", err)
	}
	if err = s.kv.SetWithTTL(ctx, storage.FamilyKey(familyID), raw, s.refreshTTL); err != nil {
		return oautherr.StoreUnavailable(err)
	}
	return nil
}

func (s *Service) refreshTokenRecord(ctx context.Context, token string) (*models.RefreshToken, error) {
	raw, err := s.kv.Get(ctx, storage.RefreshTokenKey(token))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, oautherr.ErrInvalidGrant
		}
		return nil, oautherr.StoreUnavailable(err)
	}
	var record models.RefreshToken
	if err = json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling refresh token: %w", err)
	}
	if record.Retired {
		return nil, oautherr.ErrInvalidGrant
	}
	return &record, nil
}

func (s *Service) tokenFamily(ctx context.Context, familyID string) (*models.TokenFamily, error) {
	raw, err := s.kv.Get(ctx, storage.FamilyKey(familyID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, oautherr.StoreUnavailable(err)
	}
	var family models.TokenFamily
	if err = json.Unmarshal(raw, &family); err != nil {
		return nil, fmt.Errorf("unmarshaling token family: %w", err)
	}
	return &family, nil
}
