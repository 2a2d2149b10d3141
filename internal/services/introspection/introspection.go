package introspection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"authd/internal/domain/models"
	"authd/internal/domain/oautherr"
	"authd/internal/lib/jwt"
	"authd/internal/storage"
)

// Token type hints and introspection token_type values (RFC 7009, RFC 7662).
const (
	TypeAccessToken  = "access_token"
	TypeRefreshToken = "refresh_token"
)

// Service reports token liveness (RFC 7662) and revokes tokens on demand
// (RFC 7009). An unrecognized token is never an error: the endpoint answers
// {active:false} so it cannot be used as a token-type oracle.
type Service struct {
	log    *slog.Logger
	kv     storage.KeyValue
	signer jwt.Signer
}

// Introspection is the RFC 7662 response shape.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// New returns a new instance of the introspection Service
func New(log *slog.Logger, kv storage.KeyValue, signer jwt.Signer) *Service {
	return &Service{
		log:    log,
		kv:     kv,
		signer: signer,
	}
}

var inactive = &Introspection{Active: false}

// Introspect tries access-token interpretation first (well-formed, unexpired,
// jti not denied), then falls back to the refresh-token record. Only store
// faults error out.
func (s *Service) Introspect(ctx context.Context, token string) (*Introspection, error) {
	const op = "introspection.Introspect"
	logger := s.log.With(slog.String("op", op))

	if token == "" {
		return inactive, nil
	}

	if claims, err := s.signer.Verify(ctx, token); err == nil {
		jti, _ := claims["jti"].(string)
		if jti != "" {
			denied, err := s.kv.Exists(ctx, storage.DeniedKey(jti))
			if err != nil {
				return nil, oautherr.StoreUnavailable(err)
			}
			if denied {
				return inactive, nil
			}
		}
		result := &Introspection{
			Active:    true,
			TokenType: TypeAccessToken,
		}
		result.Scope, _ = claims["scope"].(string)
		result.ClientID, _ = claims["client_id"].(string)
		result.Sub, _ = claims["sub"].(string)
		if exp, ok := claims["exp"].(float64); ok {
			result.Exp = int64(exp)
		}
		if iat, ok := claims["iat"].(float64); ok {
			result.Iat = int64(iat)
		}
		return result, nil
	}

	raw, err := s.kv.Get(ctx, storage.RefreshTokenKey(token))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return inactive, nil
		}
		return nil, oautherr.StoreUnavailable(err)
	}
	var record models.RefreshToken
	if err = json.Unmarshal(raw, &record); err != nil {
		logger.Warn("malformed refresh token record", slog.String("error", err.Error()))
		return inactive, nil
	}
	if record.Retired || record.Expired(time.Now()) {
		return inactive, nil
	}
	return &Introspection{
		Active:    true,
		Scope:     record.Scope,
		ClientID:  record.ClientID,
		Sub:       record.UserID,
		Exp:       record.ExpiresAt.Unix(),
		Iat:       record.IssuedAt.Unix(),
		TokenType: TypeRefreshToken,
	}, nil
}

// Revoke invalidates a token before its natural expiry. The outcome is the
// same for the caller whether or not the token existed, so revocation cannot
// reveal token validity. The optional hint only orders the lookups.
func (s *Service) Revoke(ctx context.Context, token string, typeHint string) error {
	const op = "introspection.Revoke"
	logger := s.log.With(slog.String("op", op))

	if token == "" {
		return nil
	}

	if typeHint != TypeAccessToken {
		revoked, err := s.revokeRefreshToken(ctx, token)
		if err != nil {
			return err
		}
		if revoked {
			logger.Info("refresh token revoked")
			return nil
		}
	}

	claims, err := s.signer.Verify(ctx, token)
	if err != nil {
		// Not an access token after all. A hint only orders the lookups,
		// so a miss extends the search to the refresh records (RFC 7009
		// §2.1); a token unknown everywhere is still a success.
		if typeHint == TypeAccessToken {
			revoked, rerr := s.revokeRefreshToken(ctx, token)
			if rerr != nil {
				return rerr
			}
			if revoked {
				logger.Info("refresh token revoked")
			}
		}
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	remaining := time.Hour
	if exp, ok := claims["exp"].(float64); ok {
		remaining = time.Until(time.Unix(int64(exp), 0))
	}
	if remaining <= 0 {
		return nil
	}
	if err = s.kv.SetWithTTL(ctx, storage.DeniedKey(jti), []byte("revoked"), remaining); err != nil {
		return oautherr.StoreUnavailable(err)
	}
	logger.Info("access token revoked", slog.String("jti", jti))
	return nil
}

func (s *Service) revokeRefreshToken(ctx context.Context, token string) (bool, error) {
	key := storage.RefreshTokenKey(token)
	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return false, oautherr.StoreUnavailable(err)
	}
	if !exists {
		return false, nil
	}
	if err = s.kv.Delete(ctx, key); err != nil {
		return false, oautherr.StoreUnavailable(err)
	}
	return true, nil
}
