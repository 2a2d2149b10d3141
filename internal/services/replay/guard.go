package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authd/internal/domain/models"
	"authd/internal/domain/oautherr"
	"authd/internal/storage"
)

// Guard enforces single-use semantics on authorization codes and rotated
// refresh tokens. Consumption is an atomic compare-and-delete against the
// store: under concurrent presentation of the same credential exactly one
// request wins. A presentation that finds the record already marked used is
// a replay signal and revokes the whole token family before failing.
type Guard struct {
	log       *slog.Logger
	kv        storage.KeyValue
	retention time.Duration
}

// New returns a new instance of the Guard service
func New(log *slog.Logger, kv storage.KeyValue, retention time.Duration) *Guard {
	return &Guard{
		log:       log,
		kv:        kv,
		retention: retention,
	}
}

// ConsumeAuthCode atomically consumes an authorization code. The winning
// request receives the bound record; everyone else gets invalid_grant.
func (g *Guard) ConsumeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	const op = "replay.ConsumeAuthCode"
	logger := g.log.With(slog.String("op", op))

	key := storage.AuthCodeKey(code)
	raw, err := g.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, oautherr.ErrInvalidGrant
		}
		return nil, oautherr.StoreUnavailable(err)
	}
	var record models.AuthorizationCode
	if err = json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling authorization code: %w", err)
	}
	if record.Used {
		logger.Warn("authorization code replay detected",
			slog.String("client_id", record.ClientID),
			slog.String("family_id", record.FamilyID))
		g.revokeFamilyBestEffort(ctx, record.FamilyID)
		return nil, oautherr.ErrInvalidGrant
	}

	won, err := g.kv.CompareAndDelete(ctx, key, raw)
	if err != nil {
		return nil, oautherr.StoreUnavailable(err)
	}
	if !won {
		// Lost the race. If the winner's used marker is already visible,
		// this presentation is the replay.
		if rereadRaw, rereadErr := g.kv.Get(ctx, key); rereadErr == nil {
			var reread models.AuthorizationCode
			if json.Unmarshal(rereadRaw, &reread) == nil && reread.Used {
				logger.Warn("authorization code replay detected",
					slog.String("client_id", reread.ClientID),
					slog.String("family_id", reread.FamilyID))
				g.revokeFamilyBestEffort(ctx, reread.FamilyID)
			}
		}
		return nil, oautherr.ErrInvalidGrant
	}

	g.markUsed(ctx, key, &record)
	return &record, nil
}

// RetireRefreshToken atomically retires the presented refresh token ahead of
// rotation. Presentation of an already retired token revokes the family.
func (g *Guard) RetireRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const op = "replay.RetireRefreshToken"
	logger := g.log.With(slog.String("op", op))

	key := storage.RefreshTokenKey(token)
	raw, err := g.kv.Get(ctx, key)
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
		logger.Warn("refresh token replay detected",
			slog.String("client_id", record.ClientID),
			slog.String("family_id", record.FamilyID),
			slog.Int("rotation_generation", record.RotationGeneration))
		g.revokeFamilyBestEffort(ctx, record.FamilyID)
		return nil, oautherr.ErrInvalidGrant
	}

	won, err := g.kv.CompareAndDelete(ctx, key, raw)
	if err != nil {
		return nil, oautherr.StoreUnavailable(err)
	}
	if !won {
		if rereadRaw, rereadErr := g.kv.Get(ctx, key); rereadErr == nil {
			var reread models.RefreshToken
			if json.Unmarshal(rereadRaw, &reread) == nil && reread.Retired {
				logger.Warn("refresh token replay detected",
					slog.String("client_id", reread.ClientID),
					slog.String("family_id", reread.FamilyID))
				g.revokeFamilyBestEffort(ctx, reread.FamilyID)
			}
		}
		return nil, oautherr.ErrInvalidGrant
	}

	g.markRetired(ctx, key, &record)
	return &record, nil
}

// RevokeFamily revokes everything issued from one grant: each live access
// token jti goes on the deny-list for its remaining lifetime, the current
// refresh token record and the family record are deleted.
func (g *Guard) RevokeFamily(ctx context.Context, familyID string) error {
	const op = "replay.RevokeFamily"
	logger := g.log.With(slog.String("op", op), slog.String("family_id", familyID))

	raw, err := g.kv.Get(ctx, storage.FamilyKey(familyID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil
		}
		return oautherr.StoreUnavailable(err)
	}
	var family models.TokenFamily
	if err = json.Unmarshal(raw, &family); err != nil {
		return fmt.Errorf("unmarshaling token family: %w", err)
	}

	now := time.Now()
	for jti, expiresAt := range family.Access {
		remaining := expiresAt.Sub(now)
		if remaining <= 0 {
			continue
		}
		if err = g.kv.SetWithTTL(ctx, storage.DeniedKey(jti), []byte("revoked"), remaining); err != nil {
			return oautherr.StoreUnavailable(err)
		}
	}
	if family.RefreshToken != "" {
		if err = g.kv.Delete(ctx, storage.RefreshTokenKey(family.RefreshToken)); err != nil {
			return oautherr.StoreUnavailable(err)
		}
	}
	if err = g.kv.Delete(ctx, storage.FamilyKey(familyID)); err != nil {
		return oautherr.StoreUnavailable(err)
	}
	logger.Warn("token family revoked",
		slog.String("client_id", family.ClientID),
		slog.Int("access_tokens_denied", len(family.Access)))
	return nil
}

// markUsed writes the consumed code back with Used=true for the retention
// window, so a later presentation is recognizable as replay. Failing here
// only weakens detection; the code itself is already gone.
func (g *Guard) markUsed(ctx context.Context, key string, record *models.AuthorizationCode) {
	record.Used = true
	raw, err := json.Marshal(record)
	if err == nil {
		err = g.kv.SetWithTTL(ctx, key, raw, g.retention)
	}
	if err != nil {
		g.log.Warn("failed to retain used authorization code", slog.String("error", err.Error()))
	}
}

func (g *Guard) markRetired(ctx context.Context, key string, record *models.RefreshToken) {
	record.Retired = true
	raw, err := json.Marshal(record)
	if err == nil {
		err = g.kv.SetWithTTL(ctx, key, raw, g.retention)
	}
	if err != nil {
		g.log.Warn("failed to retain retired refresh token", slog.String("error", err.Error()))
	}
}

func (g *Guard) revokeFamilyBestEffort(ctx context.Context, familyID string) {
	if err := g.RevokeFamily(ctx, familyID); err != nil {
		g.log.Error("cascading revocation failed",
			slog.String("family_id", familyID),
			slog.String("error", err.Error()))
	}
}
