package replay_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/domain/models"
	"authd/internal/domain/oautherr"
	"authd/internal/services/replay"
	"authd/internal/storage"
	"authd/internal/storage/memory"
)

func seedCode(t *testing.T, kv *memory.Store, familyID string) string {
	t.Helper()
	code := uuid.NewString()
	record := models.AuthorizationCode{
		Code:      code,
		ClientID:  "c1",
		FamilyID:  familyID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, kv.SetWithTTL(context.Background(), storage.AuthCodeKey(code), raw, 10*time.Minute))
	return code
}

func seedFamily(t *testing.T, kv *memory.Store, familyID, jti, refreshToken string) {
	t.Helper()
	family := models.TokenFamily{
		ID:           familyID,
		UserID:       "u1",
		ClientID:     "c1",
		Access:       map[string]time.Time{jti: time.Now().Add(15 * time.Minute)},
		RefreshToken: refreshToken,
	}
	raw, err := json.Marshal(family)
	require.NoError(t, err)
	require.NoError(t, kv.SetWithTTL(context.Background(), storage.FamilyKey(familyID), raw, time.Hour))
}

func TestConsumeAuthCode_SingleUse(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	guard := replay.New(slog.Default(), kv, time.Minute)

	code := seedCode(t, kv, uuid.NewString())

	record, err := guard.ConsumeAuthCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code, record.Code)

	_, err = guard.ConsumeAuthCode(ctx, code)
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrant)
}

func TestConsumeAuthCode_UnknownCode(t *testing.T) {
	guard := replay.New(slog.Default(), memory.New(), time.Minute)

	_, err := guard.ConsumeAuthCode(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrant)
}

func TestConsumeAuthCode_ReplayRevokesFamily(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	guard := replay.New(slog.Default(), kv, time.Minute)

	familyID := uuid.NewString()
	jti := uuid.NewString()
	refreshToken := uuid.NewString()
	code := seedCode(t, kv, familyID)
	seedFamily(t, kv, familyID, jti, refreshToken)
	require.NoError(t, kv.SetWithTTL(ctx, storage.RefreshTokenKey(refreshToken), []byte("{}"), time.Hour))

	_, err := guard.ConsumeAuthCode(ctx, code)
	require.NoError(t, err)

	// Reuse within the retention window is a theft signal.
	_, err = guard.ConsumeAuthCode(ctx, code)
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrant)

	denied, err := kv.Exists(ctx, storage.DeniedKey(jti))
	require.NoError(t, err)
	assert.True(t, denied, "access token jti must be denied after replay")

	refreshExists, err := kv.Exists(ctx, storage.RefreshTokenKey(refreshToken))
	require.NoError(t, err)
	assert.False(t, refreshExists, "refresh token must be deleted after replay")

	familyExists, err := kv.Exists(ctx, storage.FamilyKey(familyID))
	require.NoError(t, err)
	assert.False(t, familyExists)
}

func TestConsumeAuthCode_ConcurrentExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	guard := replay.New(slog.Default(), kv, time.Minute)

	code := seedCode(t, kv, uuid.NewString())

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := guard.ConsumeAuthCode(ctx, code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, oautherr.ErrInvalidGrant)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent exchange may succeed")
	assert.Equal(t, attempts-1, losses)
}

func TestRetireRefreshToken_ReplayRevokesFamily(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	guard := replay.New(slog.Default(), kv, time.Minute)

	familyID := uuid.NewString()
	jti := uuid.NewString()
	token := uuid.NewString()
	record := models.RefreshToken{
		Token:              token,
		UserID:             "u1",
		ClientID:           "c1",
		FamilyID:           familyID,
		RotationGeneration: 1,
		IssuedAt:           time.Now(),
		ExpiresAt:          time.Now().Add(time.Hour),
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, kv.SetWithTTL(ctx, storage.RefreshTokenKey(token), raw, time.Hour))
	seedFamily(t, kv, familyID, jti, token)

	retired, err := guard.RetireRefreshToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, retired.RotationGeneration)

	_, err = guard.RetireRefreshToken(ctx, token)
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrant)

	denied, err := kv.Exists(ctx, storage.DeniedKey(jti))
	require.NoError(t, err)
	assert.True(t, denied, "family access tokens must be denied after refresh replay")
}

func TestRevokeFamily_MissingFamilyIsNoop(t *testing.T) {
	guard := replay.New(slog.Default(), memory.New(), time.Minute)

	assert.NoError(t, guard.RevokeFamily(context.Background(), uuid.NewString()))
}
