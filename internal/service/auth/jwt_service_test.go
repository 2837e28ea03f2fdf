package auth

import (
	"context"
	"testing"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-thats-32-characters!"

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            testSecret,
		TokenLifetimeMinutes: 60,
	}
}

func TestNewJWTService(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		svc, err := NewJWTService(testAuthConfig())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("short secret rejected", func(t *testing.T) {
		svc, err := NewJWTService(config.AuthConfig{
			JWTSecret:            "too-short",
			TokenLifetimeMinutes: 60,
		})
		assert.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	ctx := context.Background()
	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	userID := uuid.New()

	t.Run("round trip preserves claims", func(t *testing.T) {
		token, err := svc.GenerateToken(ctx, userID, false)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.False(t, claims.IsAdmin)
		assert.Equal(t, userID.String(), claims.Subject)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("admin claim survives the round trip", func(t *testing.T) {
		token, err := svc.GenerateToken(ctx, userID, true)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.True(t, claims.IsAdmin)
	})

	t.Run("garbage token", func(t *testing.T) {
		claims, err := svc.ValidateToken(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		other, err := NewJWTService(config.AuthConfig{
			JWTSecret:            "another-secret-key-32-characters!!!",
			TokenLifetimeMinutes: 60,
		})
		require.NoError(t, err)

		token, err := other.GenerateToken(ctx, userID, false)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})
}

func TestValidateToken_Expired(t *testing.T) {
	ctx := context.Background()

	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	impl := svc.(*hmacJWTService)

	// Issue a token in the past, beyond lifetime plus clock skew.
	issuedAt := time.Now().Add(-3 * time.Hour)
	impl.timeFunc = func() time.Time { return issuedAt }

	token, err := svc.GenerateToken(ctx, uuid.New(), false)
	require.NoError(t, err)

	impl.timeFunc = time.Now

	claims, err := svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestValidateToken_ClockSkewTolerated(t *testing.T) {
	ctx := context.Background()

	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	impl := svc.(*hmacJWTService)

	// Token expired one minute ago; skew allowance is two minutes.
	issuedAt := time.Now().Add(-61 * time.Minute)
	impl.timeFunc = func() time.Time { return issuedAt }

	token, err := svc.GenerateToken(ctx, uuid.New(), false)
	require.NoError(t, err)

	impl.timeFunc = time.Now

	_, err = svc.ValidateToken(ctx, token)
	assert.NoError(t, err)
}
