package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T, lookup UserLookup) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	jwt := NewJWTManager(
		"test-access-secret-0123456789abcdef",
		"test-refresh-secret-0123456789abcdef",
		15*time.Minute,
		24*time.Hour,
	)
	return NewService(jwt, client, lookup)
}

func TestRefreshTokens_RotatesAndRevokesOld(t *testing.T) {
	svc := newTestAuthService(t, func(context.Context, string) (string, string, error) {
		return "u@example.com", "user", nil
	})

	pair, err := svc.GenerateTokens("user-1", "u@example.com", "user")
	require.NoError(t, err)

	refreshed, err := svc.RefreshTokens(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// Old refresh token is single-use.
	_, err = svc.RefreshTokens(pair.RefreshToken)
	assert.Error(t, err)
}

func TestRefreshTokens_CarriesCurrentRole(t *testing.T) {
	svc := newTestAuthService(t, func(context.Context, string) (string, string, error) {
		return "a@example.com", "admin", nil
	})

	pair, err := svc.GenerateTokens("user-1", "a@example.com", "user")
	require.NoError(t, err)

	refreshed, err := svc.RefreshTokens(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestLogout_RevokesAllRefreshTokens(t *testing.T) {
	svc := newTestAuthService(t, func(context.Context, string) (string, string, error) {
		return "u@example.com", "user", nil
	})

	first, err := svc.GenerateTokens("user-1", "u@example.com", "user")
	require.NoError(t, err)
	second, err := svc.GenerateTokens("user-1", "u@example.com", "user")
	require.NoError(t, err)

	require.NoError(t, svc.Logout("user-1"))

	_, err = svc.RefreshTokens(first.RefreshToken)
	assert.Error(t, err)
	_, err = svc.RefreshTokens(second.RefreshToken)
	assert.Error(t, err)
}
