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

func setupService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mgr := NewJWTManager("access-secret-32-chars-long!!!!!", "refresh-secret-32-chars-long!!!!", 15*time.Minute, 7*24*time.Hour)
	return NewService(mgr, client)
}

func TestRefreshTokens_RotatesAndPreservesEmail(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "user-1", "a@b.com")
	require.NoError(t, err)

	next, err := svc.RefreshTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)

	// Rotation consumes the token; a replay is rejected.
	_, err = svc.RefreshTokens(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestLogout_RevokesAllRefreshTokens(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	first, err := svc.GenerateTokens(ctx, "user-2", "c@d.com")
	require.NoError(t, err)
	second, err := svc.GenerateTokens(ctx, "user-2", "c@d.com")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "user-2"))

	_, err = svc.RefreshTokens(ctx, first.RefreshToken)
	assert.Error(t, err)
	_, err = svc.RefreshTokens(ctx, second.RefreshToken)
	assert.Error(t, err)
}
