package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/cache"
)

func newMemoryStore(t *testing.T) *cache.MemoryStore {
	t.Helper()
	store, err := cache.NewMemoryStore(1024)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc, err := NewEphemeralAuthService(time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair(Identity{UserID: "2", Username: "editor", Role: RoleEditor})
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshID)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "2", claims.UserID)
	assert.Equal(t, RoleEditor, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
	assert.Equal(t, pair.RefreshID, refresh.ID)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	a, err := NewEphemeralAuthService(time.Minute, time.Hour)
	require.NoError(t, err)
	b, err := NewEphemeralAuthService(time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := a.GenerateTokenPair(Identity{UserID: "1", Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)
	_, err = b.ValidateToken(pair.AccessToken)
	require.Error(t, err)
	_, err = b.ValidateToken("")
	require.Error(t, err)
}

func TestRoleAllowed(t *testing.T) {
	assert.True(t, RoleViewer.Allowed())
	assert.True(t, RoleEditor.Allowed(RoleAdmin, RoleEditor))
	assert.False(t, RoleViewer.Allowed(RoleAdmin, RoleEditor))

	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)
	_, err = ParseRole("root")
	require.Error(t, err)

	assert.Equal(t, []Role{RoleAdmin, RoleViewer}, RolesOf([]string{"admin", "ghost", "viewer"}))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("123")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("123", hash))
	assert.False(t, VerifyPassword("1234", hash))
	assert.False(t, VerifyPassword("", ""))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("123"))
	assert.NoError(t, ValidatePassword("密码们"))
	assert.ErrorIs(t, ValidatePassword("   "), ErrPasswordBlank)
	assert.ErrorIs(t, ValidatePassword("12"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("a", MaxPasswordLength+1)), ErrPasswordTooLong)

	_, err := HashPassword("1")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestCaptchaIssueAndVerify(t *testing.T) {
	svc := NewCaptchaService(newMemoryStore(t), time.Minute)
	svc.Generate = func(int) (string, error) { return "AB12", nil }
	ctx := context.Background()

	captcha, err := svc.Issue(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(captcha.Image, "data:image/svg+xml;base64,"))
	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(captcha.Image, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	require.NoError(t, svc.Verify(ctx, captcha.Key, "ab12"))
	// 一次性
	require.ErrorIs(t, svc.Verify(ctx, captcha.Key, "ab12"), ErrCaptchaMissing)
}

func TestCaptchaMismatchConsumesCode(t *testing.T) {
	svc := NewCaptchaService(newMemoryStore(t), time.Minute)
	svc.Generate = func(int) (string, error) { return "XY34", nil }
	ctx := context.Background()

	captcha, err := svc.Issue(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Verify(ctx, captcha.Key, "0000"), ErrCaptchaMismatch)
	require.ErrorIs(t, svc.Verify(ctx, captcha.Key, "XY34"), ErrCaptchaMissing)
}

func TestRandomCode(t *testing.T) {
	code, err := RandomCode(4)
	require.NoError(t, err)
	require.Len(t, code, 4)
	for _, ch := range code {
		assert.Contains(t, captchaAlphabet, string(ch))
	}
}

func TestLoginGuardLocksAfterThreshold(t *testing.T) {
	guard := NewLoginGuard(newMemoryStore(t), 100, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Check(ctx, "10.0.0.1", "admin"))
		guard.Fail(ctx, "admin")
	}
	require.ErrorIs(t, guard.Check(ctx, "10.0.0.1", "ADMIN"), ErrAccountLocked)
}

func TestLoginGuardRateLimit(t *testing.T) {
	guard := NewLoginGuard(newMemoryStore(t), 2, 0, time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.Check(ctx, "10.0.0.2", "viewer"))
	require.NoError(t, guard.Check(ctx, "10.0.0.2", "viewer"))
	require.ErrorIs(t, guard.Check(ctx, "10.0.0.2", "viewer"), ErrRateLimited)
}

func TestRefreshBlacklist(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	revoked, err := IsRefreshRevoked(ctx, store, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, RevokeRefresh(ctx, store, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = IsRefreshRevoked(ctx, store, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}
