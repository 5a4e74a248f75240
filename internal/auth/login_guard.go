package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"vectorAdmin/internal/cache"
)

var (
	ErrRateLimited   = errors.New("login rate limit exceeded")
	ErrAccountLocked = errors.New("account temporarily locked")
)

// LoginGuard 实现按 IP+用户名 的小时级限流，以及连续失败后的账号锁定。
type LoginGuard struct {
	store         cache.Store
	ratePerHour   int
	lockThreshold int
	lockTTL       time.Duration
	now           func() time.Time
}

func NewLoginGuard(store cache.Store, ratePerHour, lockThreshold int, lockTTL time.Duration) *LoginGuard {
	return &LoginGuard{
		store:         store,
		ratePerHour:   ratePerHour,
		lockThreshold: lockThreshold,
		lockTTL:       lockTTL,
		now:           time.Now,
	}
}

// Check 在校验口令之前调用。计数失败时放行。
func (g *LoginGuard) Check(ctx context.Context, ip, username string) error {
	username = strings.ToLower(username)
	rateKey := "rate:login:" + ip + ":" + username + ":" + g.now().UTC().Format("2006010215")
	if count, err := g.store.Incr(ctx, rateKey, time.Hour); err == nil && g.ratePerHour > 0 && count > int64(g.ratePerHour) {
		return ErrRateLimited
	}
	if _, err := g.store.Get(ctx, "lock:login:"+username); err == nil {
		return ErrAccountLocked
	}
	return nil
}

// Fail 记录一次失败，达到阈值后锁定账号。
func (g *LoginGuard) Fail(ctx context.Context, username string) {
	username = strings.ToLower(username)
	count, err := g.store.Incr(ctx, "lock:login:fail:"+username, g.lockTTL)
	if err != nil || g.lockThreshold <= 0 {
		return
	}
	if count >= int64(g.lockThreshold) {
		_ = g.store.Set(ctx, "lock:login:"+username, "1", g.lockTTL)
	}
}

// Succeed 清理失败计数。
func (g *LoginGuard) Succeed(ctx context.Context, username string) {
	_ = g.store.Del(ctx, "lock:login:fail:"+strings.ToLower(username))
}

const refreshBlacklistPrefix = "auth:refresh:blacklist:"

// RevokeRefresh 拉黑刷新令牌 jti 直至其自然过期。
func RevokeRefresh(ctx context.Context, store cache.Store, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return store.Set(ctx, refreshBlacklistPrefix+jti, "revoked", ttl)
}

// IsRefreshRevoked 判断 jti 是否已被拉黑。
func IsRefreshRevoked(ctx context.Context, store cache.Store, jti string) (bool, error) {
	_, err := store.Get(ctx, refreshBlacklistPrefix+jti)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
