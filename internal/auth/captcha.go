package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"vectorAdmin/internal/cache"
)

const captchaKeyPrefix = "captcha:"

// 去掉容易混淆的 0/O、1/I/L。
const captchaAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

var (
	ErrCaptchaMissing  = errors.New("captcha expired or not found")
	ErrCaptchaMismatch = errors.New("captcha mismatch")
)

// Captcha 返回给前端的验证码。
type Captcha struct {
	Key   string `json:"key"`
	Image string `json:"image"`
}

// CaptchaService 生成验证码并在 cache.Store 中保存答案。
type CaptchaService struct {
	store  cache.Store
	ttl    time.Duration
	length int
	// Generate 可在测试中替换为固定答案。
	Generate func(n int) (string, error)
}

func NewCaptchaService(store cache.Store, ttl time.Duration) *CaptchaService {
	return &CaptchaService{
		store:    store,
		ttl:      ttl,
		length:   4,
		Generate: RandomCode,
	}
}

// Issue 生成新验证码，图片为 base64 编码的 SVG data URL。
func (s *CaptchaService) Issue(ctx context.Context) (Captcha, error) {
	code, err := s.Generate(s.length)
	if err != nil {
		return Captcha{}, err
	}
	key := uuid.NewString()
	if err := s.store.Set(ctx, captchaKeyPrefix+key, code, s.ttl); err != nil {
		return Captcha{}, fmt.Errorf("store captcha: %w", err)
	}
	return Captcha{Key: key, Image: renderCaptchaSVG(code)}, nil
}

// Verify 忽略大小写比较。无论成功与否答案都会被删除，验证码只能使用一次。
func (s *CaptchaService) Verify(ctx context.Context, key, answer string) error {
	if key == "" {
		return ErrCaptchaMissing
	}
	stored, err := s.store.Get(ctx, captchaKeyPrefix+key)
	if errors.Is(err, cache.ErrMiss) {
		return ErrCaptchaMissing
	}
	if err != nil {
		return fmt.Errorf("load captcha: %w", err)
	}
	_ = s.store.Del(ctx, captchaKeyPrefix+key)

	if !strings.EqualFold(strings.TrimSpace(answer), stored) {
		return ErrCaptchaMismatch
	}
	return nil
}

// RandomCode 从 captchaAlphabet 中随机取 n 个字符。
func RandomCode(n int) (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(captchaAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("random captcha: %w", err)
		}
		b.WriteByte(captchaAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func renderCaptchaSVG(code string) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="120" height="40" viewBox="0 0 120 40">`)
	b.WriteString(`<rect width="120" height="40" fill="#f1f5f9"/>`)
	b.WriteString(`<path d="M4 30 Q 40 5 70 25 T 116 12" stroke="#94a3b8" fill="none"/>`)
	for i, ch := range code {
		rotate := (i%2)*16 - 8
		fmt.Fprintf(&b,
			`<text x="%d" y="28" font-family="monospace" font-size="22" fill="#2563eb" transform="rotate(%d %d 20)">%c</text>`,
			14+i*26, rotate, 20+i*26, ch)
	}
	b.WriteString(`</svg>`)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(b.String()))
}
