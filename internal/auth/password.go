package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// 密码长度限制。上限取 bcrypt 可处理的最大字节数。
const (
	MinPasswordLength = 3
	MaxPasswordLength = 72
)

var (
	ErrPasswordBlank    = errors.New("密码不能为空")
	ErrPasswordTooShort = fmt.Errorf("密码至少 %d 位", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("密码不能超过 %d 字节", MaxPasswordLength)
)

// PasswordCost 生成哈希时使用的 bcrypt 代价，测试中可调低。
var PasswordCost = bcrypt.DefaultCost

// ValidatePassword 检查用户提交的新密码是否满足长度要求。
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordBlank
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword 校验后生成 bcrypt 哈希。
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword 比较明文与已存储的哈希。账号未设置密码时总是失败。
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
