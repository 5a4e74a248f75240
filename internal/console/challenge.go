// Package console 放置终端客户端共用的小部件：删除确认码与批量选择。
package console

import (
	"errors"
	"math/rand/v2"
	"strings"
)

// ChallengeLength 确认码长度。
const ChallengeLength = 4

const challengeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ErrChallengeMismatch 输入与确认码不一致。
var ErrChallengeMismatch = errors.New("confirmation code does not match")

// Challenge 删除前要求重新输入的随机确认码。
type Challenge struct {
	code string
}

// NewChallenge 生成新的确认码；src 为 nil 时使用全局随机源。
func NewChallenge(src *rand.Rand) Challenge {
	intn := rand.IntN
	if src != nil {
		intn = src.IntN
	}
	var b strings.Builder
	for range ChallengeLength {
		b.WriteByte(challengeAlphabet[intn(len(challengeAlphabet))])
	}
	return Challenge{code: b.String()}
}

func (c Challenge) Code() string { return c.code }

// Verify 比较输入，忽略首尾空白与大小写。
func (c Challenge) Verify(input string) error {
	if c.code == "" || !strings.EqualFold(strings.TrimSpace(input), c.code) {
		return ErrChallengeMismatch
	}
	return nil
}
