package invite

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// codeAlphabet は紛らわしい文字（I, O, 0, 1）を除いた32文字。
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// CodeLength は発行する招待コードの文字数。
	CodeLength = 12
	// MaxCodeLength は受け付ける招待コードの最大文字数。
	MaxCodeLength = 16
)

// GenerateCode は暗号論的乱数から招待コードを生成する。
// 32文字のアルファベットなので1バイトの下位5ビットで偏りなく1文字を選べる。
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("乱数の生成に失敗しました: %w", err)
	}
	var sb strings.Builder
	sb.Grow(CodeLength)
	for _, b := range buf {
		sb.WriteByte(codeAlphabet[b&31])
	}
	return sb.String(), nil
}

// NormalizeCode は入力された招待コードの前後空白を除き、大文字に揃える。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode は正規化済みのコードがアルファベットと長さの制約を満たすか検証する。
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("招待コードが空です")
	}
	if len(code) > MaxCodeLength {
		return fmt.Errorf("招待コードは%d文字以内です", MaxCodeLength)
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return fmt.Errorf("招待コードに使用できない文字が含まれています")
		}
	}
	return nil
}
