package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力や外部サイトから取得した文字列をプレーンテキストに正規化する。
type TextSanitizer interface {
	// Sanitize はマークアップを除去し、空白を1つにまとめ、maxRunes文字に切り詰める。
	// maxRunesが0以下の場合は切り詰めない。
	Sanitize(raw string, maxRunes int) string
}

// textSanitizer はbluemondayのStrictPolicyで全てのタグを除去する実装。
// bluemonday.Policy はゴルーチンセーフなので1つを共有する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) Sanitize(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyはテキスト中の & や < をエスケープするため、保存前に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}
