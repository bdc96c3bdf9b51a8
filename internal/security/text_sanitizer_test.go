package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTextSanitizer_Sanitize(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name     string
		in       string
		maxRunes int
		want     string
	}{
		{"空", "", 0, ""},
		{"プレーンテキスト", "Kobe Bakery", 0, "Kobe Bakery"},
		{"タグ除去", "<b>Kobe</b> <i>Bakery</i>", 0, "Kobe Bakery"},
		{"script除去", `Hello<script>alert("x")</script>`, 0, "Hello"},
		{"イベント属性", `<img src=x onerror="alert(1)">Shop`, 0, "Shop"},
		{"空白の正規化", "  families\n\twith   kids ", 0, "families with kids"},
		{"エンティティを戻す", "Tom & Jerry's", 0, "Tom & Jerry's"},
		{"切り詰め", "abcdefghij", 4, "abcd"},
		{"マルチバイトの切り詰め", "神戸のパン屋さん", 3, "神戸の"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.in, tt.maxRunes); got != tt.want {
				t.Errorf("Sanitize(%q, %d) = %q, want %q", tt.in, tt.maxRunes, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	in := `<p>Grow <em>weekend</em> sales &amp; reach new families</p>`

	once := s.Sanitize(in, 0)
	twice := s.Sanitize(once, 0)
	if once != twice {
		t.Errorf("not idempotent: %q != %q", once, twice)
	}
}

func TestTextSanitizer_NeverExceedsLimit(t *testing.T) {
	s := NewTextSanitizer()
	got := s.Sanitize(strings.Repeat("あ ", 500), 200)
	if n := utf8.RuneCountInString(got); n > 200 {
		t.Errorf("rune count = %d, want <= 200", n)
	}
}
