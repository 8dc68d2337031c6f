package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部由来の文字列をプレーンテキストに無害化する。
// IdPから受け取る表示名やAIの生成文に使用する。
type TextSanitizer interface {
	// Sanitize はタグを除去し、制御文字と連続空白を整理した文字列を返す。
	// maxRunesが正の場合はその文字数で切り詰める。
	Sanitize(s string, maxRunes int) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// Policyはスレッドセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) Sanitize(in string, maxRunes int) string {
	if in == "" {
		return ""
	}

	// StrictPolicyはエンティティをエスケープするため、プレーンテキストに戻す
	text := html.UnescapeString(s.policy.Sanitize(in))

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
			}
			space = true
		case unicode.IsControl(r) || r == utf8.RuneError:
			// drop
		default:
			b.WriteRune(r)
			space = false
		}
	}

	out := strings.TrimSpace(b.String())
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
	}
	return out
}
