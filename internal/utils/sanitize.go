package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// 用户输入只保存纯文本，渲染由前端负责
var textPolicy = bluemonday.StrictPolicy()

const maxSanitizePasses = 8

// SanitizeText strips every HTML element from s and trims the result. The
// result is plain text: entities are decoded, and text that decodes into
// markup ("&lt;b&gt;") is stripped again until nothing parses as a tag.
func SanitizeText(s string) string {
	for range maxSanitizePasses {
		clean := textPolicy.Sanitize(s)
		plain := html.UnescapeString(clean)
		if plain == s {
			return strings.TrimSpace(plain)
		}
		s = plain
	}
	// 仍未收敛时保留转义后的输出
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
