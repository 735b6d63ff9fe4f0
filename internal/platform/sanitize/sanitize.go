// Package sanitize 清理使用者輸入的純文字.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text 移除標記, NULL 與控制字符 (保留換行與 Tab).
//
// bluemonday 會把 < > & 轉成實體, 輸出是純文字所以再還原回來.
// 先轉義 &, 使用者輸入的實體字面 (例如 "&amp;") 還原後不變.
func Text(input string) string {
	input = stripControl(input)
	if !strings.Contains(input, "<") {
		return input
	}
	return html.UnescapeString(strict.Sanitize(strings.ReplaceAll(input, "&", "&amp;")))
}

// Line 單行文字: 清理後去除前後空白.
func Line(input string) string {
	return strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(Text(input)))
}

func stripControl(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
