package database

import (
	"regexp"
	"strings"

	"simple-chat/internal/constants"
)

// ValidateLimit 驗證並限制查詢數量
func ValidateLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// SearchLimit 搜尋筆數, 未指定時使用預設值.
func SearchLimit(limit int) int {
	return ValidateLimit(limit, constants.MaxSearchResults, constants.MaxPageSize)
}

// ValidateSkip 驗證並限制跳過數量
func ValidateSkip(skip int) int {
	const maxSkip = 100000

	if skip < 0 {
		return 0
	}
	if skip > maxSkip {
		return maxSkip
	}
	return skip
}

// Offset 將頁碼 (從 1 開始) 轉成 skip.
func Offset(pageNumber, pageSize int) int {
	if pageNumber < 1 {
		pageNumber = 1
	}
	return ValidateSkip((pageNumber - 1) * pageSize)
}

// EscapeLike 轉義 LIKE 萬用字元, 搭配 ESCAPE '\' 使用.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// QuoteRegex 轉義正則特殊字元 (防止 ReDoS).
func QuoteRegex(s string) string {
	return regexp.QuoteMeta(s)
}
