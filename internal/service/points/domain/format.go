package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FormatBigNumber 每三位插入一个 "," 分隔符。
func FormatBigNumber(n int64) string {
	if n < 0 {
		return "-" + groupDigits(-n, ",")
	}
	return groupDigits(n, ",")
}

func groupDigits(n int64, sep string) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 || sep == "" {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// StripNonDigits 去掉所有非数字字符。
func StripNonDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// IsDigits 对应 /[^\d]/ 校验: 非空且只包含 ASCII 数字。
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseDigits 去掉非数字后解析，失败返回 false。
func ParseDigits(s string) (int64, bool) {
	d := StripNonDigits(s)
	if d == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseDisplayedInt 解析已经渲染出来的数字。
// 部分主题下 innerText 为空字符串，这时退回到 textContent。
func ParseDisplayedInt(innerText, textContent string) (int64, bool) {
	if n, ok := ParseDigits(innerText); ok {
		return n, true
	}
	return ParseDigits(textContent)
}

// FormatDeadline 渲染等级期限，nil 或零值时为 "N/A"。
func FormatDeadline(d *Date, locale string) string {
	if d == nil || d.IsZero() {
		return "N/A"
	}
	return FormatLocaleDate(d.Time, locale)
}

// FormatLocaleDate 近似 toLocaleDateString 的几种常见区域格式。
func FormatLocaleDate(t time.Time, locale string) string {
	switch strings.ToLower(locale) {
	case "ja", "ja-jp", "zh", "zh-cn", "zh-tw":
		return t.Format("2006/1/2")
	case "en-gb", "fr", "fr-fr", "de", "de-de":
		return t.Format("02/01/2006")
	default:
		return t.Format("1/2/2006")
	}
}
