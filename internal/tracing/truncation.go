package tracing

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500

	// MaxRedisLength Redis键值最大长度
	MaxRedisLength = 100

	// MaxResumeLength 简历内容最大长度
	MaxResumeLength = 150
)

var (
	piiEmailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	piiPhonePattern = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// sensitiveKeys 属性名包含这些关键字时对值做掩码
var sensitiveKeys = []string{"email", "phone", "password", "secret", "token", "api_key", "name", "address"}

// SafeAttributeValue 敏感属性掩码，其他属性按 maxLength 截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for _, keyword := range sensitiveKeys {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 保留首尾字符，中间用 * 替换
func MaskPII(value string) string {
	runes := []rune(value)
	switch n := len(runes); {
	case n == 0:
		return ""
	case n <= 1:
		return "*"
	case n == 2:
		return string(runes[0:1]) + "*"
	case n <= 4:
		return string(runes[0:1]) + strings.Repeat("*", n-2) + string(runes[n-1:])
	default:
		return string(runes[0:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// TruncateString 截断字符串，保留首尾并用省略号连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 安全处理SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 安全处理Redis键
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

// SafeResumeContent 掩码简历中的邮箱与电话后截断，用于日志与 span 属性
func SafeResumeContent(content string) string {
	content = piiEmailPattern.ReplaceAllStringFunc(content, MaskPII)
	content = piiPhonePattern.ReplaceAllStringFunc(content, MaskPII)
	return TruncateString(content, MaxResumeLength)
}
