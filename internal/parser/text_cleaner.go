package parser

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	// 保留 c++ / c# / node.js / ci/cd 这类技术符号
	nonTechCharPattern = regexp.MustCompile(`[^a-zA-Z0-9+#./_\-\s]`)
)

// TextCleaner 文本清洗器，索引与查询两侧使用同一规则。
// Clean 是纯函数，只依赖输入文本与构造时给定的停用词。
type TextCleaner struct {
	stopwords map[string]struct{}
}

// TextCleanerOption TextCleaner 的配置选项
type TextCleanerOption func(*TextCleaner)

// WithStopwords 设置需要剔除的停用词（按小写比较）
func WithStopwords(words ...string) TextCleanerOption {
	return func(c *TextCleaner) {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				c.stopwords[w] = struct{}{}
			}
		}
	}
}

// NewTextCleaner 创建文本清洗器
func NewTextCleaner(opts ...TextCleanerOption) *TextCleaner {
	c := &TextCleaner{stopwords: make(map[string]struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean 小写化，去掉邮箱、URL 与非技术符号，按单空格重新拼接
func (c *TextCleaner) Clean(text string) string {
	text = strings.ToLower(text)
	text = emailPattern.ReplaceAllString(text, " ")
	text = urlPattern.ReplaceAllString(text, " ")
	text = nonTechCharPattern.ReplaceAllString(text, " ")

	fields := strings.Fields(text)
	if len(c.stopwords) == 0 {
		return strings.Join(fields, " ")
	}
	kept := fields[:0]
	for _, tok := range fields {
		if _, stop := c.stopwords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}
