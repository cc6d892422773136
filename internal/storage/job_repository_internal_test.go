package storage

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestAggregateID(t *testing.T) {
	assert.Equal(t, "jobs", aggregateID(nil))
	assert.Equal(t, "a", aggregateID([]string{"a"}))
	assert.Equal(t, "a+2", aggregateID([]string{"a", "b", "c"}))
}

func TestAggregateIDTruncatesOnRuneBoundary(t *testing.T) {
	// 每个汉字占 3 字节，按字节截断会落在字符中间
	long := strings.Repeat("岗", 40) + "-" + strings.Repeat("位", 40)

	for _, ids := range [][]string{{long}, {long, "b", "c"}} {
		id := aggregateID(ids)
		assert.True(t, utf8.ValidString(id), id)
		assert.LessOrEqual(t, utf8.RuneCountInString(id), maxAggregateIDLength)
	}

	// 保留结尾的数量后缀
	assert.True(t, strings.HasSuffix(aggregateID([]string{long, "b", "c"}), "+2"))
}
