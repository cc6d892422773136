package storage

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeObjectPrefix(t *testing.T) {
	now := time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	a, err := ResumeObjectPrefix(now)
	require.NoError(t, err)
	b, err := ResumeObjectPrefix(now)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^resume/2026/03/07/[0-9a-f-]{36}$`)
	assert.Regexp(t, pattern, a, "日期按 UTC 计算")
	assert.NotEqual(t, a, b)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", getContentType(".PDF"))
	assert.Equal(t, "text/plain", getContentType(".txt"))
	assert.Equal(t, "application/octet-stream", getContentType(".docx"))
}
