package processor

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFile = errors.New("仅支持 PDF 简历")
	ErrExtractFailed   = errors.New("提取简历文本失败")
	ErrEmptyResumeText = errors.New("简历文本为空")
	ErrInvalidJobs     = errors.New("岗位数据无效")
	ErrNoJobStore      = errors.New("未配置岗位存储")
)

// ProcessError 带操作上下文的处理错误
type ProcessError struct {
	Op        string
	RequestID string
	BaseErr   error
	Cause     error
	Detail    string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s (操作:%s", e.BaseErr, e.Op)
	if e.RequestID != "" {
		msg += ", 请求:" + e.RequestID
	}
	msg += ")"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 同时暴露分类错误与底层原因
func (e *ProcessError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

func newProcessError(op, requestID string, base, cause error, format string, args ...interface{}) error {
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &ProcessError{Op: op, RequestID: requestID, BaseErr: base, Cause: cause, Detail: detail}
}
