package matching

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIndex 尚未建立索引（或最近一次索引为空批次）时请求推荐
	ErrEmptyIndex = errors.New("岗位索引为空")
	// ErrInvalidArgument 请求参数不合法，例如 top_k <= 0
	ErrInvalidArgument = errors.New("参数不合法")
	// ErrInternalConsistency 检索结果引用了当前岗位集合中不存在的岗位
	ErrInternalConsistency = errors.New("索引与岗位集合不一致")
	// ErrEmbedding 向量化服务调用失败或返回结果不符合约定
	ErrEmbedding = errors.New("向量化失败")
)

// MatchError 匹配引擎错误，BaseErr 为上面的哨兵错误，Cause 为底层原因（可为空）
type MatchError struct {
	Op      string
	JobID   string
	BaseErr error
	Cause   error
	Detail  string
}

func (e *MatchError) Error() string {
	msg := fmt.Sprintf("%s (操作:%s", e.BaseErr, e.Op)
	if e.JobID != "" {
		msg += ", 岗位:" + e.JobID
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

// Unwrap 同时暴露哨兵错误与底层原因，便于 errors.Is 判断 context 超时等情况
func (e *MatchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

// Is 按哨兵错误比较，底层原因仍经 Unwrap 匹配
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newInvalidArgument(op, format string, args ...interface{}) error {
	return &MatchError{Op: op, BaseErr: ErrInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

func newEmbeddingError(op string, cause error, detail string) error {
	return &MatchError{Op: op, BaseErr: ErrEmbedding, Cause: cause, Detail: detail}
}

func newConsistencyError(op, jobID string, cause error, detail string) error {
	return &MatchError{Op: op, JobID: jobID, BaseErr: ErrInternalConsistency, Cause: cause, Detail: detail}
}
