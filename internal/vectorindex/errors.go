package vectorindex

import (
	"errors"
	"fmt"
)

var (
	// ErrShape 输入的向量批次形状不合法（行长度不一致、数量不匹配、维度冲突）
	ErrShape = errors.New("向量形状不合法")
	// ErrNotIndexed 尚未写入任何向量就执行检索
	ErrNotIndexed = errors.New("索引为空，尚未添加任何向量")
	// ErrOutOfRange 槽位下标越界
	ErrOutOfRange = errors.New("槽位下标越界")
	// ErrInvalidArgument 参数不合法，例如 k <= 0
	ErrInvalidArgument = errors.New("参数不合法")
)

// IndexError 携带操作名与细节的索引错误
type IndexError struct {
	Op      string
	BaseErr error
	Detail  string
}

func (e *IndexError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("vectorindex.%s: %s: %s", e.Op, e.BaseErr, e.Detail)
	}
	return fmt.Sprintf("vectorindex.%s: %s", e.Op, e.BaseErr)
}

func (e *IndexError) Unwrap() error {
	return e.BaseErr
}

// Is 支持 errors.Is 比较底层哨兵错误
func (e *IndexError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newShapeError(op, format string, args ...interface{}) error {
	return &IndexError{Op: op, BaseErr: ErrShape, Detail: fmt.Sprintf(format, args...)}
}
