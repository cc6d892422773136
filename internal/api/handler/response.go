package handler

import (
	"context"
	"errors"

	"resume-match-go/internal/matching"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrorResponse 统一的错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor 把领域错误映射为 HTTP 状态码与错误码
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return consts.StatusBadRequest, "invalid_request"
	case errors.Is(err, matching.ErrInvalidArgument),
		errors.Is(err, processor.ErrInvalidJobs):
		return consts.StatusBadRequest, "invalid_argument"
	case errors.Is(err, processor.ErrUnsupportedFile):
		return consts.StatusBadRequest, "unsupported_file"
	case errors.Is(err, processor.ErrExtractFailed),
		errors.Is(err, processor.ErrEmptyResumeText):
		return consts.StatusBadRequest, "unreadable_resume"
	case errors.Is(err, matching.ErrEmptyIndex):
		return consts.StatusServiceUnavailable, "empty_index"
	case errors.Is(err, processor.ErrNoJobStore):
		return consts.StatusServiceUnavailable, "no_job_store"
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout, "timeout"
	default:
		return consts.StatusInternalServerError, "internal"
	}
}

// respondError 写错误响应并标记请求 span。5xx 只返回概要信息，细节进日志
func respondError(ctx context.Context, c *app.RequestContext, log zerolog.Logger, err error) {
	status, code := statusFor(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	msg := err.Error()
	if status == consts.StatusInternalServerError {
		log.Error().Err(err).Str("path", string(c.Path())).Msg("请求处理失败")
		msg = "服务内部错误"
	} else {
		log.Warn().Err(err).Str("path", string(c.Path())).Int("status", status).Msg("请求被拒绝")
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, ErrorResponse{Error: msg, Code: "invalid_request"})
}
