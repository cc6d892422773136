package handler

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/processor"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// RecommendTextRequest POST /recommend/text 请求体
type RecommendTextRequest struct {
	ResumeText      string   `json:"resume_text" validate:"required"`
	TopK            *int     `json:"top_k"`
	YearsExperience *float64 `json:"years_experience" validate:"omitempty,gte=0"`
}

// RecommendHandler 推荐接口
type RecommendHandler struct {
	resumes        *processor.ResumeService
	defaultTopK    int
	maxTopK        int
	maxUploadBytes int64
	timeout        time.Duration
	validate       *validator.Validate
	logger         zerolog.Logger
}

// RecommendOptions 推荐接口的限制参数，零值使用默认
type RecommendOptions struct {
	DefaultTopK    int
	MaxTopK        int
	MaxUploadBytes int64
	Timeout        time.Duration
}

// NewRecommendHandler 创建推荐处理器
func NewRecommendHandler(resumes *processor.ResumeService, opts RecommendOptions) *RecommendHandler {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = 100
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &RecommendHandler{
		resumes:        resumes,
		defaultTopK:    opts.DefaultTopK,
		maxTopK:        opts.MaxTopK,
		maxUploadBytes: opts.MaxUploadBytes,
		timeout:        opts.Timeout,
		validate:       validator.New(),
		logger:         logger.Component("recommend-handler"),
	}
}

// HandleRecommendText POST /api/v1/recommend/text
func (h *RecommendHandler) HandleRecommendText(ctx context.Context, c *app.RequestContext) {
	var req RecommendTextRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "请求体不是合法的 JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}

	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	topK, ok := h.checkTopK(c, topK)
	if !ok {
		return
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	result, err := h.resumes.RecommendFromText(ctx, req.ResumeText, topK, req.YearsExperience)
	if err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleRecommendFile POST /api/v1/recommend/file，multipart 字段 file 与可选的 top_k
func (h *RecommendHandler) HandleRecommendFile(ctx context.Context, c *app.RequestContext) {
	topK := h.defaultTopK
	if raw := strings.TrimSpace(c.PostForm("top_k")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "top_k 必须是整数")
			return
		}
		topK = n
	}
	topK, ok := h.checkTopK(c, topK)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件 file")
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(consts.StatusRequestEntityTooLarge, ErrorResponse{Error: "文件过大", Code: "file_too_large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}
	defer file.Close()

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	result, err := h.resumes.RecommendFromPDF(ctx, file, fileHeader.Filename, topK)
	if err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// checkTopK 非正数拒绝，超过上限时截断
func (h *RecommendHandler) checkTopK(c *app.RequestContext, topK int) (int, bool) {
	if topK <= 0 {
		badRequest(c, "top_k 必须为正整数")
		return 0, false
	}
	return min(topK, h.maxTopK), true
}

func (h *RecommendHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}
