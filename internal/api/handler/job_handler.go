package handler

import (
	"context"
	"encoding/json"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// JobsRequest /jobs 与 /jobs/index 的请求体
type JobsRequest struct {
	Jobs []types.JobPosting `json:"jobs" validate:"required,min=1,dive"`
}

// IndexResponse 索引重建结果
type IndexResponse struct {
	Indexed    int    `json:"indexed"`
	Generation uint64 `json:"generation"`
}

// UpsertResponse 岗位写入结果，索引由事件异步重建
type UpsertResponse struct {
	Accepted int    `json:"accepted"`
	EventID  string `json:"event_id"`
}

// JobHandler 岗位写接口
type JobHandler struct {
	ingestor *processor.JobIngestor
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(ingestor *processor.JobIngestor) *JobHandler {
	return &JobHandler{
		ingestor: ingestor,
		validate: validator.New(),
		logger:   logger.Component("job-handler"),
	}
}

// HandleIndexJobs POST /api/v1/jobs/index，直接替换内存索引
func (h *JobHandler) HandleIndexJobs(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bind(ctx, c)
	if !ok {
		return
	}
	status, err := h.ingestor.Index(ctx, req.Jobs)
	if err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}
	c.JSON(consts.StatusOK, IndexResponse{Indexed: status.JobCount, Generation: status.Generation})
}

// HandleUpsertJobs POST /api/v1/jobs，写入 MySQL 并记录变更事件
func (h *JobHandler) HandleUpsertJobs(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bind(ctx, c)
	if !ok {
		return
	}
	eventID, err := h.ingestor.Upsert(ctx, req.Jobs)
	if err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}
	c.JSON(consts.StatusAccepted, UpsertResponse{Accepted: len(req.Jobs), EventID: eventID})
}

// HandleReloadJobs POST /api/v1/jobs/reload
func (h *JobHandler) HandleReloadJobs(ctx context.Context, c *app.RequestContext) {
	status, err := h.ingestor.Reload(ctx)
	if err != nil {
		respondError(ctx, c, h.logger, err)
		return
	}
	c.JSON(consts.StatusOK, IndexResponse{Indexed: status.JobCount, Generation: status.Generation})
}

func (h *JobHandler) bind(ctx context.Context, c *app.RequestContext) (*JobsRequest, bool) {
	var req JobsRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "请求体不是合法的 JSON")
		return nil, false
	}
	if len(req.Jobs) == 0 {
		badRequest(c, "jobs 不能为空")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(ctx, c, h.logger, err)
		return nil, false
	}
	return &req, true
}
