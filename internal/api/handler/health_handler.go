package handler

import (
	"context"
	"sort"
	"time"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/matching"
	"resume-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pinger 可探活的外部依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSource 提供当前索引状态
type StatusSource interface {
	Status() types.IndexStatus
	Weights() matching.Weights
}

// JobCounter 统计存储中的岗位数
type JobCounter interface {
	StoredJobs(ctx context.Context) (int64, error)
}

// StatusResponse GET /status。StoredJobs 只在配置了岗位存储且查询成功时返回
type StatusResponse struct {
	types.IndexStatus
	Ready          bool             `json:"ready"`
	EmbeddingModel string           `json:"embedding_model"`
	Weights        matching.Weights `json:"weights"`
	StoredJobs     *int64           `json:"stored_jobs,omitempty"`
}

// HealthResponse GET /health
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthHandler 健康检查与索引状态
type HealthHandler struct {
	source  StatusSource
	model   string
	checks  map[string]Pinger
	counter JobCounter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewHealthHandler checks 为 nil 时 /health 只报告进程存活
func NewHealthHandler(source StatusSource, embeddingModel string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		source:  source,
		model:   embeddingModel,
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger.Component("health-handler"),
	}
}

// WithJobCounter 让 /status 同时报告存储中的岗位数
func (h *HealthHandler) WithJobCounter(counter JobCounter) *HealthHandler {
	h.counter = counter
	return h
}

// HandleStatus GET /api/v1/status
func (h *HealthHandler) HandleStatus(ctx context.Context, c *app.RequestContext) {
	st := h.source.Status()
	resp := StatusResponse{
		IndexStatus:    st,
		Ready:          st.JobCount > 0,
		EmbeddingModel: h.model,
		Weights:        h.source.Weights(),
	}
	if h.counter != nil {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		if n, err := h.counter.StoredJobs(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("统计存储岗位数失败")
		} else {
			resp.StoredJobs = &n
		}
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleHealth GET /api/v1/health，任一依赖不可用时返回 503
func (h *HealthHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	if len(h.checks) == 0 {
		c.JSON(consts.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	results := make([]string, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if err := h.checks[name].Ping(ctx); err != nil {
				results[i] = "down: " + err.Error()
				return err
			}
			results[i] = "up"
			return nil
		})
	}
	err := g.Wait()

	resp := HealthResponse{Status: "ok", Components: make(map[string]string, len(names))}
	for i, name := range names {
		resp.Components[name] = results[i]
	}
	if err != nil {
		resp.Status = "degraded"
		c.JSON(consts.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(consts.StatusOK, resp)
}
