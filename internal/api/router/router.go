package router

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// APIKeyHeader 写接口的密钥请求头
const APIKeyHeader = "X-API-Key"

// Handlers 路由依赖的处理器
type Handlers struct {
	Recommend *handler.RecommendHandler
	Jobs      *handler.JobHandler
	Health    *handler.HealthHandler
}

// RegisterRoutes 注册 API 路由。apiKeys 非空时 /jobs 下的写接口需要携带密钥
func RegisterRoutes(h *server.Hertz, hs Handlers, apiKeys []string) {
	api := h.Group("/api/v1")

	api.POST("/recommend/text", hs.Recommend.HandleRecommendText)
	api.POST("/recommend/file", hs.Recommend.HandleRecommendFile)

	var guards []app.HandlerFunc
	if len(apiKeys) > 0 {
		guards = append(guards, APIKeyAuth(apiKeys))
	}
	jobs := api.Group("/jobs", guards...)
	jobs.POST("", hs.Jobs.HandleUpsertJobs)
	jobs.POST("/index", hs.Jobs.HandleIndexJobs)
	jobs.POST("/reload", hs.Jobs.HandleReloadJobs)

	api.GET("/status", hs.Health.HandleStatus)
	api.GET("/health", hs.Health.HandleHealth)
}

// APIKeyAuth 校验 X-API-Key 请求头
func APIKeyAuth(keys []string) app.HandlerFunc {
	allowed := make([][]byte, len(keys))
	for i, k := range keys {
		allowed[i] = []byte(k)
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+APIKeyHeader, ""),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range allowed {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, errors.New("invalid api key")
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, handler.ErrorResponse{Error: err.Error(), Code: "unauthorized"})
		}),
	)
}

// RequestLogger 记录每个请求的方法、路径、状态码与耗时
func RequestLogger() app.HandlerFunc {
	log := logger.Component("http")
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		log.Info().
			Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", c.Response.StatusCode()).
			Dur("took", time.Since(start)).
			Msg("请求完成")
	}
}
