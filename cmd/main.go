package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/api/router"
	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/matching"
	"resume-match-go/internal/outbox"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "resume-match-go" //nolint:gochecknoglobals
)

func main() {
	var configPath, initConfig string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时按默认位置查找")
	pflag.StringVar(&initConfig, "init-config", "", "在指定路径生成示例配置后退出")
	pflag.Parse()

	if initConfig != "" {
		if err := config.CreateSampleConfig(initConfig); err != nil {
			zlog.Fatal().Err(err).Msg("生成示例配置失败")
		}
		zlog.Info().Str("path", initConfig).Msg("示例配置已生成")
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("加载配置失败")
	}

	appLogger := logger.Init(logger.Config(cfg.Logger))
	hlog.SetLogger(hertzadapter.From(appLogger))
	hlog.SetLevel(hertzLevel(cfg.Logger.Level))
	log := logger.Component("main")
	log.Info().Str("service", serviceName).Str("version", version).Msg("配置加载成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, version)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer store.Close()

	baseEmbedder, err := parser.NewEmbedder(cfg.Embedding,
		parser.WithHTTPTransport(otelhttp.NewTransport(http.DefaultTransport)))
	if err != nil {
		log.Fatal().Err(err).Msg("初始化Embedder失败")
	}
	var embedder processor.VersionedEmbedder = baseEmbedder
	if store.Redis != nil {
		embedder = processor.NewCachedEmbedder(baseEmbedder, store.Redis, config.GetDuration(cfg.Embedding.CacheTTL, 0))
		log.Info().Str("ttl", cfg.Embedding.CacheTTL).Msg("已启用Redis向量缓存")
	}
	log.Info().Str("provider", cfg.Embedding.Provider).Str("model", embedder.ModelVersion()).Msg("Embedder初始化成功")

	skills, err := parser.NewSkillMatcher(cfg.Matching.Skills)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化技能匹配器失败")
	}
	cleaner := parser.NewTextCleaner(parser.WithStopwords(cfg.Matching.Stopwords...))
	engine, err := matching.NewEngine(embedder, cleaner, skills, parser.NewExperienceEstimator(),
		matching.WithLogger(logger.Component("matching")),
		matching.WithWeights(matching.Weights{
			Semantic:   cfg.Matching.SemanticWeight,
			Skill:      cfg.Matching.SkillWeight,
			Experience: cfg.Matching.ExperienceWeight,
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化匹配引擎失败")
	}

	var jobStore processor.JobStore
	if store.Jobs != nil {
		jobStore = store.Jobs
	}
	ingestor := processor.NewJobIngestor(engine, parser.NewJobTagger(skills, cleaner), jobStore)

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx,
		parser.WithEinoLogger(logger.Component("pdf-extractor")),
		parser.WithPDFTimeout(config.GetDuration(cfg.Server.RequestTimeout, 30*time.Second)))
	if err != nil {
		log.Fatal().Err(err).Msg("创建PDF提取器失败")
	}
	resumeOpts := []processor.ResumeServiceOption{processor.WithPDFExtractor(pdfExtractor)}
	if store.MinIO != nil {
		resumeOpts = append(resumeOpts, processor.WithResumeArchive(store.MinIO))
	}
	resumes := processor.NewResumeService(engine, resumeOpts...)

	var relay *outbox.MessageRelay
	if store.MySQL != nil && store.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(store.MySQL.DB(), store.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.OutboxPollInterval, 0)),
			outbox.WithBatchSize(cfg.RabbitMQ.OutboxBatchSize),
			outbox.WithMaxRetries(cfg.RabbitMQ.OutboxMaxRetries),
		)
		relay.Start(ctx)
		log.Info().Msg("消息中继服务已启动")
	}

	// 启动时的索引加载与事件订阅互不依赖，并行进行
	var startup errgroup.Group
	if cfg.Matching.ReloadOnStartup && ingestor.HasStore() {
		startup.Go(func() error {
			if _, err := ingestor.Reload(ctx); err != nil {
				// 索引为空时推荐接口返回 503，不阻止服务启动
				log.Warn().Err(err).Msg("启动时加载岗位失败")
			}
			return nil
		})
	}
	if store.RabbitMQ != nil && ingestor.HasStore() {
		startup.Go(func() error {
			consumer := processor.NewJobEventConsumer(ingestor,
				config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second), cfg.RabbitMQ.MaxRetries)
			if _, err := processor.StartJobEventConsumer(ctx, store.RabbitMQ, cfg.RabbitMQ, consumer); err != nil {
				return err
			}
			log.Info().Str("exchange", cfg.RabbitMQ.JobEventsExchange).Msg("岗位变更事件消费者已启动")
			return nil
		})
	}
	if err := startup.Wait(); err != nil {
		log.Fatal().Err(err).Msg("启动岗位变更事件消费者失败")
	}

	checks := map[string]handler.Pinger{}
	if store.Redis != nil {
		checks["redis"] = store.Redis
	}
	if store.MySQL != nil {
		checks["mysql"] = store.MySQL
	}

	health := handler.NewHealthHandler(engine, embedder.ModelVersion(), checks)
	if ingestor.HasStore() {
		health.WithJobCounter(ingestor)
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize((cfg.Server.MaxUploadMB+1)<<20),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg), router.RequestLogger())
	router.RegisterRoutes(h, router.Handlers{
		Recommend: handler.NewRecommendHandler(resumes, handler.RecommendOptions{
			DefaultTopK:    cfg.Matching.DefaultTopK,
			MaxTopK:        cfg.Matching.MaxTopK,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			Timeout:        config.GetDuration(cfg.Server.RequestTimeout, 30*time.Second),
		}),
		Jobs:   handler.NewJobHandler(ingestor),
		Health: health,
	}, cfg.Server.APIKeys)
	if len(cfg.Server.APIKeys) == 0 {
		log.Warn().Msg("未配置 api_keys，岗位写接口不做鉴权")
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("HTTP服务器异常退出")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("接收到终止信号，正在优雅退出...")

	if relay != nil {
		relay.Stop()
		log.Info().Msg("消息中继服务已停止")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("关闭链路追踪失败")
	}
	log.Info().Msg("优雅退出完成")
}

func hertzLevel(level string) hlog.Level {
	switch level {
	case "debug":
		return hlog.LevelDebug
	case "warn":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}
