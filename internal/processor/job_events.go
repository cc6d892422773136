package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Reloader 从存储重建索引
type Reloader interface {
	Reload(ctx context.Context) (types.IndexStatus, error)
}

// JobEventConsumer 消费 jobs.updated 事件，每条事件触发一次全量重建
type JobEventConsumer struct {
	reloader      Reloader
	retryInterval time.Duration
	maxRetries    int
	logger        zerolog.Logger
}

// NewJobEventConsumer 创建事件消费者。单条事件内最多尝试 maxRetries+1 次重建。
func NewJobEventConsumer(reloader Reloader, retryInterval time.Duration, maxRetries int) *JobEventConsumer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &JobEventConsumer{
		reloader:      reloader,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		logger:        logger.Component("job-events"),
	}
}

// Handle 处理单条投递。格式错误的消息直接丢弃，重建失败则重新入队。
func (c *JobEventConsumer) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg storage.JobsUpdatedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return fmt.Errorf("解析 jobs.updated 消息失败: %v: %w", err, storage.ErrDropMessage)
	}

	log := c.logger.With().Str("event_id", msg.EventID).Int("jobs", len(msg.JobIDs)).Logger()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryInterval):
			}
		}
		status, err := c.reloader.Reload(ctx)
		if err == nil {
			log.Info().Uint64("generation", status.Generation).Int("indexed", status.JobCount).Msg("收到岗位变更，索引已重建")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("重建索引失败")
	}
	return lastErr
}

// StartJobEventConsumer 声明 exchange/队列并开始消费。
// 队列名为空时每个实例使用独占队列，保证每个副本都会重建自己的索引。
func StartJobEventConsumer(ctx context.Context, mq *storage.RabbitMQ, cfg config.RabbitMQConfig, consumer *JobEventConsumer) (<-chan struct{}, error) {
	if err := mq.EnsureExchange(cfg.JobEventsExchange, amqp.ExchangeTopic, true); err != nil {
		return nil, err
	}
	queue, err := mq.EnsureQueue(cfg.JobReindexQueue, true)
	if err != nil {
		return nil, err
	}
	if err := mq.BindQueue(queue, cfg.JobEventsExchange, cfg.JobsUpdatedRoutingKey); err != nil {
		return nil, err
	}
	return mq.StartConsumer(ctx, queue, cfg.PrefetchCount, consumer.Handle)
}
