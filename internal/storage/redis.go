package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var redisTracer = otel.Tracer("resume-match-go/storage/redis")

// ErrNotFound 缓存未命中
var ErrNotFound = errors.New("redis: key not found")

const (
	fieldVector       = "vector"
	fieldModelVersion = "model_version"
)

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection with OpenTelemetry tracing
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// NewRedisFromClient 包装已有客户端
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// EmbeddingKey 返回文本向量缓存的完整 key
func EmbeddingKey(id string) string {
	return fmt.Sprintf(constants.KeyEmbeddingVector, id)
}

// CachedEmbedding 批量读取的单条结果，Err 为 ErrNotFound 表示未命中
type CachedEmbedding struct {
	Vector       []float64
	ModelVersion string
	Err          error
}

// EmbeddingEntry 待写入缓存的一条向量
type EmbeddingEntry struct {
	ID     string
	Vector []float64
}

// SetEmbeddings 在一个 pipeline 中把向量和模型版本写入各自的 HASH。ttl<=0 时不过期。
func (r *Redis) SetEmbeddings(ctx context.Context, entries []EmbeddingEntry, modelVersion string, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if len(entries) == 0 {
		return nil
	}

	ctx, span := redisTracer.Start(ctx, "Redis.SetEmbeddings", trace.WithAttributes(
		attribute.Int("redis.batch_size", len(entries)),
		attribute.String("redis.key", tracing.SafeRedisKey(EmbeddingKey(entries[0].ID))),
	))
	defer span.End()

	pipe := r.Client.Pipeline()
	for _, entry := range entries {
		vectorJSON, err := json.Marshal(entry.Vector)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
			return fmt.Errorf("序列化向量失败: %w", err)
		}
		key := EmbeddingKey(entry.ID)
		pipe.HSet(ctx, key, fieldVector, vectorJSON, fieldModelVersion, modelVersion)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("写入向量缓存失败: %w", err)
	}
	return nil
}

// GetEmbeddings 用一个 pipeline 读取多条向量，结果与 ids 一一对应。
// 返回的 error 只表示整批失败，单条未命中或损坏记录在对应的 Err 中。
func (r *Redis) GetEmbeddings(ctx context.Context, ids []string) ([]CachedEmbedding, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, span := redisTracer.Start(ctx, "Redis.GetEmbeddings", trace.WithAttributes(
		attribute.Int("redis.batch_size", len(ids)),
		attribute.String("redis.key", tracing.SafeRedisKey(EmbeddingKey(ids[0]))),
	))
	defer span.End()

	pipe := r.Client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, EmbeddingKey(id), fieldVector, fieldModelVersion)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("读取向量缓存失败: %w", err)
	}

	out := make([]CachedEmbedding, len(ids))
	hits := 0
	for i, cmd := range cmds {
		out[i] = decodeEmbedding(cmd.Val())
		if out[i].Err == nil {
			hits++
		}
	}
	span.SetAttributes(attribute.Int("redis.hits", hits))
	return out, nil
}

func decodeEmbedding(vals []interface{}) CachedEmbedding {
	if len(vals) < 2 || vals[0] == nil {
		return CachedEmbedding{Err: ErrNotFound}
	}
	vectorJSON, ok := vals[0].(string)
	if !ok || vectorJSON == "" {
		return CachedEmbedding{Err: fmt.Errorf("向量缓存格式错误")}
	}
	var vector []float64
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return CachedEmbedding{Err: fmt.Errorf("反序列化向量失败: %w", err)}
	}
	modelVersion, _ := vals[1].(string)
	return CachedEmbedding{Vector: vector, ModelVersion: modelVersion}
}
