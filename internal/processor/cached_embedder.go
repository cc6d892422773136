package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
)

var embeddingNamespace = uuid.NewV5(uuid.NamespaceURL, "resume-match-go/embedding")

// EmbeddingCacheKey 由模型版本与原文得到的确定性缓存 ID
func EmbeddingCacheKey(modelVersion, text string) string {
	return uuid.NewV5(embeddingNamespace, modelVersion+"|"+text).String()
}

// CachedEmbedder 在 Embedder 前加一层 Redis 缓存。
// 只有未命中的文本会发给下游，缓存读写失败只记日志，不影响结果。
type CachedEmbedder struct {
	inner  VersionedEmbedder
	cache  EmbeddingCache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEmbedder 创建带缓存的 Embedder，ttl<=0 表示不过期
func NewCachedEmbedder(inner VersionedEmbedder, cache EmbeddingCache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Component("cached-embedder"),
	}
}

// ModelVersion 透传下游模型版本
func (c *CachedEmbedder) ModelVersion() string {
	return c.inner.ModelVersion()
}

// EmbedStrings 先查缓存，再批量计算未命中部分并回填
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	// 显式指定模型时缓存版本无法对应，直接透传
	if o := embedding.GetCommonOptions(&embedding.Options{}, opts...); o.Model != nil && *o.Model != "" {
		return c.inner.EmbedStrings(ctx, texts, opts...)
	}

	model := c.inner.ModelVersion()
	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = EmbeddingCacheKey(model, text)
	}

	cached, err := c.cache.GetEmbeddings(ctx, keys)
	if err != nil {
		c.logger.Warn().Err(err).Int("texts", len(texts)).Msg("读取向量缓存失败")
		cached = nil
	}

	// 相同文本只请求一次
	pending := make(map[string][]int)
	var missTexts []string
	for i, text := range texts {
		if i < len(cached) {
			hit := cached[i]
			switch {
			case hit.Err == nil && hit.ModelVersion == model && len(hit.Vector) > 0:
				out[i] = hit.Vector
				continue
			case hit.Err != nil && !errors.Is(hit.Err, storage.ErrNotFound):
				c.logger.Warn().Err(hit.Err).Msg("向量缓存记录损坏")
			}
		}
		if _, seen := pending[text]; !seen {
			missTexts = append(missTexts, text)
		}
		pending[text] = append(pending[text], i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("下游返回 %d 个向量，期望 %d 个", len(vectors), len(missTexts))
	}

	entries := make([]storage.EmbeddingEntry, 0, len(missTexts))
	for j, text := range missTexts {
		idx := pending[text]
		for _, i := range idx {
			out[i] = vectors[j]
		}
		entries = append(entries, storage.EmbeddingEntry{ID: keys[idx[0]], Vector: vectors[j]})
	}
	if err := c.cache.SetEmbeddings(ctx, entries, model, c.ttl); err != nil {
		c.logger.Warn().Err(err).Int("entries", len(entries)).Msg("写入向量缓存失败")
	}

	c.logger.Debug().
		Int("texts", len(texts)).
		Int("misses", len(missTexts)).
		Msg("向量缓存统计")
	return out, nil
}
