package processor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resume-match-go/internal/processor"
	"resume-match-go/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder 返回 [len(text)]，并记录每次请求的文本
type countingEmbedder struct {
	mu      sync.Mutex
	version string
	calls   [][]string
	err     error
}

func (c *countingEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) ModelVersion() string { return c.version }

func newRedisCache(t *testing.T) (*storage.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisFromClient(client), mr
}

func TestCachedEmbedderOnlyEmbedsMisses(t *testing.T) {
	cache, mr := newRedisCache(t)
	inner := &countingEmbedder{version: "v1"}
	e := processor.NewCachedEmbedder(inner, cache, time.Hour)
	ctx := context.Background()

	first, err := e.EmbedStrings(ctx, []string{"a", "bb", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}, {1}}, first)
	require.Len(t, inner.calls, 1)
	assert.Equal(t, []string{"a", "bb"}, inner.calls[0], "重复文本只请求一次")

	second, err := e.EmbedStrings(ctx, []string{"bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}, {3}}, second)
	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"ccc"}, inner.calls[1])

	key := storage.EmbeddingKey(processor.EmbeddingCacheKey("v1", "ccc"))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

// countingCache 记录每次批量读写的规模
type countingCache struct {
	*storage.Redis
	gets [][]string
	sets []int
}

func (c *countingCache) GetEmbeddings(ctx context.Context, ids []string) ([]storage.CachedEmbedding, error) {
	c.gets = append(c.gets, ids)
	return c.Redis.GetEmbeddings(ctx, ids)
}

func (c *countingCache) SetEmbeddings(ctx context.Context, entries []storage.EmbeddingEntry, model string, ttl time.Duration) error {
	c.sets = append(c.sets, len(entries))
	return c.Redis.SetEmbeddings(ctx, entries, model, ttl)
}

func TestCachedEmbedderBatchesCacheRoundTrips(t *testing.T) {
	redisCache, _ := newRedisCache(t)
	cache := &countingCache{Redis: redisCache}
	inner := &countingEmbedder{version: "v1"}
	e := processor.NewCachedEmbedder(inner, cache, 0)
	ctx := context.Background()

	texts := []string{"a", "bb", "ccc", "dddd", "a"}
	_, err := e.EmbedStrings(ctx, texts)
	require.NoError(t, err)
	require.Len(t, cache.gets, 1, "整批只读一次缓存")
	assert.Len(t, cache.gets[0], len(texts))
	assert.Equal(t, []int{4}, cache.sets, "未命中的文本一次写回")

	out, err := e.EmbedStrings(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}, {3}, {4}, {1}}, out)
	assert.Len(t, cache.gets, 2)
	assert.Len(t, cache.sets, 1, "全部命中时不写缓存")
	assert.Len(t, inner.calls, 1)
}

func TestCachedEmbedderCorruptedEntryIsMiss(t *testing.T) {
	cache, mr := newRedisCache(t)
	mr.HSet(storage.EmbeddingKey(processor.EmbeddingCacheKey("v1", "xyz")), "vector", "[1,", "model_version", "v1")

	inner := &countingEmbedder{version: "v1"}
	out, err := processor.NewCachedEmbedder(inner, cache, 0).EmbedStrings(context.Background(), []string{"xyz"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3}}, out)
	assert.Len(t, inner.calls, 1)
}

func TestCachedEmbedderModelVersionMismatchIsMiss(t *testing.T) {
	cache, _ := newRedisCache(t)
	ctx := context.Background()

	_, err := processor.NewCachedEmbedder(&countingEmbedder{version: "v1"}, cache, 0).EmbedStrings(ctx, []string{"x"})
	require.NoError(t, err)

	v2 := &countingEmbedder{version: "v2"}
	_, err = processor.NewCachedEmbedder(v2, cache, 0).EmbedStrings(ctx, []string{"x"})
	require.NoError(t, err)
	assert.Len(t, v2.calls, 1, "模型版本不同不能复用缓存")
}

func TestCachedEmbedderCacheFailureFallsThrough(t *testing.T) {
	cache, mr := newRedisCache(t)
	mr.Close()

	inner := &countingEmbedder{version: "v1"}
	out, err := processor.NewCachedEmbedder(inner, cache, 0).EmbedStrings(context.Background(), []string{"abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4}}, out)
}

func TestCachedEmbedderPropagatesEmbedError(t *testing.T) {
	cache, _ := newRedisCache(t)
	boom := errors.New("provider down")
	_, err := processor.NewCachedEmbedder(&countingEmbedder{version: "v1", err: boom}, cache, 0).
		EmbedStrings(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestCachedEmbedderExplicitModelBypassesCache(t *testing.T) {
	cache, mr := newRedisCache(t)
	inner := &countingEmbedder{version: "v1"}
	_, err := processor.NewCachedEmbedder(inner, cache, 0).
		EmbedStrings(context.Background(), []string{"x"}, embedding.WithModel("other"))
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestEmbeddingCacheKeyIsDeterministic(t *testing.T) {
	a := processor.EmbeddingCacheKey("v1", "text")
	assert.Equal(t, a, processor.EmbeddingCacheKey("v1", "text"))
	assert.NotEqual(t, a, processor.EmbeddingCacheKey("v2", "text"))
	assert.Len(t, a, 36)
}
