package parser_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/parser"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float64) float64 {
	var s float64
	for _, f := range v {
		s += f * f
	}
	return math.Sqrt(s)
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := parser.NewHashingEmbedder(64)
	assert.Equal(t, 64, e.GetDimensions())

	a, err := e.EmbedStrings(context.Background(), []string{"python aws spark", "Python AWS Spark", ""})
	require.NoError(t, err)
	require.Len(t, a, 3)

	assert.Len(t, a[0], 64)
	assert.Equal(t, a[0], a[1], "大小写不影响结果")
	assert.InDelta(t, 1.0, norm(a[0]), 1e-9)
	assert.Zero(t, norm(a[2]), "空文本得到零向量")
}

func TestHashingEmbedderDefaultsAndContext(t *testing.T) {
	e := parser.NewHashingEmbedder(0)
	assert.Equal(t, parser.DefaultHashingDimensions, e.GetDimensions())
	assert.Equal(t, "local-hashing-v1", e.ModelVersion())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.EmbedStrings(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeEmbeddingServer 每个输入返回 [len(text), 0]，并以倒序下标返回以验证重排
func fakeEmbeddingServer(t *testing.T, calls *int32, models *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if models != nil {
			*models = append(*models, req.Model)
		}

		type row struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]row, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, row{Embedding: []float64{float64(len(req.Input[i])), 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedderBatchesAndOrders(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, &calls, nil)

	e, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{
		APIKey:         "sk-test",
		BaseURL:        srv.URL,
		Model:          "m1",
		Dimensions:     2,
		BatchSize:      2,
		MaxConcurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "m1@2", e.ModelVersion())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	out, err := e.EmbedStrings(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "5 条文本按 2 条一批")
	for i, v := range out {
		assert.Equal(t, []float64{1, 0}, v, "第 %d 行应归一化", i)
	}

	empty, err := e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpenAIEmbedderModelOption(t *testing.T) {
	var calls int32
	var models []string
	srv := fakeEmbeddingServer(t, &calls, &models)

	e, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "sk-test", BaseURL: srv.URL, MaxConcurrency: 1})
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"}, embedding.WithModel("override"))
	require.NoError(t, err)
	assert.Equal(t, []string{"override"}, models)
}

func TestOpenAIEmbedderErrors(t *testing.T) {
	_, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{})
	assert.Error(t, err, "缺少 API key")

	apiErr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer apiErr.Close()

	e, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "sk-test", BaseURL: apiErr.URL})
	require.NoError(t, err)
	_, err = e.EmbedStrings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0],"index":0}]}`))
	}))
	defer short.Close()

	e, err = parser.NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "sk-test", BaseURL: short.URL})
	require.NoError(t, err)
	_, err = e.EmbedStrings(context.Background(), []string{"x", "y"})
	assert.Error(t, err, "返回行数不一致")
}

type countingTransport struct {
	calls int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	return http.DefaultTransport.RoundTrip(req)
}

func TestNewEmbedderUsesCustomTransport(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, &calls, nil)
	rt := &countingTransport{}

	e, err := parser.NewEmbedder(config.EmbeddingConfig{Provider: "openai", APIKey: "sk-test", BaseURL: srv.URL},
		parser.WithHTTPTransport(rt))
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, atomic.LoadInt32(&calls), atomic.LoadInt32(&rt.calls))
	assert.Positive(t, atomic.LoadInt32(&rt.calls))

	// local 忽略 openai 的选项
	local, err := parser.NewEmbedder(config.EmbeddingConfig{Provider: "local"}, parser.WithHTTPTransport(rt))
	require.NoError(t, err)
	assert.Equal(t, "local-hashing-v1", local.ModelVersion())
}

func TestNewEmbedderByProvider(t *testing.T) {
	e, err := parser.NewEmbedder(config.EmbeddingConfig{Provider: "local", Dimensions: 32})
	require.NoError(t, err)
	assert.Equal(t, "local-hashing-v1", e.ModelVersion())

	e, err = parser.NewEmbedder(config.EmbeddingConfig{Provider: "openai", APIKey: "k", Model: "m", Dimensions: 8})
	require.NoError(t, err)
	assert.IsType(t, &parser.OpenAIEmbedder{}, e)

	_, err = parser.NewEmbedder(config.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err, "缺少密钥")
	_, err = parser.NewEmbedder(config.EmbeddingConfig{Provider: "bert"})
	assert.Error(t, err)
}
