package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1/embeddings"
	defaultOpenAIModel     = "text-embedding-3-small"
	defaultEmbedBatchSize  = 64
	defaultEmbedConcurrent = 4
)

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口。
// 文本按 batchSize 分批，批次并发请求，返回的向量按输入顺序排列并做 L2 归一化。
type OpenAIEmbedder struct {
	apiKey         string
	model          string
	dimensions     int
	baseURL        string
	batchSize      int
	maxConcurrency int
	httpClient     *http.Client
	logger         zerolog.Logger
}

// OpenAIOption 配置 OpenAIEmbedder
type OpenAIOption func(*OpenAIEmbedder)

// WithHTTPTransport 替换请求使用的 RoundTripper，超时设置保持不变
func WithHTTPTransport(rt http.RoundTripper) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if rt != nil {
			e.httpClient.Transport = rt
		}
	}
}

// NewOpenAIEmbedder 根据配置创建远端 Embedder
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	e := &OpenAIEmbedder{
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		dimensions:     cfg.Dimensions,
		baseURL:        cfg.BaseURL,
		batchSize:      cfg.BatchSize,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger.Component("openai-embedder"),
	}
	if e.model == "" {
		e.model = defaultOpenAIModel
	}
	if e.baseURL == "" {
		e.baseURL = defaultOpenAIBaseURL
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultEmbedBatchSize
	}
	if e.maxConcurrency <= 0 {
		e.maxConcurrency = defaultEmbedConcurrent
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	e.httpClient = &http.Client{Timeout: timeout}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GetDimensions 返回请求的向量维度，0 表示由模型决定
func (e *OpenAIEmbedder) GetDimensions() int {
	return e.dimensions
}

// ModelVersion 模型名加维度，维度变化时缓存失效
func (e *OpenAIEmbedder) ModelVersion() string {
	return fmt.Sprintf("%s@%d", e.model, e.dimensions)
}

type openAIEmbeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbedStrings 实现 eino embedding.Embedder 接口
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			rows, err := e.embedBatch(gctx, model, texts[start:end])
			if err != nil {
				return fmt.Errorf("批次 [%d,%d) 向量化失败: %w", start, end, err)
			}
			copy(out[start:end], rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{
		Input:          texts,
		Model:          model,
		Dimensions:     e.dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed openAIEmbeddingResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %.200s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息=%s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("返回向量数 %d 与输入文本数 %d 不一致", len(parsed.Data), len(texts))
	}

	rows := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || rows[d.Index] != nil {
			return nil, fmt.Errorf("响应中的向量下标 %d 无效", d.Index)
		}
		rows[d.Index] = l2Normalize(d.Embedding)
	}

	e.logger.Debug().
		Int("texts", len(texts)).
		Int("prompt_tokens", parsed.Usage.PromptTokens).
		Dur("took", time.Since(start)).
		Msg("批次向量化完成")
	return rows, nil
}
