package parser

import (
	"context"
	"fmt"

	"resume-match-go/internal/config"

	"github.com/cloudwego/eino/components/embedding"
)

// Embedder 带模型版本的向量化器
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
	ModelVersion() string
}

var (
	_ Embedder = (*HashingEmbedder)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
)

// NewEmbedder 按 provider 创建向量化器："local" 为本地哈希，"openai" 为 OpenAI 兼容接口。
// opts 只作用于 openai。
func NewEmbedder(cfg config.EmbeddingConfig, opts ...OpenAIOption) (Embedder, error) {
	switch cfg.Provider {
	case "", "local":
		return NewHashingEmbedder(cfg.Dimensions), nil
	case "openai":
		e, err := NewOpenAIEmbedder(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("未知的 embedding provider: %s", cfg.Provider)
	}
}
