package parser

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components/embedding"
)

// DefaultHashingDimensions 本地哈希向量默认维度
const DefaultHashingDimensions = 512

// HashingEmbedder 基于特征哈希的本地向量化器，无需外部模型，结果确定。
// 适用于离线评估、测试以及未配置远端 Embedding 服务的部署。
type HashingEmbedder struct {
	dimensions int
	model      string
}

// NewHashingEmbedder 创建本地哈希向量化器，dimensions <= 0 时使用默认维度
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions, model: "local-hashing-v1"}
}

// GetDimensions 返回向量维度
func (h *HashingEmbedder) GetDimensions() int {
	return h.dimensions
}

// ModelVersion 返回模型标识，用于向量缓存校验
func (h *HashingEmbedder) ModelVersion() string {
	return h.model
}

// EmbedStrings 每个词元哈希到一个桶，并用哈希的另一位决定正负号，最后做 L2 归一化
func (h *HashingEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float64, h.dimensions)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			sum := xxhash.Sum64String(tok)
			bucket := int(sum % uint64(h.dimensions))
			if sum>>63 == 1 {
				vec[bucket]--
			} else {
				vec[bucket]++
			}
		}
		out[i] = l2Normalize(vec)
	}
	return out, nil
}

func l2Normalize(v []float64) []float64 {
	var sum float64
	for _, f := range v {
		sum += f * f
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] *= inv
	}
	return v
}
