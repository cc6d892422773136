package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"resume-match-go/internal/types"
)

// FlatIndex 基于内积的精确检索索引。
// 写入与查询两侧都做 L2 归一化，因此内积即余弦相似度。
// 槽位按插入顺序分配，一代数据内只追加，语料变化时必须整体 Reset。
// FlatIndex 本身不加锁，并发控制由持有者负责。
type FlatIndex struct {
	dim      int
	vectors  []float32 // 按槽位连续存放，长度为 len(payloads)*dim
	payloads []string
}

// New 创建空索引
func New() *FlatIndex {
	return &FlatIndex{}
}

// Reset 清空所有向量与负载，可重复调用
func (x *FlatIndex) Reset() {
	x.dim = 0
	x.vectors = nil
	x.payloads = nil
}

// Len 当前存储的向量数量
func (x *FlatIndex) Len() int {
	return len(x.payloads)
}

// Dimension 当前向量维度，空索引返回 0
func (x *FlatIndex) Dimension() int {
	return x.dim
}

// AddItems 批量写入向量及其负载。向量在写入前被复制并归一化，调用方的切片不会被修改。
func (x *FlatIndex) AddItems(embeddings [][]float32, payloads []string) error {
	if len(embeddings) != len(payloads) {
		return newShapeError("AddItems", "向量数量 %d 与负载数量 %d 不一致", len(embeddings), len(payloads))
	}
	if len(embeddings) == 0 {
		return nil
	}

	dim := len(embeddings[0])
	if dim == 0 {
		return newShapeError("AddItems", "向量维度不能为 0")
	}
	for i, row := range embeddings {
		if len(row) != dim {
			return newShapeError("AddItems", "第 %d 行维度为 %d，期望 %d", i, len(row), dim)
		}
	}
	if x.dim != 0 && x.dim != dim {
		return newShapeError("AddItems", "索引已有向量维度为 %d，新批次维度为 %d", x.dim, dim)
	}

	// 先整体校验再写入，失败时索引保持原样
	buf := make([]float32, 0, len(embeddings)*dim)
	for _, row := range embeddings {
		buf = append(buf, Normalize(row)...)
	}

	x.dim = dim
	x.vectors = append(x.vectors, buf...)
	x.payloads = append(x.payloads, payloads...)
	return nil
}

// Search 对每个查询向量返回至多 k 个结果，按相似度降序，分数相同按槽位升序
func (x *FlatIndex) Search(queries [][]float32, k int) ([][]types.RetrievedItem, error) {
	if k <= 0 {
		return nil, &IndexError{Op: "Search", BaseErr: ErrInvalidArgument, Detail: fmt.Sprintf("k=%d", k)}
	}
	if len(x.payloads) == 0 {
		return nil, &IndexError{Op: "Search", BaseErr: ErrNotIndexed}
	}
	for i, q := range queries {
		if len(q) != x.dim {
			return nil, newShapeError("Search", "第 %d 个查询维度为 %d，索引维度为 %d", i, len(q), x.dim)
		}
	}

	n := len(x.payloads)
	limit := k
	if limit > n {
		limit = n
	}

	results := make([][]types.RetrievedItem, len(queries))
	for qi, q := range queries {
		nq := Normalize(q)
		hits := make([]types.RetrievedItem, n)
		for slot := 0; slot < n; slot++ {
			hits[slot] = types.RetrievedItem{Slot: slot, Score: dot(nq, x.vectors[slot*x.dim:(slot+1)*x.dim])}
		}
		sort.SliceStable(hits, func(a, b int) bool {
			return hits[a].Score > hits[b].Score
		})
		results[qi] = hits[:limit:limit]
	}
	return results, nil
}

// GetPayload 返回槽位对应的负载
func (x *FlatIndex) GetPayload(slot int) (string, error) {
	if slot < 0 || slot >= len(x.payloads) {
		return "", &IndexError{Op: "GetPayload", BaseErr: ErrOutOfRange, Detail: fmt.Sprintf("slot=%d, size=%d", slot, len(x.payloads))}
	}
	return x.payloads[slot], nil
}

// Vector 返回槽位上存储的（已归一化）向量副本
func (x *FlatIndex) Vector(slot int) ([]float32, error) {
	if slot < 0 || slot >= len(x.payloads) {
		return nil, &IndexError{Op: "Vector", BaseErr: ErrOutOfRange, Detail: fmt.Sprintf("slot=%d, size=%d", slot, len(x.payloads))}
	}
	out := make([]float32, x.dim)
	copy(out, x.vectors[slot*x.dim:(slot+1)*x.dim])
	return out, nil
}

// Normalize 返回 v 的 L2 归一化副本，零向量原样返回（全零）
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return float32(s)
}
