// Package evaluation 离线评估推荐质量
package evaluation

import (
	"errors"
	"fmt"
)

// ErrInvalidK k 必须为正数
var ErrInvalidK = errors.New("k 必须为正数")

// PrecisionAtK 前 k 个推荐中相关的比例，分母为实际截取的长度
func PrecisionAtK(recommended, relevant []string, k int) (float64, error) {
	if k <= 0 {
		return 0, fmt.Errorf("precision@%d: %w", k, ErrInvalidK)
	}
	top := head(recommended, k)
	if len(top) == 0 {
		return 0, nil
	}
	return float64(hits(top, toSet(relevant))) / float64(len(top)), nil
}

// RecallAtK 前 k 个推荐覆盖的相关项比例
func RecallAtK(recommended, relevant []string, k int) (float64, error) {
	if k <= 0 {
		return 0, fmt.Errorf("recall@%d: %w", k, ErrInvalidK)
	}
	rel := toSet(relevant)
	if len(rel) == 0 {
		return 0, nil
	}
	return float64(hits(head(recommended, k), rel)) / float64(len(rel)), nil
}

// F1AtK precision@k 与 recall@k 的调和平均
func F1AtK(recommended, relevant []string, k int) (float64, error) {
	p, err := PrecisionAtK(recommended, relevant, k)
	if err != nil {
		return 0, err
	}
	r, err := RecallAtK(recommended, relevant, k)
	if err != nil {
		return 0, err
	}
	if p+r == 0 {
		return 0, nil
	}
	return 2 * p * r / (p + r), nil
}

// AveragePrecision 单个查询的 AP，相关集为空时为 0
func AveragePrecision(recommended, relevant []string) float64 {
	rel := toSet(relevant)
	if len(rel) == 0 {
		return 0
	}
	var found int
	var sum float64
	for i, id := range recommended {
		if _, ok := rel[id]; ok {
			found++
			sum += float64(found) / float64(i+1)
		}
	}
	return sum / float64(len(rel))
}

// MeanAveragePrecision 多个查询 AP 的均值，两个切片长度必须一致
func MeanAveragePrecision(recommendations, relevants [][]string) (float64, error) {
	if len(recommendations) != len(relevants) {
		return 0, fmt.Errorf("推荐结果 %d 条，标注 %d 条，数量不一致", len(recommendations), len(relevants))
	}
	if len(recommendations) == 0 {
		return 0, nil
	}
	var total float64
	for i := range recommendations {
		total += AveragePrecision(recommendations[i], relevants[i])
	}
	return total / float64(len(recommendations)), nil
}

func head(items []string, k int) []string {
	if len(items) > k {
		return items[:k]
	}
	return items
}

func hits(items []string, rel map[string]struct{}) int {
	n := 0
	for _, id := range items {
		if _, ok := rel[id]; ok {
			n++
		}
	}
	return n
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, id := range items {
		set[id] = struct{}{}
	}
	return set
}
