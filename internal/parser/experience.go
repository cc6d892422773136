package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// maxPlausibleYears 超过该值的数字视为误匹配（如年份、编号）
const maxPlausibleYears = 50

var experiencePattern = regexp.MustCompile(`(\d+)\+?\s*years?\s*of\s*experience`)

// ExperienceEstimator 从简历文本中估计工作年限
type ExperienceEstimator struct{}

// NewExperienceEstimator 创建年限估计器
func NewExperienceEstimator() *ExperienceEstimator {
	return &ExperienceEstimator{}
}

// EstimateYears 取所有 "N years of experience" 中小于 50 的最大值，找不到返回 0
func (e *ExperienceEstimator) EstimateYears(text string) float64 {
	var best float64
	for _, m := range experiencePattern.FindAllStringSubmatch(strings.ToLower(text), -1) {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil || n >= maxPlausibleYears {
			continue
		}
		if n > best {
			best = n
		}
	}
	return best
}
