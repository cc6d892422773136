package matching

import (
	"sort"
	"strings"
)

// 混合打分权重，三者之和为 1
const (
	SemanticWeight   = 0.6
	SkillWeight      = 0.2
	ExperienceWeight = 0.2
)

// Weights 混合打分权重
type Weights struct {
	Semantic   float64 `json:"semantic"`
	Skill      float64 `json:"skill"`
	Experience float64 `json:"experience"`
}

// DefaultWeights 返回默认权重 0.6 / 0.2 / 0.2
func DefaultWeights() Weights {
	return Weights{Semantic: SemanticWeight, Skill: SkillWeight, Experience: ExperienceWeight}
}

// IsZero 三个权重均为 0
func (w Weights) IsZero() bool {
	return w.Semantic == 0 && w.Skill == 0 && w.Experience == 0
}

// Blend 按权重合成最终分数
func (w Weights) Blend(semantic, skill, experience float64) float64 {
	return w.Semantic*semantic + w.Skill*skill + w.Experience*experience
}

// SkillScore 简历覆盖岗位技能的比例 |matched| / |job skills|，岗位没有技能时为 0。
// 返回按字母序排列的匹配技能（小写）。
func SkillScore(jobSkills []string, resumeSkills map[string]struct{}) (float64, []string) {
	required := make(map[string]struct{}, len(jobSkills))
	for _, s := range jobSkills {
		if s = normalizeSkill(s); s != "" {
			required[s] = struct{}{}
		}
	}
	if len(required) == 0 {
		return 0, []string{}
	}

	matched := make([]string, 0, len(required))
	for s := range required {
		if _, ok := resumeSkills[s]; ok {
			matched = append(matched, s)
		}
	}
	sort.Strings(matched)
	return float64(len(matched)) / float64(len(required)), matched
}

// ExperienceScore 三档经验匹配：
// 岗位无要求或简历年限达标为 1.0，达到一半为 0.5，否则为 0。
func ExperienceScore(resumeYears, minYears float64) float64 {
	switch {
	case minYears <= 0:
		return 1.0
	case resumeYears >= minYears:
		return 1.0
	case resumeYears >= minYears/2:
		return 0.5
	default:
		return 0.0
	}
}

// SkillSet 将技能列表转换为小写集合
func SkillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		if s = normalizeSkill(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
