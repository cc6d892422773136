package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"resume-match-go/internal/types"
)

// DataRoleQueries 用于识别岗位类别的角色关键词
var DataRoleQueries = []string{
	"data scientist",
	"data engineer",
	"data analyst",
	"machine learning engineer",
	"ml engineer",
	"data architect",
	"analytics engineer",
	"bi developer",
	"business intelligence developer",
	"research scientist",
}

var (
	workModes = []string{"remote", "hybrid", "onsite", "flexible"}
	// "5 years" / "3+ years" / "5-7 yrs"，区间取下限
	minYearsPattern = regexp.MustCompile(`(\d+)(?:\s*[-–]\s*\d+)?\s*\+?\s*(?:year|yr)s?`)
)

// JobTagger 入库前为岗位补全技能、标签、角色类型与最低年限
type JobTagger struct {
	skills  *SkillMatcher
	cleaner *TextCleaner
}

// NewJobTagger 创建岗位标签生成器
func NewJobTagger(skills *SkillMatcher, cleaner *TextCleaner) *JobTagger {
	return &JobTagger{skills: skills, cleaner: cleaner}
}

// JobTags 标签生成结果
type JobTags struct {
	Skills   []string
	Tags     []string
	RoleType string
	MinYears float64
}

// Generate 基于标题与描述生成标签。技能从未清洗的文本中抽取，以保留 c++ / c# 这类符号
func (g *JobTagger) Generate(job *types.JobPosting) JobTags {
	text := job.Title + ". " + job.Description

	out := JobTags{Skills: g.skills.UniqueSkills(text)}
	cleaned := g.cleaner.Clean(text)

	title := strings.ToLower(job.Title)
	for _, role := range DataRoleQueries {
		if strings.Contains(title, role) {
			out.RoleType = titleCase(role)
			break
		}
	}

	tags := make(map[string]struct{})
	if job.Location != "" {
		for _, part := range strings.Split(job.Location, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags[part] = struct{}{}
			}
		}
	}
	if job.JobType != "" {
		tags[job.JobType] = struct{}{}
	}
	if job.ExperienceLevel != "" {
		tags[job.ExperienceLevel] = struct{}{}
	}
	for _, mode := range workModes {
		if strings.Contains(cleaned, mode) {
			tags[mode] = struct{}{}
		}
	}
	out.Tags = make([]string, 0, len(tags))
	for t := range tags {
		out.Tags = append(out.Tags, t)
	}
	sort.Strings(out.Tags)

	if m := minYearsPattern.FindStringSubmatch(cleaned); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.MinYears = n
		}
	}
	return out
}

// Enrich 仅填充岗位上缺失的字段，已有值保持不变
func (g *JobTagger) Enrich(job *types.JobPosting) {
	tags := g.Generate(job)
	if len(job.Skills) == 0 {
		job.Skills = tags.Skills
	}
	if len(job.Tags) == 0 {
		job.Tags = tags.Tags
	}
	if job.RoleType == "" {
		job.RoleType = tags.RoleType
	}
	if job.MinYearsExperience <= 0 {
		job.MinYearsExperience = tags.MinYears
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
