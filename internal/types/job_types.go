package types

import "time"

// JobPosting 岗位信息，一次索引代内只读
type JobPosting struct {
	JobID           string     `json:"job_id" yaml:"job_id" validate:"required"`
	Title           string     `json:"title" yaml:"title"`
	Description     string     `json:"description" yaml:"description"`
	Company         string     `json:"company,omitempty" yaml:"company,omitempty"`
	Location        string     `json:"location,omitempty" yaml:"location,omitempty"`
	URL             string     `json:"url,omitempty" yaml:"url,omitempty"`
	PostedDate      *time.Time `json:"posted_date,omitempty" yaml:"posted_date,omitempty"`
	Category        string     `json:"category,omitempty" yaml:"category,omitempty"`
	JobType         string     `json:"job_type,omitempty" yaml:"job_type,omitempty"`
	ExperienceLevel string     `json:"experience_level,omitempty" yaml:"experience_level,omitempty"`
	RoleType        string     `json:"role_type,omitempty" yaml:"role_type,omitempty"`
	Skills          []string   `json:"skills" yaml:"skills"`
	Tags            []string   `json:"tags" yaml:"tags"`
	// MinYearsExperience 0 表示无要求
	MinYearsExperience float64 `json:"min_years_experience" yaml:"min_years_experience" validate:"gte=0"`
}

// RetrievedItem 向量检索的单条结果
type RetrievedItem struct {
	Slot  int     `json:"slot"`
	Score float32 `json:"score"`
}

// Recommendation 单条岗位推荐
type Recommendation struct {
	Job             *JobPosting `json:"job"`
	Score           float64     `json:"score"`
	SemanticScore   float64     `json:"semantic_score"`
	SkillScore      float64     `json:"skill_score"`
	ExperienceScore float64     `json:"experience_score"`
	MatchedSkills   []string    `json:"matched_skills"`
}

// IndexStatus 当前索引代的概况
type IndexStatus struct {
	Generation uint64    `json:"generation"`
	JobCount   int       `json:"job_count"`
	Dimension  int       `json:"dimension"`
	IndexedAt  time.Time `json:"indexed_at,omitempty"`
}
