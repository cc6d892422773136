package models

import (
	"encoding/json"
	"time"

	"resume-match-go/internal/types"

	"gorm.io/datatypes"
)

// Job 岗位信息表，技能和标签以 JSON 数组存储
type Job struct {
	JobID              string         `gorm:"type:varchar(64);primaryKey"`
	Title              string         `gorm:"type:varchar(255);not null"`
	Company            string         `gorm:"type:varchar(255)"`
	Location           string         `gorm:"type:varchar(255)"`
	URL                string         `gorm:"type:varchar(1024)"`
	Description        string         `gorm:"type:text;not null"`
	Category           string         `gorm:"type:varchar(100)"`
	JobType            string         `gorm:"type:varchar(100)"`
	ExperienceLevel    string         `gorm:"type:varchar(100)"`
	RoleType           string         `gorm:"type:varchar(100)"`
	SkillsJSON         datatypes.JSON `gorm:"type:json"`
	TagsJSON           datatypes.JSON `gorm:"type:json"`
	MinYearsExperience float64        `gorm:"default:0"`
	Status             string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	PostedAt           *time.Time     `gorm:"type:datetime(6)"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobFromPosting 将岗位转换为数据库模型
func JobFromPosting(p *types.JobPosting, status string) (*Job, error) {
	skills, err := marshalStrings(p.Skills)
	if err != nil {
		return nil, err
	}
	tags, err := marshalStrings(p.Tags)
	if err != nil {
		return nil, err
	}
	return &Job{
		JobID:              p.JobID,
		Title:              p.Title,
		Company:            p.Company,
		Location:           p.Location,
		URL:                p.URL,
		Description:        p.Description,
		Category:           p.Category,
		JobType:            p.JobType,
		ExperienceLevel:    p.ExperienceLevel,
		RoleType:           p.RoleType,
		SkillsJSON:         skills,
		TagsJSON:           tags,
		MinYearsExperience: p.MinYearsExperience,
		Status:             status,
		PostedAt:           p.PostedDate,
	}, nil
}

// ToPosting 将数据库模型还原为岗位
func (j *Job) ToPosting() (types.JobPosting, error) {
	p := types.JobPosting{
		JobID:              j.JobID,
		Title:              j.Title,
		Description:        j.Description,
		Company:            j.Company,
		Location:           j.Location,
		URL:                j.URL,
		PostedDate:         j.PostedAt,
		Category:           j.Category,
		JobType:            j.JobType,
		ExperienceLevel:    j.ExperienceLevel,
		RoleType:           j.RoleType,
		MinYearsExperience: j.MinYearsExperience,
	}
	if len(j.SkillsJSON) > 0 {
		if err := json.Unmarshal(j.SkillsJSON, &p.Skills); err != nil {
			return p, err
		}
	}
	if len(j.TagsJSON) > 0 {
		if err := json.Unmarshal(j.TagsJSON, &p.Tags); err != nil {
			return p, err
		}
	}
	return p, nil
}

func marshalStrings(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
