package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"resume-match-go/internal/types"

	"gopkg.in/yaml.v3"
)

// LabelledResume 一份带标注的简历，Relevant 为人工认定相关的岗位 ID。
// Text 为空时从 File 指向的 PDF 提取，相对路径以数据集文件所在目录为准
type LabelledResume struct {
	ID              string   `yaml:"id"`
	Text            string   `yaml:"text"`
	File            string   `yaml:"file,omitempty"`
	YearsExperience *float64 `yaml:"years_experience"`
	Relevant        []string `yaml:"relevant"`
}

// Dataset 评估数据集
type Dataset struct {
	Jobs    []types.JobPosting `yaml:"jobs"`
	Resumes []LabelledResume   `yaml:"resumes"`
}

// LoadDataset 读取 YAML 数据集
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取数据集失败: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("解析数据集失败: %w", err)
	}
	if len(ds.Jobs) == 0 {
		return nil, fmt.Errorf("数据集 %s 中没有岗位", path)
	}
	if len(ds.Resumes) == 0 {
		return nil, fmt.Errorf("数据集 %s 中没有简历", path)
	}
	base := filepath.Dir(path)
	for i := range ds.Resumes {
		r := &ds.Resumes[i]
		if strings.TrimSpace(r.Text) == "" && r.File == "" {
			return nil, fmt.Errorf("简历 %s 既没有 text 也没有 file", r.ID)
		}
		if r.File != "" && !filepath.IsAbs(r.File) {
			r.File = filepath.Join(base, r.File)
		}
	}
	return &ds, nil
}

// FileExtractor 从文件提取简历文本
type FileExtractor func(ctx context.Context, path string) (string, error)

// ResolveTexts 为只给了 file 的简历提取文本
func ResolveTexts(ctx context.Context, ds *Dataset, extract FileExtractor) error {
	for i := range ds.Resumes {
		r := &ds.Resumes[i]
		if strings.TrimSpace(r.Text) != "" || r.File == "" {
			continue
		}
		if extract == nil {
			return fmt.Errorf("简历 %s 需要从文件提取文本，但未配置提取器", r.ID)
		}
		text, err := extract(ctx, r.File)
		if err != nil {
			return fmt.Errorf("提取简历 %s 失败: %w", r.ID, err)
		}
		r.Text = text
	}
	return nil
}

// Recommender 返回按得分排序的岗位 ID。years 为 nil 时由实现自行估计
type Recommender func(ctx context.Context, text string, topK int, years *float64) ([]string, error)

// ResumeResult 单份简历的指标
type ResumeResult struct {
	ID          string   `json:"id"`
	Recommended []string `json:"recommended"`
	Precision   float64  `json:"precision"`
	Recall      float64  `json:"recall"`
	F1          float64  `json:"f1"`
}

// Report 汇总指标，Precision/Recall/F1 为各简历的宏平均
type Report struct {
	K         int            `json:"k"`
	Precision float64        `json:"precision"`
	Recall    float64        `json:"recall"`
	F1        float64        `json:"f1"`
	MAP       float64        `json:"map"`
	Resumes   []ResumeResult `json:"resumes"`
}

// Evaluate 对数据集中的每份简历取 top-k 推荐并计算指标
func Evaluate(ctx context.Context, ds *Dataset, recommend Recommender, k int) (*Report, error) {
	if k <= 0 {
		return nil, fmt.Errorf("evaluate k=%d: %w", k, ErrInvalidK)
	}
	report := &Report{K: k, Resumes: make([]ResumeResult, 0, len(ds.Resumes))}
	recs := make([][]string, 0, len(ds.Resumes))
	rels := make([][]string, 0, len(ds.Resumes))

	for _, r := range ds.Resumes {
		ids, err := recommend(ctx, r.Text, k, r.YearsExperience)
		if err != nil {
			return nil, fmt.Errorf("简历 %s 推荐失败: %w", r.ID, err)
		}
		res := ResumeResult{ID: r.ID, Recommended: ids}
		// k 已校验，以下不会出错
		res.Precision, _ = PrecisionAtK(ids, r.Relevant, k)
		res.Recall, _ = RecallAtK(ids, r.Relevant, k)
		res.F1, _ = F1AtK(ids, r.Relevant, k)

		report.Precision += res.Precision
		report.Recall += res.Recall
		report.F1 += res.F1
		report.Resumes = append(report.Resumes, res)
		recs = append(recs, ids)
		rels = append(rels, r.Relevant)
	}

	if n := float64(len(ds.Resumes)); n > 0 {
		report.Precision /= n
		report.Recall /= n
		report.F1 /= n
	}
	m, err := MeanAveragePrecision(recs, rels)
	if err != nil {
		return nil, err
	}
	report.MAP = m
	return report, nil
}
