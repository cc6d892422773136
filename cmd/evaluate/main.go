// evaluate 在标注数据集上离线评估推荐质量
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"resume-match-go/internal/config"
	"resume-match-go/internal/evaluation"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/matching"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/types"

	"github.com/spf13/pflag"
)

func main() {
	var (
		datasetPath string
		configPath  string
		provider    string
		k           int
		asJSON      bool
	)
	pflag.StringVarP(&datasetPath, "dataset", "d", "", "YAML 数据集路径 (必填)")
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，用于读取 embedding 与 matching 配置")
	pflag.StringVar(&provider, "provider", "", "覆盖配置中的 embedding provider: local 或 openai")
	pflag.IntVar(&k, "k", 5, "评估的 top-k")
	pflag.BoolVar(&asJSON, "json", false, "以 JSON 输出报告")
	pflag.Parse()

	if datasetPath == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须指定 --dataset")
		pflag.Usage()
		os.Exit(2)
	}

	logger.Init(logger.Config{Level: "warn", Format: "pretty"})
	if err := run(context.Background(), datasetPath, configPath, provider, k, asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "评估失败: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, datasetPath, configPath, provider string, k int, asJSON bool) error {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if provider != "" {
		cfg.Embedding.Provider = provider
	}

	ds, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		return err
	}
	pdf, err := parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		return err
	}
	if err := evaluation.ResolveTexts(ctx, ds, func(ctx context.Context, path string) (string, error) {
		text, _, err := pdf.ExtractFromFile(ctx, path)
		return text, err
	}); err != nil {
		return err
	}

	embedder, err := parser.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	skills, err := parser.NewSkillMatcher(cfg.Matching.Skills)
	if err != nil {
		return err
	}
	cleaner := parser.NewTextCleaner(parser.WithStopwords(cfg.Matching.Stopwords...))
	engine, err := matching.NewEngine(embedder, cleaner, skills, parser.NewExperienceEstimator(),
		matching.WithWeights(matching.Weights{
			Semantic:   cfg.Matching.SemanticWeight,
			Skill:      cfg.Matching.SkillWeight,
			Experience: cfg.Matching.ExperienceWeight,
		}))
	if err != nil {
		return err
	}

	tagger := parser.NewJobTagger(skills, cleaner)
	for i := range ds.Jobs {
		tagger.Enrich(&ds.Jobs[i])
	}
	if err := engine.IndexJobs(ctx, ds.Jobs); err != nil {
		return err
	}

	report, err := evaluation.Evaluate(ctx, ds, func(ctx context.Context, text string, topK int, years *float64) ([]string, error) {
		var recs []types.Recommendation
		var err error
		if years == nil {
			recs, _, err = engine.RecommendWithEstimatedExperience(ctx, text, topK)
		} else {
			recs, err = engine.Recommend(ctx, text, topK, *years)
		}
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.Job.JobID
		}
		return ids, nil
	}, k)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "简历\tprecision@%d\trecall@%d\tf1@%d\t推荐\n", k, k, k)
	for _, r := range report.Resumes {
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%v\n", r.ID, r.Precision, r.Recall, r.F1, r.Recommended)
	}
	fmt.Fprintf(w, "平均\t%.3f\t%.3f\t%.3f\t\n", report.Precision, report.Recall, report.F1)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("MAP: %.4f  (岗位 %d, 简历 %d, 模型 %s)\n", report.MAP, len(ds.Jobs), len(ds.Resumes), embedder.ModelVersion())
	return nil
}
