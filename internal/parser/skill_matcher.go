package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// DefaultSkills 默认技能词表（数据 / 机器学习方向）
var DefaultSkills = []string{
	// 编程与数据
	"python", "r", "sql", "scala", "java", "julia", "sas", "matlab",
	"pandas", "numpy", "spark", "airflow", "hadoop",
	"tableau", "power bi", "looker", "databricks", "snowflake",
	"redshift", "bigquery", "mongodb",

	// 云与 MLOps
	"aws", "azure", "gcp", "s3", "lambda", "emr", "sagemaker",
	"docker", "kubernetes", "terraform", "git", "jenkins", "ci/cd",
	"mlflow", "kubeflow", "dvc", "wandb", "model deployment", "model serving",

	// 机器学习与深度学习
	"scikit-learn", "tensorflow", "pytorch", "keras", "xgboost", "lightgbm",
	"statistics", "regression", "classification", "clustering",
	"feature engineering", "eda", "data visualization", "time series forecasting",

	// NLP 与生成式 AI
	"machine learning", "deep learning", "nlp", "transformers",
	"bert", "roberta", "t5", "bloom", "gpt", "gpt-4", "gpt-3.5", "chatgpt",
	"mistral", "llama", "llama2", "llama3", "falcon", "gemma", "vicuna", "alpaca",
	"langchain", "llamaindex", "haystack", "huggingface", "sentence-transformers",
	"prompt engineering", "prompt tuning", "in-context learning",
	"retrieval augmented generation", "rag", "vector database",
	"chroma", "faiss", "pinecone", "weaviate", "milvus", "semantic search",
	"context window", "embedding models", "peft", "lora", "fine-tuning",

	// 视觉与多模态
	"clip", "blip", "dalle", "stable diffusion", "image generation",
	"vision transformer", "ocr", "image captioning", "multimodal learning",

	// 语音
	"whisper", "text-to-speech", "speech recognition", "audio embeddings",

	// 部署与接口
	"fastapi", "flask", "streamlit", "gradio", "nginx", "vps",
	"api development", "backend development",

	// 负责任 AI
	"responsible ai", "ethical ai", "bias detection", "explainable ai",
	"shap", "lime", "fairness in ai", "ai governance",

	// 进阶主题
	"attention mechanism", "sequence modeling", "transformer models",
	"feature store", "data pipelines", "etl", "causal inference",
	"model quantization", "gpu inference", "model optimization",
}

var (
	skillNormalizePattern = regexp.MustCompile(`[^a-z0-9\s+#\-/]`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
	skillSeparatorPattern = regexp.MustCompile(`[\s_\-/]+`)
)

// SkillMatch 单个技能及其出现次数
type SkillMatch struct {
	Skill       string `json:"skill"`
	Occurrences int    `json:"occurrences"`
}

// SkillMatcher 基于固定词表的技能抽取器，大小写不敏感，容忍标点与连接符差异
type SkillMatcher struct {
	canonical map[string]string // 小写技能 -> 规范名
	loose     map[string]string // 分隔符折叠后的技能 -> 规范名
	pattern   *regexp2.Regexp
}

// NewSkillMatcher 使用给定词表创建匹配器，词表为空时使用 DefaultSkills
func NewSkillMatcher(skills []string) (*SkillMatcher, error) {
	if len(skills) == 0 {
		skills = DefaultSkills
	}

	seen := make(map[string]struct{}, len(skills))
	vocab := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		vocab = append(vocab, s)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("技能词表为空")
	}

	m := &SkillMatcher{
		canonical: make(map[string]string, len(vocab)),
		loose:     make(map[string]string, len(vocab)),
	}
	for _, s := range vocab {
		m.canonical[s] = s
		m.loose[looseKey(s)] = s
	}

	pattern, err := regexp2.Compile(buildSkillPattern(vocab), regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("编译技能正则失败: %w", err)
	}
	m.pattern = pattern
	return m, nil
}

// buildSkillPattern 最长优先的候选分支，多词技能允许空白、下划线、连字符或斜杠分隔
func buildSkillPattern(vocab []string) string {
	ordered := append([]string(nil), vocab...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})

	alts := make([]string, len(ordered))
	for i, s := range ordered {
		words := strings.Fields(s)
		for j, w := range words {
			words[j] = regexp2.Escape(w)
		}
		alts[i] = strings.Join(words, `[\s_\-/]+`)
	}
	return `(?<!\w)(` + strings.Join(alts, "|") + `)(?!\w)`
}

func looseKey(s string) string {
	return skillSeparatorPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func normalizeSkillText(text string) string {
	text = strings.ToLower(text)
	text = skillNormalizePattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Extract 返回文本中出现的技能，按出现次数降序、技能名升序
func (m *SkillMatcher) Extract(text string) []SkillMatch {
	normalized := normalizeSkillText(text)
	if normalized == "" {
		return nil
	}

	counts := make(map[string]int)
	match, err := m.pattern.FindStringMatch(normalized)
	for err == nil && match != nil {
		key := strings.TrimSpace(strings.ToLower(match.GroupByNumber(1).String()))
		counts[m.canonicalize(key)]++
		match, err = m.pattern.FindNextMatch(match)
	}

	out := make([]SkillMatch, 0, len(counts))
	for skill, n := range counts {
		out = append(out, SkillMatch{Skill: skill, Occurrences: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Skill < out[j].Skill
	})
	return out
}

// UniqueSkills 返回去重后按字母序排列的技能集合
func (m *SkillMatcher) UniqueSkills(text string) []string {
	matches := m.Extract(text)
	skills := make([]string, len(matches))
	for i, sm := range matches {
		skills[i] = sm.Skill
	}
	sort.Strings(skills)
	return skills
}

func (m *SkillMatcher) canonicalize(key string) string {
	if c, ok := m.canonical[key]; ok {
		return c
	}
	if c, ok := m.loose[looseKey(key)]; ok {
		return c
	}
	return key
}
