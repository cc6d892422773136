package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"
	"resume-match-go/internal/vectorindex"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var engineTracer = otel.Tracer("resume-match-go/matching")

// Embedder 文本向量化接口，与 eino embedding.Embedder 签名一致。
// 返回的行与输入顺序一致，同一实例的维度固定。
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
}

// TextCleaner 纯函数式文本清洗
type TextCleaner interface {
	Clean(text string) string
}

// SkillMatcher 从文本中抽取规范化技能
type SkillMatcher interface {
	UniqueSkills(text string) []string
}

// ExperienceEstimator 从文本中估计工作年限
type ExperienceEstimator interface {
	EstimateYears(text string) float64
}

// generation 一次 IndexJobs 产生的完整语料状态，发布后只读
type generation struct {
	id        uint64
	index     *vectorindex.FlatIndex
	postings  []types.JobPosting
	byID      map[string]*types.JobPosting
	indexedAt time.Time
}

// Engine 岗位匹配引擎。
// IndexJobs 串行执行，并在新一代数据完全构建好之后才替换当前代；
// Recommend 只在读锁下取得当前代的引用，之后的计算不持有锁。
type Engine struct {
	embedder   Embedder
	cleaner    TextCleaner
	skills     SkillMatcher
	experience ExperienceEstimator
	weights    Weights
	logger     zerolog.Logger

	indexMu sync.Mutex // 串行化 IndexJobs

	mu      sync.RWMutex
	current *generation
	nextGen uint64
}

// Option Engine 的配置选项
type Option func(*Engine)

// WithLogger 配置日志记录器
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWeights 覆盖默认权重，全零时保持默认
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		if !w.IsZero() {
			e.weights = w
		}
	}
}

// NewEngine 创建匹配引擎，初始为空状态
func NewEngine(embedder Embedder, cleaner TextCleaner, skills SkillMatcher, experience ExperienceEstimator, opts ...Option) (*Engine, error) {
	if embedder == nil || cleaner == nil || skills == nil || experience == nil {
		return nil, errors.New("embedder、cleaner、skills、experience 均不能为空")
	}
	e := &Engine{
		embedder:   embedder,
		cleaner:    cleaner,
		skills:     skills,
		experience: experience,
		weights:    DefaultWeights(),
		logger:     logger.Component("matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Weights 返回当前使用的权重
func (e *Engine) Weights() Weights {
	return e.weights
}

// IndexJobs 以替换全部的方式重建索引。
// 先清洗并批量向量化所有描述、在旁路构建新索引，全部成功后才替换当前代；
// 任何一步失败时当前代保持不变。空批次合法，结果为空状态。
func (e *Engine) IndexJobs(ctx context.Context, postings []types.JobPosting) error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	ctx, span := engineTracer.Start(ctx, "Matching.IndexJobs",
		trace.WithAttributes(attribute.Int("matching.jobs", len(postings))))
	defer span.End()

	start := time.Now()
	gen := &generation{
		index:    vectorindex.New(),
		postings: make([]types.JobPosting, len(postings)),
		byID:     make(map[string]*types.JobPosting, len(postings)),
	}
	ids := make([]string, len(postings))
	texts := make([]string, len(postings))
	for i := range postings {
		gen.postings[i] = clonePosting(postings[i])
		ids[i] = postings[i].JobID
		texts[i] = e.cleaner.Clean(postings[i].Description)
	}

	if len(postings) > 0 {
		vectors, err := e.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			err = newEmbeddingError("index_jobs", err, "")
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			return err
		}
		if len(vectors) != len(postings) {
			err = newEmbeddingError("index_jobs", nil, fmt.Sprintf("返回 %d 个向量，期望 %d 个", len(vectors), len(postings)))
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			return err
		}
		if err := gen.index.AddItems(toFloat32Rows(vectors), ids); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorIndex)
			return fmt.Errorf("写入向量索引失败: %w", err)
		}
		if gen.index.Len() != len(gen.postings) {
			err := newConsistencyError("index_jobs", "", nil,
				fmt.Sprintf("向量数 %d 与岗位数 %d 不一致", gen.index.Len(), len(gen.postings)))
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
			return err
		}
	}

	// 重复的 job_id 以最后一次出现为准
	for i := range gen.postings {
		gen.byID[gen.postings[i].JobID] = &gen.postings[i]
	}
	gen.indexedAt = time.Now()

	e.mu.Lock()
	e.nextGen++
	gen.id = e.nextGen
	e.current = gen
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Int64("matching.generation", int64(gen.id)),
		attribute.Int("matching.dimension", gen.index.Dimension()),
	)
	e.logger.Info().
		Uint64("generation", gen.id).
		Int("jobs", len(gen.postings)).
		Int("dimension", gen.index.Dimension()).
		Dur("took", time.Since(start)).
		Msg("岗位索引已更新")
	return nil
}

// Recommend 为简历返回按混合分数降序排列的岗位推荐
func (e *Engine) Recommend(ctx context.Context, resumeText string, topK int, resumeYears float64) ([]types.Recommendation, error) {
	ctx, span := engineTracer.Start(ctx, "Matching.Recommend",
		trace.WithAttributes(
			attribute.Int("matching.top_k", topK),
			attribute.Float64("matching.resume_years", resumeYears),
		))
	defer span.End()

	recs, err := e.recommend(ctx, span, resumeText, topK, resumeYears)
	if err != nil {
		errType := tracing.ErrorTypeInternal
		switch {
		case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrEmptyIndex):
			errType = tracing.ErrorTypeValidation
		case errors.Is(err, context.DeadlineExceeded):
			errType = tracing.ErrorTypeTimeout
		case errors.Is(err, ErrEmbedding):
			errType = tracing.ErrorTypeEmbedding
		}
		tracing.RecordError(span, err, errType)
		return nil, err
	}
	span.SetAttributes(attribute.Int("matching.results", len(recs)))
	return recs, nil
}

// RecommendWithEstimatedExperience 从简历文本估计工作年限后再推荐
func (e *Engine) RecommendWithEstimatedExperience(ctx context.Context, resumeText string, topK int) ([]types.Recommendation, float64, error) {
	years := e.experience.EstimateYears(resumeText)
	recs, err := e.Recommend(ctx, resumeText, topK, years)
	return recs, years, err
}

func (e *Engine) recommend(ctx context.Context, span trace.Span, resumeText string, topK int, resumeYears float64) ([]types.Recommendation, error) {
	if topK <= 0 {
		return nil, newInvalidArgument("recommend", "top_k 必须为正数，实际为 %d", topK)
	}
	if strings.TrimSpace(resumeText) == "" {
		return nil, newInvalidArgument("recommend", "简历文本不能为空")
	}
	if resumeYears < 0 {
		return nil, newInvalidArgument("recommend", "工作年限不能为负数，实际为 %.1f", resumeYears)
	}

	gen := e.snapshot()
	if gen == nil || gen.index.Len() == 0 {
		return nil, &MatchError{Op: "recommend", BaseErr: ErrEmptyIndex}
	}
	span.SetAttributes(attribute.Int64("matching.generation", int64(gen.id)))

	// 查询侧使用与索引侧相同的清洗规则
	vectors, err := e.embedder.EmbedStrings(ctx, []string{e.cleaner.Clean(resumeText)})
	if err != nil {
		return nil, newEmbeddingError("recommend", err, "")
	}
	if len(vectors) != 1 {
		return nil, newEmbeddingError("recommend", nil, fmt.Sprintf("返回 %d 个向量，期望 1 个", len(vectors)))
	}

	hits, err := gen.index.Search(toFloat32Rows(vectors), topK)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	// 技能从原始文本抽取，清洗可能去掉技能名里的符号
	resumeSkills := SkillSet(e.skills.UniqueSkills(resumeText))

	recs := make([]types.Recommendation, 0, len(hits[0]))
	for _, hit := range hits[0] {
		jobID, err := gen.index.GetPayload(hit.Slot)
		if err != nil {
			return nil, newConsistencyError("recommend", "", err, fmt.Sprintf("槽位 %d 无负载", hit.Slot))
		}
		job, ok := gen.byID[jobID]
		if !ok {
			return nil, newConsistencyError("recommend", jobID, nil, "检索到的岗位不在当前岗位集合中")
		}

		semantic := float64(hit.Score)
		skillScore, matched := SkillScore(job.Skills, resumeSkills)
		expScore := ExperienceScore(resumeYears, job.MinYearsExperience)

		posting := clonePosting(*job)
		recs = append(recs, types.Recommendation{
			Job:             &posting,
			Score:           e.weights.Blend(semantic, skillScore, expScore),
			SemanticScore:   semantic,
			SkillScore:      skillScore,
			ExperienceScore: expScore,
			MatchedSkills:   matched,
		})
	}

	// 检索顺序只反映语义相似度，混合分数可能改变排序
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})

	e.logger.Debug().
		Uint64("generation", gen.id).
		Int("top_k", topK).
		Int("results", len(recs)).
		Int("resume_skills", len(resumeSkills)).
		Str("resume_preview", tracing.SafeResumeContent(resumeText)).
		Msg("推荐完成")
	return recs, nil
}

// Status 返回当前索引代的概况
func (e *Engine) Status() types.IndexStatus {
	gen := e.snapshot()
	if gen == nil {
		return types.IndexStatus{}
	}
	return types.IndexStatus{
		Generation: gen.id,
		JobCount:   len(gen.postings),
		Dimension:  gen.index.Dimension(),
		IndexedAt:  gen.indexedAt,
	}
}

// Job 按 ID 查找当前代中的岗位
func (e *Engine) Job(jobID string) (types.JobPosting, bool) {
	gen := e.snapshot()
	if gen == nil {
		return types.JobPosting{}, false
	}
	job, ok := gen.byID[jobID]
	if !ok {
		return types.JobPosting{}, false
	}
	return clonePosting(*job), true
}

// JobAt 返回当前代第 slot 个岗位的 ID，与向量索引槽位一一对应
func (e *Engine) JobAt(slot int) (string, error) {
	gen := e.snapshot()
	if gen == nil {
		return "", &MatchError{Op: "job_at", BaseErr: ErrEmptyIndex}
	}
	return gen.index.GetPayload(slot)
}

func (e *Engine) snapshot() *generation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func clonePosting(p types.JobPosting) types.JobPosting {
	p.Skills = append([]string(nil), p.Skills...)
	p.Tags = append([]string(nil), p.Tags...)
	if p.PostedDate != nil {
		d := *p.PostedDate
		p.PostedDate = &d
	}
	return p
}

func toFloat32Rows(rows [][]float64) [][]float32 {
	out := make([][]float32, len(rows))
	for i, row := range rows {
		r := make([]float32, len(row))
		for j, v := range row {
			r[j] = float32(v)
		}
		out[i] = r
	}
	return out
}
