package processor

import (
	"context"
	"io"
	"time"

	"resume-match-go/internal/matching"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/types"
)

// VersionedEmbedder 带模型版本的向量化器，版本参与缓存校验
type VersionedEmbedder interface {
	matching.Embedder
	ModelVersion() string
}

// EmbeddingCache 文本向量缓存，按批读写
type EmbeddingCache interface {
	GetEmbeddings(ctx context.Context, ids []string) ([]storage.CachedEmbedding, error)
	SetEmbeddings(ctx context.Context, entries []storage.EmbeddingEntry, modelVersion string, ttl time.Duration) error
}

// JobIndexer 岗位索引的写入侧
type JobIndexer interface {
	IndexJobs(ctx context.Context, postings []types.JobPosting) error
	Status() types.IndexStatus
}

// Recommender 推荐的读取侧
type Recommender interface {
	Recommend(ctx context.Context, resumeText string, topK int, resumeYears float64) ([]types.Recommendation, error)
	RecommendWithEstimatedExperience(ctx context.Context, resumeText string, topK int) ([]types.Recommendation, float64, error)
}

// JobStore 岗位持久化
type JobStore interface {
	ListActive(ctx context.Context) ([]types.JobPosting, error)
	Count(ctx context.Context) (int64, error)
	UpsertWithOutbox(ctx context.Context, postings []types.JobPosting, event storage.JobsUpdatedMessage) error
}

// JobEnricher 为缺少技能、标签等信息的岗位补全字段
type JobEnricher interface {
	Enrich(job *types.JobPosting)
}

// PDFExtractor PDF 文本提取
type PDFExtractor interface {
	ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string) (string, map[string]interface{}, error)
}

// ResumeArchive 简历原件与文本归档
type ResumeArchive interface {
	ArchiveResume(ctx context.Context, filename string, reader io.Reader, size int64) (string, error)
	ArchiveText(ctx context.Context, prefix, text string) (string, error)
}

var (
	_ EmbeddingCache = (*storage.Redis)(nil)
	_ JobStore       = (*storage.JobRepository)(nil)
	_ ResumeArchive  = (*storage.MinIO)(nil)
	_ JobIndexer     = (*matching.Engine)(nil)
	_ Recommender    = (*matching.Engine)(nil)
)
