package processor

import (
	"context"
	"time"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobIngestor 把岗位送入匹配索引：直接索引、从存储重建、或写入存储并发出变更事件
type JobIngestor struct {
	indexer  JobIndexer
	enricher JobEnricher
	store    JobStore
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewJobIngestor 创建岗位导入器。store 为 nil 时 Reload/Upsert 返回 ErrNoJobStore。
func NewJobIngestor(indexer JobIndexer, enricher JobEnricher, store JobStore) *JobIngestor {
	return &JobIngestor{
		indexer:  indexer,
		enricher: enricher,
		store:    store,
		validate: validator.New(),
		logger:   logger.Component("job-ingestor"),
	}
}

// HasStore 是否配置了岗位存储
func (j *JobIngestor) HasStore() bool {
	return j.store != nil
}

// StoredJobs 返回存储中 ACTIVE 岗位的数量
func (j *JobIngestor) StoredJobs(ctx context.Context) (int64, error) {
	if j.store == nil {
		return 0, newProcessError("count", "", ErrNoJobStore, nil, "")
	}
	return j.store.Count(ctx)
}

// Index 补全后直接替换当前索引，不落库
func (j *JobIngestor) Index(ctx context.Context, postings []types.JobPosting) (types.IndexStatus, error) {
	prepared, err := j.prepare("index", postings, false)
	if err != nil {
		return types.IndexStatus{}, err
	}
	if err := j.indexer.IndexJobs(ctx, prepared); err != nil {
		return types.IndexStatus{}, err
	}
	return j.indexer.Status(), nil
}

// Reload 从存储读取全部 ACTIVE 岗位并重建索引
func (j *JobIngestor) Reload(ctx context.Context) (types.IndexStatus, error) {
	if j.store == nil {
		return types.IndexStatus{}, newProcessError("reload", "", ErrNoJobStore, nil, "")
	}

	start := time.Now()
	postings, err := j.store.ListActive(ctx)
	if err != nil {
		return types.IndexStatus{}, err
	}
	for i := range postings {
		j.enrich(&postings[i])
	}
	if err := j.indexer.IndexJobs(ctx, postings); err != nil {
		return types.IndexStatus{}, err
	}

	status := j.indexer.Status()
	j.logger.Info().
		Int("jobs", status.JobCount).
		Uint64("generation", status.Generation).
		Dur("took", time.Since(start)).
		Msg("已从存储重建岗位索引")
	return status, nil
}

// Upsert 补全后写入存储，并在同一事务内记录 jobs.updated 事件，返回事件 ID。
// 索引本身由事件消费方重建。
func (j *JobIngestor) Upsert(ctx context.Context, postings []types.JobPosting) (string, error) {
	if j.store == nil {
		return "", newProcessError("upsert", "", ErrNoJobStore, nil, "")
	}
	prepared, err := j.prepare("upsert", postings, true)
	if err != nil {
		return "", err
	}

	ids := make([]string, len(prepared))
	for i := range prepared {
		ids[i] = prepared[i].JobID
	}
	event := storage.JobsUpdatedMessage{
		EventID:   uuid.NewString(),
		JobIDs:    ids,
		Reason:    "upsert",
		UpdatedAt: time.Now().UTC(),
	}
	if err := j.store.UpsertWithOutbox(ctx, prepared, event); err != nil {
		return "", err
	}

	j.logger.Info().Str("event_id", event.EventID).Int("jobs", len(prepared)).Msg("岗位已写入并记录变更事件")
	return event.EventID, nil
}

// prepare 校验并复制岗位，补全缺失字段。
// 直接索引时重复 ID 以最后一个为准；落库时重复 ID 视为无效输入。
func (j *JobIngestor) prepare(op string, postings []types.JobPosting, uniqueIDs bool) ([]types.JobPosting, error) {
	if len(postings) == 0 {
		return nil, newProcessError(op, "", ErrInvalidJobs, nil, "岗位列表为空")
	}

	seen := make(map[string]struct{}, len(postings))
	out := make([]types.JobPosting, len(postings))
	for i, p := range postings {
		if err := j.validate.Struct(p); err != nil {
			return nil, newProcessError(op, "", ErrInvalidJobs, err, "第 %d 个岗位", i)
		}
		if _, dup := seen[p.JobID]; dup && uniqueIDs {
			return nil, newProcessError(op, "", ErrInvalidJobs, nil, "岗位 ID 重复: %s", p.JobID)
		}
		seen[p.JobID] = struct{}{}
		out[i] = p
		j.enrich(&out[i])
	}
	return out, nil
}

func (j *JobIngestor) enrich(p *types.JobPosting) {
	if j.enricher != nil {
		j.enricher.Enrich(p)
	}
}
