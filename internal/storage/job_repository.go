package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"resume-match-go/internal/constants"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxAggregateIDLength 与 outbox_messages.aggregate_id 列宽一致
const maxAggregateIDLength = 64

// JobRepository 读写 jobs 表，并在同一事务中写入 outbox 事件
type JobRepository struct {
	db         *gorm.DB
	exchange   string
	routingKey string
}

// NewJobRepository 创建岗位仓库。exchange/routingKey 决定 outbox 事件的投递目标。
func NewJobRepository(db *gorm.DB, exchange, routingKey string) *JobRepository {
	if routingKey == "" {
		routingKey = constants.EventJobsUpdated
	}
	return &JobRepository{db: db, exchange: exchange, routingKey: routingKey}
}

// ListActive 返回全部 ACTIVE 岗位，按 job_id 排序保证索引顺序稳定
func (r *JobRepository) ListActive(ctx context.Context) ([]types.JobPosting, error) {
	var rows []models.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", constants.JobStatusActive).
		Order("job_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	postings := make([]types.JobPosting, 0, len(rows))
	for i := range rows {
		p, err := rows[i].ToPosting()
		if err != nil {
			return nil, fmt.Errorf("解析岗位 %s 失败: %w", rows[i].JobID, err)
		}
		postings = append(postings, p)
	}
	return postings, nil
}

// Count 返回 ACTIVE 岗位数量
func (r *JobRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("status = ?", constants.JobStatusActive).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计岗位失败: %w", err)
	}
	return n, nil
}

// UpsertWithOutbox 写入或更新岗位，并追加一条 jobs.updated 事件。两者同事务提交。
func (r *JobRepository) UpsertWithOutbox(ctx context.Context, postings []types.JobPosting, event JobsUpdatedMessage) error {
	if len(postings) == 0 {
		return fmt.Errorf("岗位列表不能为空")
	}
	if r.exchange == "" {
		return fmt.Errorf("未配置岗位事件 exchange")
	}

	rows := make([]*models.Job, 0, len(postings))
	for i := range postings {
		row, err := models.JobFromPosting(&postings[i], constants.JobStatusActive)
		if err != nil {
			return fmt.Errorf("序列化岗位 %s 失败: %w", postings[i].JobID, err)
		}
		rows = append(rows, row)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("写入岗位失败: %w", err)
		}
		msg := &models.OutboxMessage{
			AggregateID:      aggregateID(event.JobIDs),
			EventType:        constants.EventJobsUpdated,
			Payload:          string(payload),
			TargetExchange:   r.exchange,
			TargetRoutingKey: r.routingKey,
			Status:           constants.OutboxStatusPending,
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("写入 outbox 失败: %w", err)
		}
		return nil
	})
}

// aggregateID 单个岗位用其 ID，多个岗位用首个 ID 加数量。按字符截断到列宽
func aggregateID(jobIDs []string) string {
	var id string
	switch len(jobIDs) {
	case 0:
		return "jobs"
	case 1:
		id = jobIDs[0]
	default:
		id = fmt.Sprintf("%s+%d", jobIDs[0], len(jobIDs)-1)
	}
	return tracing.TruncateString(id, maxAggregateIDLength)
}
