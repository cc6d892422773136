package storage

import "time"

// JobsUpdatedMessage 岗位数据变更事件，消费方据此重建索引
type JobsUpdatedMessage struct {
	EventID   string    `json:"event_id"`
	JobIDs    []string  `json:"job_ids,omitempty"` // 本次变更涉及的岗位
	Reason    string    `json:"reason,omitempty"`  // upsert / manual
	UpdatedAt time.Time `json:"updated_at"`
}
