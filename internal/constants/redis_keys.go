package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// EmbeddingModulePrefix 向量化模块
	EmbeddingModulePrefix = "embedding"

	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyEmbeddingVector 文本向量缓存 (HASH: vector, model_version)
	// 格式: app:embedding:vector:{uuidv5(model|text)}
	KeyEmbeddingVector = AppPrefix + ":" + EmbeddingModulePrefix + ":" + EntityVector + ":%s"
)

// 消息与事件相关常量
const (
	// EventJobsUpdated 岗位变更事件，消费者收到后触发重建索引
	EventJobsUpdated = "jobs.updated"

	// OutboxStatusPending 等待发布
	OutboxStatusPending = "PENDING"
	// OutboxStatusSent 已发布
	OutboxStatusSent = "SENT"
	// OutboxStatusFailed 超过重试次数
	OutboxStatusFailed = "FAILED"

	// JobStatusActive 参与匹配的岗位状态
	JobStatusActive = "ACTIVE"
)
