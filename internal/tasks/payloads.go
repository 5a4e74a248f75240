package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeVectorIndex = "vector:index"
	TypeVectorSync  = "vector:sync"
)

// VectorIndexPayload 新建向量集后的索引任务。
type VectorIndexPayload struct {
	VectorID  string `json:"vector_id"`
	TaskID    string `json:"task_id"`
	RequestID string `json:"request_id"`
}

// VectorSyncPayload 定时同步任务。
type VectorSyncPayload struct {
	VectorID  string `json:"vector_id"`
	RequestID string `json:"request_id"`
}

// NewVectorIndexTask 构造索引任务。
func NewVectorIndexTask(vectorID, taskID, requestID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VectorIndexPayload{
		VectorID:  vectorID,
		TaskID:    taskID,
		RequestID: requestID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVectorIndex, payload, asynq.MaxRetry(3)), nil
}

// NewVectorSyncTask 构造同步任务。
func NewVectorSyncTask(vectorID, requestID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VectorSyncPayload{
		VectorID:  vectorID,
		RequestID: requestID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVectorSync, payload, asynq.MaxRetry(1)), nil
}
