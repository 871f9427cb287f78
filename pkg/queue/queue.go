// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskType 定义任务类型
const (
	TaskTypePDFProcess       = "pdf:process"
	TaskTypeDocumentsCleanup = "documents:cleanup"
)

// ErrTaskNotFound is returned when the broker has no record of a task.
var ErrTaskNotFound = errors.New("task not found in queue")

// Dispatcher hands a document to the background processor.
type Dispatcher interface {
	// DispatchProcessing enqueues processing of documentID and returns the
	// task id the worker will record the run under.
	DispatchProcessing(ctx context.Context, documentID string) (string, error)
}

// Inspector reports on dispatched tasks the worker has not picked up yet.
type Inspector interface {
	PendingTask(ctx context.Context, taskID string) (*PendingTask, error)
}

// ProcessPayload is the body of a pdf:process task.
type ProcessPayload struct {
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
}

// PendingTask 定义排队中的任务
type PendingTask struct {
	TaskID        string
	DocumentID    string
	State         string
	NextProcessAt time.Time
}

// untimedRunTimeout is the asynq timeout used when ProcessTimeout is zero.
const untimedRunTimeout = 24 * time.Hour

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	// ProcessTimeout bounds one run inside the worker. Zero disables the
	// extraction timeout; the asynq task is then capped at untimedRunTimeout.
	ProcessTimeout time.Duration
}

// RedisOpt returns the asynq connection options for cfg.
func (cfg *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	queue     string
	timeout   time.Duration
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) *AsynqQueue {
	redisOpt := cfg.RedisOpt()

	// 创建 Redis 客户端
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	queueName := cfg.Queue
	if queueName == "" {
		queueName = "default"
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		queue:     queueName,
		timeout:   cfg.ProcessTimeout,
	}
}

// NewProcessTask builds the pdf:process task for documentID under taskID.
func NewProcessTask(documentID, taskID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessPayload{DocumentID: documentID, TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypePDFProcess, payload), nil
}

// ParseProcessPayload decodes the body of a pdf:process task.
func ParseProcessPayload(data []byte) (*ProcessPayload, error) {
	var p ProcessPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.DocumentID == "" {
		return nil, fmt.Errorf("invalid payload: missing document_id")
	}
	return &p, nil
}

// NewCleanupTask builds the periodic retention cleanup task.
func NewCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeDocumentsCleanup, nil)
}

// DispatchProcessing 将文档处理任务加入队列
func (q *AsynqQueue) DispatchProcessing(ctx context.Context, documentID string) (string, error) {
	taskID := uuid.New().String()

	t, err := NewProcessTask(documentID, taskID)
	if err != nil {
		return "", err
	}

	if _, err := q.client.EnqueueContext(ctx, t, q.processOptions(taskID)...); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return taskID, nil
}

// processOptions builds the enqueue options for one processing run.
func (q *AsynqQueue) processOptions(taskID string) []asynq.Option {
	// asynq applies a 30 minute timeout to any task enqueued without one,
	// so an unbounded extraction still needs an explicit ceiling here
	timeout := untimedRunTimeout
	if q.timeout > 0 {
		timeout = q.timeout + time.Minute
	}

	// no automatic retry: a failed run is recorded on the document
	return []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Queue(q.queue),
		asynq.TaskID(taskID),
		asynq.Timeout(timeout),
	}
}

// PendingTask 获取排队中的任务
func (q *AsynqQueue) PendingTask(ctx context.Context, taskID string) (*PendingTask, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to inspect task: %w", err)
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateActive:
	default:
		// finished tasks are answered from the database
		return nil, ErrTaskNotFound
	}

	pending := &PendingTask{
		TaskID:        info.ID,
		State:         info.State.String(),
		NextProcessAt: info.NextProcessAt,
	}
	if p, err := ParseProcessPayload(info.Payload); err == nil {
		pending.DocumentID = p.DocumentID
	}
	return pending, nil
}

// Ping 检查 Redis 连接
func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}
