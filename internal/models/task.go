package models

import "time"

// TaskStatus is the state of one processing attempt.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskSuccess    TaskStatus = "SUCCESS"
	TaskFailure    TaskStatus = "FAILURE"
)

// TaskNameProcessDocument names the orchestrator run on task rows.
const TaskNameProcessDocument = "process_pdf_document"

// Result keys written on a successful task.
const (
	ResultPageCount      = "page_count"
	ResultTextLength     = "text_length"
	ResultProcessingTime = "processing_time"
)

// Task is one asynchronous processing attempt tied to a document.
type Task struct {
	TaskID     string                 `json:"taskId"`
	DocumentID string                 `json:"documentId"`
	Name       string                 `json:"taskName"`
	Status     TaskStatus             `json:"status"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	Result     map[string]interface{} `json:"result"`
	Error      *string                `json:"error,omitempty"`
}

// NewTask returns a task in processing state owned by documentID.
func NewTask(taskID, documentID string, at time.Time) *Task {
	at = at.UTC()
	return &Task{
		TaskID:     taskID,
		DocumentID: documentID,
		Name:       TaskNameProcessDocument,
		Status:     TaskProcessing,
		CreatedAt:  at,
		UpdatedAt:  at,
		Result:     make(map[string]interface{}),
	}
}

// MarkSuccess stores result and moves the task into SUCCESS.
func (t *Task) MarkSuccess(result map[string]interface{}, at time.Time) {
	t.Status = TaskSuccess
	t.Result = result
	t.Error = nil
	t.UpdatedAt = at.UTC()
}

// MarkFailure records msg and moves the task into FAILURE.
func (t *Task) MarkFailure(msg string, at time.Time) {
	t.Status = TaskFailure
	t.Error = &msg
	t.UpdatedAt = at.UTC()
}
