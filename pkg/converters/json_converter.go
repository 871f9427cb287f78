package converters

import (
	"time"

	"github.com/feichai0017/pdf-processor/internal/models"
)

// StatusView is the body of the document status endpoint.
type StatusView struct {
	DocumentID            string     `json:"document_id"`
	Title                 string     `json:"title"`
	ProcessingStatus      string     `json:"processing_status"`
	UploadDate            time.Time  `json:"upload_date"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at"`
	ErrorMessage          *string    `json:"error_message"`
	PageCount             *int       `json:"page_count"`
	FileSize              int64      `json:"file_size"`
	TaskID                string     `json:"task_id,omitempty"`
	TaskStatus            string     `json:"task_status,omitempty"`
	TaskCreatedAt         *time.Time `json:"task_created_at,omitempty"`
	TaskUpdatedAt         *time.Time `json:"task_updated_at,omitempty"`
}

// ContentView is the body of the document content endpoint.
type ContentView struct {
	DocumentID            string            `json:"document_id"`
	Title                 string            `json:"title"`
	ExtractedText         string            `json:"extracted_text"`
	PageCount             int               `json:"page_count"`
	Metadata              map[string]string `json:"metadata"`
	ProcessingCompletedAt *time.Time        `json:"processing_completed_at"`
}

// SummaryView is one entry of the document list.
type SummaryView struct {
	DocumentID       string    `json:"document_id"`
	Title            string    `json:"title"`
	ProcessingStatus string    `json:"processing_status"`
	UploadDate       time.Time `json:"upload_date"`
	FileSize         int64     `json:"file_size"`
	PageCount        *int      `json:"page_count"`
	ErrorMessage     *string   `json:"error_message"`
	TaskID           string    `json:"task_id,omitempty"`
	TaskStatus       string    `json:"task_status,omitempty"`
}

// ListView is the body of the document list endpoint.
type ListView struct {
	Documents  []SummaryView `json:"documents"`
	TotalCount int           `json:"total_count"`
}

// TaskView is the body of the task status endpoint.
type TaskView struct {
	TaskID        string                 `json:"task_id"`
	TaskName      string                 `json:"task_name"`
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Result        map[string]interface{} `json:"result"`
	Error         *string                `json:"error"`
	DocumentID    string                 `json:"document_id"`
	DocumentTitle string                 `json:"document_title"`
}

// JSONConverter maps models onto the API response bodies.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

// Status builds the status body; task may be nil.
func (c *JSONConverter) Status(doc *models.Document, task *models.Task) StatusView {
	view := StatusView{
		DocumentID:            doc.ID,
		Title:                 doc.Title,
		ProcessingStatus:      string(doc.Status),
		UploadDate:            doc.UploadTime,
		ProcessingStartedAt:   doc.ProcessingStartedAt,
		ProcessingCompletedAt: doc.ProcessingCompletedAt,
		ErrorMessage:          doc.ErrorMessage,
		PageCount:             doc.PageCount,
		FileSize:              doc.FileSize,
	}
	if task != nil {
		created, updated := task.CreatedAt, task.UpdatedAt
		view.TaskID = task.TaskID
		view.TaskStatus = string(task.Status)
		view.TaskCreatedAt = &created
		view.TaskUpdatedAt = &updated
	}
	return view
}

func (c *JSONConverter) Content(doc *models.Document) ContentView {
	view := ContentView{
		DocumentID:            doc.ID,
		Title:                 doc.Title,
		Metadata:              doc.Metadata,
		ProcessingCompletedAt: doc.ProcessingCompletedAt,
	}
	if doc.ExtractedText != nil {
		view.ExtractedText = *doc.ExtractedText
	}
	if doc.PageCount != nil {
		view.PageCount = *doc.PageCount
	}
	if view.Metadata == nil {
		view.Metadata = models.EmptyMetadata()
	}
	return view
}

func (c *JSONConverter) Summary(doc *models.Document, task *models.Task) SummaryView {
	view := SummaryView{
		DocumentID:       doc.ID,
		Title:            doc.Title,
		ProcessingStatus: string(doc.Status),
		UploadDate:       doc.UploadTime,
		FileSize:         doc.FileSize,
		PageCount:        doc.PageCount,
		ErrorMessage:     doc.ErrorMessage,
	}
	if task != nil {
		view.TaskID = task.TaskID
		view.TaskStatus = string(task.Status)
	}
	return view
}

func (c *JSONConverter) Task(task *models.Task, documentTitle string) TaskView {
	result := task.Result
	if result == nil {
		result = make(map[string]interface{})
	}
	return TaskView{
		TaskID:        task.TaskID,
		TaskName:      task.Name,
		Status:        string(task.Status),
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
		Result:        result,
		Error:         task.Error,
		DocumentID:    task.DocumentID,
		DocumentTitle: documentTitle,
	}
}
