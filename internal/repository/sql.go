package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/pdf-processor/internal/dbx"
	"github.com/feichai0017/pdf-processor/internal/models"
)

// SQLRepository stores documents and tasks through database/sql. The queries
// use $N placeholders, which both the pgx and the sqlite drivers accept.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const documentColumns = `id, title, file_reference, file_size, upload_time, status,
	processing_started_at, processing_completed_at, error_message,
	extracted_text, page_count, metadata, version`

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadata, err := encodeJSON(doc.Metadata)
	if err != nil {
		return err
	}
	if doc.Version == 0 {
		doc.Version = 1
	}

	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.FileReference, doc.FileSize, doc.UploadTime.UTC(), string(doc.Status),
		nullTime(doc.ProcessingStartedAt), nullTime(doc.ProcessingCompletedAt), nullString(doc.ErrorMessage),
		nullString(doc.ExtractedText), nullInt(doc.PageCount), metadata, doc.Version)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select document: %w", err)
	}
	return doc, nil
}

func (r *SQLRepository) UpdateDocument(ctx context.Context, doc *models.Document) error {
	metadata, err := encodeJSON(doc.Metadata)
	if err != nil {
		return err
	}

	query := `UPDATE documents SET
			title = $1, file_reference = $2, file_size = $3, status = $4,
			processing_started_at = $5, processing_completed_at = $6, error_message = $7,
			extracted_text = $8, page_count = $9, metadata = $10, version = version + 1
		WHERE id = $11 AND version = $12`
	res, err := r.db.ExecContext(ctx, query,
		doc.Title, doc.FileReference, doc.FileSize, string(doc.Status),
		nullTime(doc.ProcessingStartedAt), nullTime(doc.ProcessingCompletedAt), nullString(doc.ErrorMessage),
		nullString(doc.ExtractedText), nullInt(doc.PageCount), metadata,
		doc.ID, doc.Version)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		doc.Version++
		return nil
	case 0:
		return ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *SQLRepository) DeleteDocument(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete tasks: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *SQLRepository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*models.Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.UploadedBefore.IsZero() {
		args = append(args, filter.UploadedBefore.UTC())
		where = append(where, fmt.Sprintf("upload_time < $%d", len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY upload_time DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const taskColumns = `task_id, document_id, task_name, status, created_at, updated_at, result, error`

func (r *SQLRepository) CreateTask(ctx context.Context, task *models.Task) error {
	result, err := encodeJSON(task.Result)
	if err != nil {
		return err
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		task.TaskID, task.DocumentID, task.Name, string(task.Status),
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(), result, nullString(task.Error))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select task: %w", err)
	}
	return task, nil
}

func (r *SQLRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	result, err := encodeJSON(task.Result)
	if err != nil {
		return err
	}

	query := `UPDATE tasks SET status = $1, updated_at = $2, result = $3, error = $4 WHERE task_id = $5`
	res, err := r.db.ExecContext(ctx, query,
		string(task.Status), task.UpdatedAt.UTC(), result, nullString(task.Error), task.TaskID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) LatestTask(ctx context.Context, documentID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE document_id = $1
		ORDER BY created_at DESC, task_id DESC LIMIT 1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select latest task: %w", err)
	}
	return task, nil
}

func (r *SQLRepository) ListTasks(ctx context.Context, documentID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE document_id = $1 ORDER BY created_at DESC, task_id DESC`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		doc       models.Document
		status    string
		started   sql.NullTime
		completed sql.NullTime
		errMsg    sql.NullString
		text      sql.NullString
		pages     sql.NullInt64
		metadata  []byte
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.FileReference, &doc.FileSize, &doc.UploadTime, &status,
		&started, &completed, &errMsg, &text, &pages, &metadata, &doc.Version)
	if err != nil {
		return nil, err
	}

	doc.Status = models.DocumentStatus(status)
	doc.UploadTime = doc.UploadTime.UTC()
	doc.ProcessingStartedAt = timePtr(started)
	doc.ProcessingCompletedAt = timePtr(completed)
	doc.ErrorMessage = stringPtr(errMsg)
	doc.ExtractedText = stringPtr(text)
	if pages.Valid {
		n := int(pages.Int64)
		doc.PageCount = &n
	}
	doc.Metadata = make(map[string]string)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &doc, nil
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		task   models.Task
		status string
		result []byte
		errMsg sql.NullString
	)
	err := row.Scan(&task.TaskID, &task.DocumentID, &task.Name, &status,
		&task.CreatedAt, &task.UpdatedAt, &result, &errMsg)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	task.Error = stringPtr(errMsg)
	task.Result = make(map[string]interface{})
	if len(result) > 0 {
		if err := json.Unmarshal(result, &task.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return &task, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
