package models

import (
	"time"
)

// DocumentStatus is the processing lifecycle of an uploaded PDF.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the four known states.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentProcessing, DocumentCompleted, DocumentFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// Metadata keys written by the extractor.
const (
	MetaTitle            = "title"
	MetaAuthor           = "author"
	MetaSubject          = "subject"
	MetaCreator          = "creator"
	MetaProducer         = "producer"
	MetaCreationDate     = "creation_date"
	MetaModificationDate = "modification_date"
)

// MetadataKeys lists every key present in an extracted metadata map.
var MetadataKeys = []string{
	MetaTitle,
	MetaAuthor,
	MetaSubject,
	MetaCreator,
	MetaProducer,
	MetaCreationDate,
	MetaModificationDate,
}

// Document is one uploaded PDF and its processing outcome.
type Document struct {
	ID                    string            `json:"id"`
	Title                 string            `json:"title"`
	FileReference         string            `json:"fileReference"`
	FileSize              int64             `json:"fileSize"`
	UploadTime            time.Time         `json:"uploadTime"`
	Status                DocumentStatus    `json:"status"`
	ProcessingStartedAt   *time.Time        `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt *time.Time        `json:"processingCompletedAt,omitempty"`
	ErrorMessage          *string           `json:"errorMessage,omitempty"`
	ExtractedText         *string           `json:"extractedText,omitempty"`
	PageCount             *int              `json:"pageCount,omitempty"`
	Metadata              map[string]string `json:"metadata"`
	Version               int64             `json:"-"`
}

// NewDocument returns a pending document stamped with uploadTime.
func NewDocument(id, title, fileReference string, fileSize int64, uploadTime time.Time) *Document {
	return &Document{
		ID:            id,
		Title:         title,
		FileReference: fileReference,
		FileSize:      fileSize,
		UploadTime:    uploadTime.UTC(),
		Status:        DocumentPending,
		Metadata:      make(map[string]string),
	}
}

// MarkProcessing moves the document into processing.
func (d *Document) MarkProcessing(at time.Time) {
	at = at.UTC()
	d.Status = DocumentProcessing
	d.ProcessingStartedAt = &at
	d.ProcessingCompletedAt = nil
	d.ErrorMessage = nil
	d.clearContent()
}

// MarkCompleted stores the extraction and moves the document into completed.
func (d *Document) MarkCompleted(e *Extraction, at time.Time) {
	at = at.UTC()
	text := e.Text
	pages := e.PageCount
	d.Status = DocumentCompleted
	d.ExtractedText = &text
	d.PageCount = &pages
	d.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		d.Metadata[k] = v
	}
	d.ErrorMessage = nil
	d.ProcessingCompletedAt = &at
}

// MarkFailed records msg and moves the document into failed.
func (d *Document) MarkFailed(msg string) {
	d.Status = DocumentFailed
	d.ErrorMessage = &msg
	d.clearContent()
}

func (d *Document) clearContent() {
	d.ExtractedText = nil
	d.PageCount = nil
	d.Metadata = make(map[string]string)
}

// ProcessingDuration is completed minus started, zero until both are set.
func (d *Document) ProcessingDuration() time.Duration {
	if d.ProcessingStartedAt == nil || d.ProcessingCompletedAt == nil {
		return 0
	}
	return d.ProcessingCompletedAt.Sub(*d.ProcessingStartedAt)
}

// Extraction is what the extractor returns for one PDF.
type Extraction struct {
	Text      string            `json:"text"`
	PageCount int               `json:"pageCount"`
	Metadata  map[string]string `json:"metadata"`
	Method    string            `json:"method"`
}

// EmptyMetadata returns a map holding every metadata key with an empty value.
func EmptyMetadata() map[string]string {
	m := make(map[string]string, len(MetadataKeys))
	for _, k := range MetadataKeys {
		m[k] = ""
	}
	return m
}
