// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/feichai0017/pdf-processor/pkg/logger"
)

const (
	CodeNoFile          = "NO_FILE"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
)

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// Err returns the first validation error, or nil for a valid file.
func (r *ValidationResult) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	err := r.Errors[0]
	return &err
}

// DefaultConfig accepts PDF files up to maxFileSize bytes.
func DefaultConfig(maxFileSize int64) *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: maxFileSize,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig(10 * 1024 * 1024) // 10MB
	}

	return &DocumentValidator{
		logger: log,
		config: config,
	}
}

// ValidateFile 验证单个文件
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	if file == nil {
		return &ValidationResult{
			Errors: []ValidationError{{Code: CodeNoFile, Message: "No file provided", Field: "file"}},
		}, nil
	}

	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	// 基本验证
	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	// 打开文件
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	mimeType, err := v.detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	// 计算文件哈希
	hash, err := v.calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	// the extractor decides whether the content is usable, so a mismatch is
	// only reported
	if !v.mimeAllowed(result.FileInfo) {
		v.logger.Warn("Uploaded file content does not look like its extension",
			logger.String("filename", file.Filename),
			logger.String("mimeType", mimeType),
		)
	}

	return result, nil
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errors []ValidationError

	// 检查文件扩展名
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errors = append(errors, ValidationError{
			Code:    CodeInvalidFileType,
			Message: "Only PDF files are allowed",
			Field:   "extension",
		})
	}

	// 检查文件大小
	if fileInfo.Size <= 0 {
		errors = append(errors, ValidationError{
			Code:    CodeEmptyFile,
			Message: "File is empty",
			Field:   "size",
		})
	} else if fileInfo.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("File size exceeds %.1fMB limit", float64(v.config.MaxFileSize)/(1024*1024)),
			Field:   "size",
		})
	}

	return errors
}

func (v *DocumentValidator) mimeAllowed(fileInfo FileInfo) bool {
	for _, mime := range v.config.AllowedTypes[fileInfo.Extension] {
		if mime == fileInfo.MimeType {
			return true
		}
	}
	return false
}

// 检测MIME类型
func (v *DocumentValidator) detectMimeType(file multipart.File) (string, error) {
	// 读取文件头部
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	// 重置文件指针
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return http.DetectContentType(buffer[:n]), nil
}

// 计算文件哈希
func (v *DocumentValidator) calculateHash(file multipart.File) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
