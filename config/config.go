package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/pdf-processor/pkg/logger"
)

var (
	appOnce   sync.Once
	appConfig *Config
	appErr    error
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Upload     UploadConfig     `yaml:"upload"`
	Processing ProcessingConfig `yaml:"processing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
	ErrorPaths  []string `yaml:"error_paths"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	// Type is one of local, minio, s3, gcs.
	Type  string      `yaml:"type"`
	Local LocalConfig `yaml:"local"`
	Minio MinioConfig `yaml:"minio"`
	S3    S3Config    `yaml:"s3"`
	GCS   GCSConfig   `yaml:"gcs"`
}

type LocalConfig struct {
	Dir string `yaml:"dir"`
}

type UploadConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

type ProcessingConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	ExtractionTimeout time.Duration `yaml:"extraction_timeout"`
	Retention         time.Duration `yaml:"retention"`
	CleanupCron       string        `yaml:"cleanup_cron"`
	Queue             string        `yaml:"queue"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
			ErrorPaths:  []string{"stderr", "logs/error.log"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/documents.db",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Type:  "local",
			Local: LocalConfig{Dir: "media"},
		},
		Upload: UploadConfig{
			MaxFileSize: 10 * 1024 * 1024, // 10MB
		},
		Processing: ProcessingConfig{
			Concurrency:       10,
			ExtractionTimeout: 5 * time.Minute,
			Retention:         30 * 24 * time.Hour,
			CleanupCron:       "@daily",
			Queue:             "default",
		},
	}
}

// Get loads the configuration once per process from .env, the YAML file named
// by CONFIG_FILE (if any) and the environment.
func Get() (*Config, error) {
	appOnce.Do(func() {
		loadDotEnv()
		appConfig, appErr = Load(os.Getenv("CONFIG_FILE"))
	})
	return appConfig, appErr
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch c.Storage.Type {
	case "local", "minio", "s3", "gcs":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload max file size must be positive")
	}
	if c.Processing.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.Processing.ExtractionTimeout < 0 {
		return fmt.Errorf("extraction timeout must not be negative")
	}
	return nil
}

func loadDotEnv() {
	// .env lives in the project root, one level above this package
	_, filename, _, _ := runtime.Caller(0)
	rootDir := filepath.Dir(filepath.Dir(filename))
	envPath := filepath.Join(rootDir, ".env")

	if err := godotenv.Load(envPath); err != nil {
		// fall back to the working directory
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
		}
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setList(&cfg.Server.AllowOrigins, "CORS_ALLOW_ORIGINS")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Encoding, "LOG_ENCODING")
	setList(&cfg.Log.OutputPaths, "LOG_OUTPUT_PATHS")
	setList(&cfg.Log.ErrorPaths, "LOG_ERROR_PATHS")

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.Local.Dir, "STORAGE_LOCAL_DIR")
	applyMinioEnv(&cfg.Storage.Minio)
	applyS3Env(&cfg.Storage.S3)
	applyGCSEnv(&cfg.Storage.GCS)

	var err error
	if err = setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err = setInt64(&cfg.Upload.MaxFileSize, "MAX_UPLOAD_SIZE"); err != nil {
		return err
	}
	if err = setInt(&cfg.Processing.Concurrency, "WORKER_CONCURRENCY"); err != nil {
		return err
	}
	if err = setDuration(&cfg.Processing.ExtractionTimeout, "EXTRACTION_TIMEOUT"); err != nil {
		return err
	}
	if err = setDuration(&cfg.Processing.Retention, "RETENTION_PERIOD"); err != nil {
		return err
	}
	if err = setDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}
	setString(&cfg.Processing.CleanupCron, "CLEANUP_CRON")
	setString(&cfg.Processing.Queue, "PROCESSING_QUEUE")
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// LoggerOptions turns the log section into logger options. service names the
// process and is attached to every entry.
func (c LogConfig) LoggerOptions(service string) []logger.Option {
	opts := []logger.Option{
		logger.WithInitialFields(map[string]interface{}{"service": service}),
	}
	if c.Level != "" {
		opts = append(opts, logger.WithLevel(c.Level))
	}
	if c.Encoding != "" {
		opts = append(opts, logger.WithEncoding(c.Encoding))
	}
	if len(c.OutputPaths) > 0 {
		opts = append(opts, logger.WithOutputPaths(c.OutputPaths))
	}
	if c.ErrorPaths != nil {
		opts = append(opts, logger.WithErrorPaths(c.ErrorPaths))
	}
	return opts
}
