package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
	Models   ModelsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	LogFile  string // empty -> stdout only
}

// DatabaseConfig holds job-store configuration
type DatabaseConfig struct {
	Driver           string // memory | postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// UploadConfig holds document-upload configuration
type UploadConfig struct {
	Dir          string
	WatchDir     string // empty -> watcher disabled
	MaxUploadMiB int64
}

// PipelineConfig holds task-execution configuration
type PipelineConfig struct {
	Workers       int
	QueueSize     int
	StageTimeout  time.Duration // per model call
	TaskDeadline  time.Duration // supervisory sweep threshold for running tasks
	SweepInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			LogFile:  getEnv("LOG_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "memory"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Upload: UploadConfig{
			Dir:          getEnv("UPLOAD_DIR", "./uploads"),
			WatchDir:     getEnv("WATCH_DIR", ""),
			MaxUploadMiB: int64(getEnvAsInt("MAX_UPLOAD_MIB", 16)),
		},
		Pipeline: PipelineConfig{
			Workers:       getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:     getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			StageTimeout:  getEnvAsDuration("STAGE_TIMEOUT", 2*time.Minute),
			TaskDeadline:  getEnvAsDuration("TASK_DEADLINE", 10*time.Minute),
			SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 30*time.Second),
		},
		Models: ModelsConfig{
			VLM:    loadStageModel("VLM", false),
			NER1:   loadStageModel("NER1", true),
			NER2:   loadStageModel("NER2", true),
			Review: loadStageModel("REVIEW", true),
		},
	}
}

// StageModelConfig holds the model invocation settings for one pipeline
// stage. Each stage reads its own env prefix (VLM_, NER1_, NER2_, REVIEW_).
type StageModelConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	TopP         float32
	JSONResponse bool
	Timeout      time.Duration
}

// ModelsConfig holds one StageModelConfig per model-backed stage.
type ModelsConfig struct {
	VLM    StageModelConfig
	NER1   StageModelConfig
	NER2   StageModelConfig
	Review StageModelConfig
}

func loadStageModel(prefix string, jsonDefault bool) StageModelConfig {
	format := "text"
	if jsonDefault {
		format = "json"
	}
	return StageModelConfig{
		BaseURL:      getEnv(prefix+"_BASE_URL", "https://openrouter.ai/api/v1"),
		APIKey:       getEnv(prefix+"_API_KEY", os.Getenv("OPENROUTER_API_KEY")),
		Model:        getEnv(prefix+"_MODEL", ""),
		SystemPrompt: getEnv(prefix+"_SYSTEM_PROMPT", "You are a helpful assistant."),
		UserPrompt:   getEnv(prefix+"_USER_PROMPT", ""),
		Temperature:  getEnvAsFloat32(prefix+"_TEMPERATURE", 0.7),
		TopP:         getEnvAsFloat32(prefix+"_TOP_P", 1.0),
		JSONResponse: getEnv(prefix+"_RESPONSE_FORMAT", format) == "json",
		Timeout:      getEnvAsDuration(prefix+"_TIMEOUT", 45*time.Second),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required for driver "+c.Database.Driver, ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown DB_DRIVER "+c.Database.Driver, ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Upload.Dir == "" {
		return NewAppError("CONFIG_ERROR", "UPLOAD_DIR is required", ErrInvalidInput)
	}
	return nil
}
