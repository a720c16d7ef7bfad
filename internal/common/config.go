package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	Provider ProviderConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// StorageConfig holds object-storage configuration
type StorageConfig struct {
	BaseURL           string
	ServiceKey        string
	SubmissionsBucket string
	GradedBucket      string
	SignedURLTTL      time.Duration
}

// ProviderConfig holds OCR provider configuration
type ProviderConfig struct {
	Endpoint      string
	APIKey        string
	FileField     string
	UploadRetries int
	PollInterval  time.Duration
	PollAttempts  int
	RenderBaseURL string
}

// QueueConfig holds OCR queue configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
	Sync           bool // run OCR inline in the start handler instead of queueing
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			BaseURL:           getEnv("STORAGE_URL", ""),
			ServiceKey:        getEnv("STORAGE_SERVICE_KEY", ""),
			SubmissionsBucket: getEnv("STORAGE_BUCKET", "submissions"),
			GradedBucket:      getEnv("STORAGE_GRADED_BUCKET", "graded-pdfs"),
			SignedURLTTL:      getEnvAsDuration("STORAGE_SIGNED_URL_TTL", 15*time.Minute),
		},
		Provider: ProviderConfig{
			Endpoint:      getEnv("OCR_ENDPOINT", "https://www.handwritingocr.com/api/v3"),
			APIKey:        getEnv("OCR_API_KEY", ""),
			FileField:     getEnv("OCR_FILE_FIELD", "file"),
			UploadRetries: getEnvAsInt("OCR_UPLOAD_RETRIES", 3),
			PollInterval:  getEnvAsDuration("OCR_POLL_INTERVAL", time.Second),
			PollAttempts:  getEnvAsInt("OCR_POLL_ATTEMPTS", 40),
			RenderBaseURL: getEnv("RENDER_SERVICE_URL", ""),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("OCR_QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("OCR_QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("OCR_PROCESS_TIMEOUT", 3*time.Minute),
			Sync:           getEnv("OCR_SYNC", "") == "1",
		},
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
	if c.Database.DSN == "" {
		return NewError(KindValidation, "DB_URL is required")
	}
	if c.Storage.BaseURL == "" {
		return NewError(KindValidation, "STORAGE_URL is required")
	}
	if c.Storage.ServiceKey == "" {
		return NewError(KindValidation, "STORAGE_SERVICE_KEY is required")
	}
	if c.Provider.APIKey == "" {
		return NewError(KindValidation, "OCR_API_KEY is required")
	}
	if c.Server.Addr == "" {
		return NewError(KindValidation, "HTTP_ADDR is required")
	}
	return nil
}
