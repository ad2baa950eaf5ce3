/**
 * Configuration for the evidence ingestion worker.
 *
 * Loads configuration from environment variables.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultMaxFileSize is used when MAX_FILE_SIZE is missing or unparsable.
const DefaultMaxFileSize = 50 * 1024 * 1024

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Object storage configuration
	StorageEndpoint   string
	StorageAccessKey  string
	StorageSecretKey  string
	StorageUseSSL     bool
	StorageBucket     string
	StorageRegion     string
	StoragePrefix     string
	StorageMaxRetries int
	StorageRetryDelay float64 // seconds, base delay for exponential backoff
	PresignedURLTTL   int     // seconds

	// Multimodal model service
	ModelServiceURL string

	// Upload limits
	MaxFileSize        int64
	MaxFilesPerRequest int
	SupportedFormats   []string

	// Parsing engine
	MaxWorkers        int
	ProcessingTimeout float64 // seconds, per-file multiplier for the batch deadline

	// Queue consumer
	WorkerConcurrency int

	// Tessdata directory for the local OCR fallback; empty disables OCR
	TessdataPrefix string

	// Scratch directory for processor temp files
	TempDir string
}

// defaultSupportedFormats covers the formats the bundled processors handle.
var defaultSupportedFormats = []string{
	// text-like
	"txt", "md", "markdown", "json", "yaml", "yml", "xml", "html", "htm",
	"css", "csv", "log", "ini", "cfg", "conf", "toml", "sql", "sh", "bat",
	"py", "go", "js", "ts", "jsx", "tsx", "java", "c", "cpp", "h", "rb",
	"rs", "php",
	// images
	"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff",
	// documents
	"xlsx", "xls", "docx",
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:          getEnvOrDefault("QUEUE_NAME", "evidence:parse"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		StorageEndpoint:    getEnvOrDefault("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:   getEnvOrDefault("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:   getEnvOrDefault("STORAGE_SECRET_KEY", ""),
		StorageUseSSL:      getEnvAsBoolOrDefault("STORAGE_USE_SSL", false),
		StorageBucket:      getEnvOrDefault("STORAGE_BUCKET", "evidence-files"),
		StorageRegion:      getEnvOrDefault("STORAGE_REGION", "us-east-1"),
		StoragePrefix:      getEnvOrDefault("STORAGE_PREFIX", "uploads"),
		StorageMaxRetries:  getEnvAsIntOrDefault("STORAGE_MAX_RETRIES", 3),
		StorageRetryDelay:  getEnvAsFloatOrDefault("STORAGE_RETRY_DELAY", 1.0),
		PresignedURLTTL:    getEnvAsIntOrDefault("PRESIGNED_URL_EXPIRATION", 3600),
		ModelServiceURL:    getEnvOrDefault("MODEL_SERVICE_URL", "http://localhost:8080"),
		MaxFileSize:        ParseSize(os.Getenv("MAX_FILE_SIZE")),
		MaxFilesPerRequest: getEnvAsIntOrDefault("MAX_FILES_PER_REQUEST", 10),
		SupportedFormats:   getEnvAsListOrDefault("SUPPORTED_FORMATS", defaultSupportedFormats),
		MaxWorkers:         getEnvAsIntOrDefault("MAX_WORKERS", 4),
		ProcessingTimeout:  getEnvAsFloatOrDefault("PROCESSING_TIMEOUT", 300),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
		TessdataPrefix:     getEnvOrDefault("TESSDATA_PREFIX", ""),
		TempDir:            getEnvOrDefault("TEMP_DIR", os.TempDir()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.StorageBucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}

	if c.MaxFilesPerRequest < 1 {
		return fmt.Errorf("MAX_FILES_PER_REQUEST must be at least 1, got %d", c.MaxFilesPerRequest)
	}

	if c.MaxWorkers < 1 || c.MaxWorkers > 100 {
		return fmt.Errorf("MAX_WORKERS must be between 1 and 100, got %d", c.MaxWorkers)
	}

	if c.MaxFileSize < 1 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	if c.StorageMaxRetries < 0 {
		return fmt.Errorf("STORAGE_MAX_RETRIES must not be negative, got %d", c.StorageMaxRetries)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %f", c.ProcessingTimeout)
	}

	if len(c.SupportedFormats) == 0 {
		return fmt.Errorf("SUPPORTED_FORMATS must not be empty")
	}

	return nil
}

var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
	"TB": 1024 * 1024 * 1024 * 1024,
}

// ParseSize parses a size string into bytes. Accepts bare integers (bytes)
// or "<number><unit>" with unit B/KB/MB/GB/TB, case-insensitive. Unparsable
// or non-positive values fall back to DefaultMaxFileSize instead of erroring.
func ParseSize(value string) int64 {
	s := strings.TrimSpace(value)
	if s == "" {
		return DefaultMaxFileSize
	}

	// Bare integer means bytes.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return DefaultMaxFileSize
		}
		return n
	}

	upper := strings.ToUpper(s)
	for _, unit := range []string{"TB", "GB", "MB", "KB", "B"} {
		if !strings.HasSuffix(upper, unit) {
			continue
		}
		numPart := strings.TrimSpace(strings.TrimSuffix(upper, unit))
		num, err := strconv.ParseFloat(numPart, 64)
		if err != nil || num <= 0 {
			return DefaultMaxFileSize
		}
		return int64(num * float64(sizeUnits[unit]))
	}

	return DefaultMaxFileSize
}

// FormatSize renders a byte count for human-readable error messages.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	div, exp := int64(unit), 0
	// Values past the table render in the largest unit.
	for n := size / unit; n >= unit && exp < len(units)-1; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%s", float64(size)/float64(div), units[exp])
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault gets a comma-separated environment variable as a
// lower-cased list or returns default
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
