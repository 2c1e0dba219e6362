package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds database configuration for the optional job history
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retention       time.Duration
}

// Enabled reports whether job history should be recorded
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

// ModelServerConfig holds the settings of the external diffusion / pose detection server
type ModelServerConfig struct {
	BaseURL          string
	Timeout          time.Duration
	DiffusionEnabled bool
	PoseEnabled      bool
	PoseModule       string
	ControlNetModels []string
	SecondaryModule  string
	ProbeOnStart     bool
	NvidiaSMIPath    string
}

// QueueConfig holds RabbitMQ settings
type QueueConfig struct {
	URL         string
	JobQueue    string
	ResultQueue string
	Prefetch    int
}

// Enabled reports whether the RabbitMQ transport is configured
func (c QueueConfig) Enabled() bool {
	return c.URL != ""
}

// StorageConfig holds MinIO settings for mesh export uploads
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether exports should be uploaded
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Config holds all configuration for the application
type Config struct {
	ListenAddr        string
	Concurrency       int64
	LogLevel          string
	LogJSON           bool
	PromptsFile       string
	Prompts           Prompts
	TargetSize        int
	Seed              int64
	HealthLogSchedule string
	Models            ModelServerConfig
	Queue             QueueConfig
	Storage           StorageConfig
	DB                DBConfig
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// a missing .env is fine, the hosting platform usually injects env directly
	_ = godotenv.Load()

	config := &Config{
		ListenAddr:        getString("LISTEN_ADDR", ":8080"),
		LogLevel:          getString("LOG_LEVEL", "info"),
		LogJSON:           getBool("LOG_JSON", true),
		PromptsFile:       os.Getenv("PROMPTS_FILE"),
		TargetSize:        getInt("TARGET_SIZE", 512),
		Seed:              int64(getInt("GENERATION_SEED", 42)),
		HealthLogSchedule: getString("HEALTH_LOG_SCHEDULE", "0 */15 * * * *"),
		Concurrency:       int64(getInt("WORKER_CONCURRENCY", 1)),
	}

	config.Models = ModelServerConfig{
		BaseURL:          strings.TrimRight(getString("SD_WEBUI_URL", "http://127.0.0.1:7860"), "/"),
		Timeout:          time.Duration(getInt("SD_WEBUI_TIMEOUT", 300)) * time.Second,
		DiffusionEnabled: getBool("DIFFUSION_ENABLED", true),
		PoseEnabled:      getBool("POSE_DETECTOR_ENABLED", true),
		PoseModule:       getString("POSE_MODULE", "openpose_full"),
		ControlNetModels: getList("CONTROLNET_MODELS", []string{"control_v11p_sd15_openpose"}),
		SecondaryModule:  getString("CONTROLNET_SECONDARY_MODULE", "lineart_anime"),
		ProbeOnStart:     getBool("SD_WEBUI_PROBE", true),
		NvidiaSMIPath:    getString("NVIDIA_SMI_PATH", "nvidia-smi"),
	}

	config.Queue = QueueConfig{
		URL:         os.Getenv("RABBITMQ_URL"),
		JobQueue:    getString("RABBITMQ_QUEUE", "stylemesh.jobs"),
		ResultQueue: getString("RABBITMQ_RESULT_QUEUE", "stylemesh.results"),
		Prefetch:    getInt("RABBITMQ_PREFETCH", 1),
	}

	config.Storage = StorageConfig{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    getString("MINIO_BUCKET", "stylemesh-exports"),
		UseSSL:    getBool("MINIO_USE_SSL", false),
	}

	// Load database configuration
	dbConfig := DBConfig{
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: os.Getenv("DB_NAME"),
		SSLMode:  getString("DB_SSL_MODE", "disable"),
	}
	dbConfig.Port = getInt("DB_PORT", 5432)
	dbConfig.MaxOpenConns = getInt("DB_MAX_OPEN_CONNS", 5)
	dbConfig.MaxIdleConns = getInt("DB_MAX_IDLE_CONNS", 5)
	dbConfig.ConnMaxLifetime = time.Duration(getInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second
	dbConfig.Retention = time.Duration(getInt("HISTORY_RETENTION_HOURS", 24*7)) * time.Hour
	config.DB = dbConfig

	prompts := DefaultPrompts()
	if config.PromptsFile != "" {
		loaded, err := LoadPrompts(config.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts file: %w", err)
		}
		prompts = loaded
	}
	config.Prompts = prompts

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Models.BaseURL == "" && (c.Models.DiffusionEnabled || c.Models.PoseEnabled) {
		return fmt.Errorf("SD_WEBUI_URL is required when diffusion or pose detection is enabled")
	}
	if c.TargetSize <= 0 {
		return fmt.Errorf("TARGET_SIZE must be positive, got %d", c.TargetSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Concurrency)
	}

	// Validate database configuration only when history is turned on
	if c.DB.Enabled() {
		if c.DB.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.DB.Database == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	}

	if c.Storage.Enabled() && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
