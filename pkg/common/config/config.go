package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers    []string
	KafkaGroupID    string
	PipelineTopic   string
	EventsDisabled  bool

	// Blob storage
	BlobRoot   string
	BlobBucket string

	// LLM
	LLMAPIKey          string
	LLMBaseURL         string
	ExtractionModel    string
	SummaryModel       string
	ExtractionTimeout  time.Duration
	SummaryTimeout     time.Duration

	// Read model
	InsightsCacheTTL time.Duration

	// Lifecycle claims
	ParseClaimTTL    time.Duration
	GenerateClaimTTL time.Duration

	// Terminology
	LabCatalogPath string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 16*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "medichat"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "medichat123"),
		PostgresDB:       getEnv("POSTGRES_DB", "medichat"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "medichat-platform"),
		PipelineTopic:  getEnv("PIPELINE_TOPIC", "medichat.pipeline"),
		EventsDisabled: getBoolEnv("EVENTS_DISABLED", false),

		BlobRoot:   getEnv("BLOB_ROOT", "/var/lib/medichat/blobs"),
		BlobBucket: getEnv("BLOB_BUCKET", "patient-documents"),

		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		ExtractionModel:   getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
		SummaryModel:      getEnv("SUMMARY_MODEL", "gpt-4o-mini"),
		ExtractionTimeout: getDuration("EXTRACTION_TIMEOUT", 90*time.Second),
		SummaryTimeout:    getDuration("SUMMARY_TIMEOUT", 60*time.Second),

		InsightsCacheTTL: getDuration("INSIGHTS_CACHE_TTL", 15*time.Second),

		ParseClaimTTL:    getDuration("PARSE_CLAIM_TTL", 2*time.Minute),
		GenerateClaimTTL: getDuration("GENERATE_CLAIM_TTL", 2*time.Minute),

		LabCatalogPath: getEnv("LAB_CATALOG_PATH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
