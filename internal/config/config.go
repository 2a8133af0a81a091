package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	RedisURL    string
	DatabaseURL string

	// Provider credentials and endpoints.
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	ScalewayAPIKey    string
	ScalewayBaseURL   string
	OllamaBaseURL     string
	VertexProjectID   string
	VertexRegion      string
	VertexAccessToken string
	BedrockEnabled    bool
	DefaultProvider   string
	FailoverChain     []string

	// AWS-backed infrastructure.
	AWSRegion   string
	SecretsName string
	SNSTopicARN string
	SQSQueueURL string

	OTLPEndpoint string

	AdminAuthEnabled bool
	AdminKeyHash     string

	// Horizontal scaling features
	UseDistributedHealth bool

	RequestTimeout time.Duration
	DeductTimeout  time.Duration

	// Graceful shutdown
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:                 getEnv("ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RedisURL:             getEnv("REDIS_URL", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ScalewayAPIKey:       getEnv("SCALEWAY_API_KEY", ""),
		ScalewayBaseURL:      getEnv("SCALEWAY_BASE_URL", "https://api.scaleway.ai/v1"),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		VertexProjectID:      getEnv("VERTEX_PROJECT_ID", ""),
		VertexRegion:         getEnv("VERTEX_REGION", "europe-west1"),
		VertexAccessToken:    getEnv("VERTEX_ACCESS_TOKEN", ""),
		BedrockEnabled:       getEnv("BEDROCK_ENABLED", "false") == "true",
		DefaultProvider:      getEnv("DEFAULT_PROVIDER", "ollama"),
		FailoverChain:        getListEnv("FAILOVER_CHAIN", nil),
		AWSRegion:            getEnv("AWS_REGION", ""),
		SecretsName:          getEnv("SECRETS_NAME", ""),
		SNSTopicARN:          getEnv("SNS_TOPIC_ARN", ""),
		SQSQueueURL:          getEnv("SQS_QUEUE_URL", ""),
		OTLPEndpoint:         getEnv("OTLP_ENDPOINT", ""),
		AdminAuthEnabled:     getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		AdminKeyHash:         getEnv("ADMIN_KEY_HASH", ""),
		UseDistributedHealth: getEnv("USE_DISTRIBUTED_HEALTH", "false") == "true",
		RequestTimeout:       getDurationEnv("REQUEST_TIMEOUT", 120*time.Second),
		DeductTimeout:        getDurationEnv("DEDUCT_TIMEOUT", 15*time.Second),
		ShutdownTimeout:      getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
