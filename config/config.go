package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the engine.
type Config struct {
	Port     string
	DBDriver string // "postgres" or "sqlite"
	DBURL    string

	WebhookSecret string

	// Fixed-window rate limits per client IP.
	MessageRateLimit int
	StatusRateLimit  int
	RateWindow       time.Duration

	// Object storage.
	S3Enabled   bool
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
	S3PathStyle bool

	// Channel provider API (media downloads, profile pictures).
	ChannelAPIURL string

	// AI completion service.
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	// Push gateway.
	PushGatewayURL   string
	PushGatewayToken string

	// Transcription collaborator.
	TranscriptionURL string

	// Optional event mirror.
	RabbitURL         string
	RabbitQueue       string
	RabbitQueuePrefix string

	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables, with an optional
// .env file for local runs. Environment variables always take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DBDriver:          getEnv("DB_DRIVER", "postgres"),
		DBURL:             os.Getenv("DATABASE_URL"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		MessageRateLimit:  getEnvInt("RATE_LIMIT_MESSAGES", 120),
		StatusRateLimit:   getEnvInt("RATE_LIMIT_STATUS", 200),
		RateWindow:        time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3PublicURL:       os.Getenv("S3_PUBLIC_URL"),
		S3PathStyle:       getEnvBool("S3_PATH_STYLE", false),
		ChannelAPIURL:     os.Getenv("CHANNEL_API_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		PushGatewayURL:    os.Getenv("PUSH_GATEWAY_URL"),
		PushGatewayToken:  os.Getenv("PUSH_GATEWAY_TOKEN"),
		TranscriptionURL:  os.Getenv("TRANSCRIPTION_URL"),
		RabbitURL:         os.Getenv("RABBITMQ_URL"),
		RabbitQueue:       getEnv("RABBITMQ_QUEUE", "desk_events"),
		RabbitQueuePrefix: getEnv("RABBITMQ_QUEUE_PREFIX", "zapdesk"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		LogFormat:         os.Getenv("LOG_FORMAT"),
	}
	cfg.S3Enabled = cfg.S3Bucket != "" && cfg.S3AccessKey != "" && cfg.S3SecretKey != ""

	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET not set, webhook signature verification disabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
