package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	ClinicTimezone string

	// Document store
	DocstoreBackend         string
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// Counter ledger
	CounterBackend     string
	CounterMaxAttempts int
	DatabaseURL        string
	CountersTable      string

	// Trigger runtime
	TriggerQueue    string
	TriggerQueueURL string
	AMQPURL         string
	AMQPQueue       string
	WorkerCount     int

	// Redis caches
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	ChatCacheTTL  time.Duration
	StatsCacheTTL time.Duration

	// Blob storage
	BlobBackend string
	S3Bucket    string
	S3URLTTL    time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Auth
	AuthBackend   string
	AuthJWTSecret string
	AuthTokenTTL  time.Duration
	// Optional account registered at startup by the local provider.
	AuthBootstrapUID      string
	AuthBootstrapEmail    string
	AuthBootstrapPassword string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Assignment e-mails
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "UTC"),

		DocstoreBackend:         strings.ToLower(getEnv("DOCSTORE_BACKEND", "memory")),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		CounterBackend:     strings.ToLower(getEnv("COUNTER_BACKEND", "docstore")),
		CounterMaxAttempts: getEnvAsInt("COUNTER_MAX_ATTEMPTS", 5),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CountersTable:      getEnv("COUNTERS_TABLE", "clinicops_counters"),

		TriggerQueue:    strings.ToLower(getEnv("TRIGGER_QUEUE", "memory")),
		TriggerQueueURL: getEnv("TRIGGER_QUEUE_URL", ""),
		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPQueue:       getEnv("AMQP_QUEUE", "clinicops.triggers"),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		ChatCacheTTL:  getEnvAsDuration("CHAT_CACHE_TTL", 30*time.Minute),
		StatsCacheTTL: getEnvAsDuration("STATS_CACHE_TTL", time.Minute),

		BlobBackend: strings.ToLower(getEnv("BLOB_BACKEND", "memory")),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3URLTTL:    getEnvAsDuration("S3_URL_TTL", 24*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AuthBackend:   strings.ToLower(getEnv("AUTH_BACKEND", "local")),
		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		AuthTokenTTL:  getEnvAsDuration("AUTH_TOKEN_TTL", 12*time.Hour),

		AuthBootstrapUID:      getEnv("AUTH_BOOTSTRAP_UID", "admin"),
		AuthBootstrapEmail:    getEnv("AUTH_BOOTSTRAP_EMAIL", ""),
		AuthBootstrapPassword: getEnv("AUTH_BOOTSTRAP_PASSWORD", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		EmailProvider:  strings.ToLower(getEnv("EMAIL_PROVIDER", "none")),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Clinic Ops"),
	}
}

// Location resolves ClinicTimezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
