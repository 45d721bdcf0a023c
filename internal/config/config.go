package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Delivery DeliveryConfig
	Scoring  ScoringConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
	// Retention is how long scored runs and price history are kept; 0 keeps everything
	Retention time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers     []string
	ScrapeTopic string
	ScoreTopic  string
	GroupID     string
	Enabled     bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// DeliveryConfig holds the remote endpoint that receives scored batches
type DeliveryConfig struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// ScoringConfig holds scorer options
type ScoringConfig struct {
	RangePolicy     string
	IsolateFailures bool
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory if one exists
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "nzxscorer"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
			Retention:      getEnvDuration("DB_RETENTION", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", "localhost:9092"),
			ScrapeTopic: getEnv("KAFKA_SCRAPE_TOPIC", "company-scrapes"),
			ScoreTopic:  getEnv("KAFKA_SCORE_TOPIC", "company-scores"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "nzx-scorer"),
			Enabled:     getEnvBool("KAFKA_ENABLED", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: getEnvDuration("REDIS_CACHE_TTL", 24*time.Hour),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 2*time.Hour),
		},
		Delivery: DeliveryConfig{
			URL:         getEnv("DELIVERY_URL", "http://localhost:8000/update"),
			Timeout:     getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			MaxAttempts: getEnvInt("DELIVERY_MAX_ATTEMPTS", 3),
			Backoff:     getEnvDuration("DELIVERY_BACKOFF", time.Second),
		},
		Scoring: ScoringConfig{
			RangePolicy:     getEnv("SCORING_RANGE_POLICY", "observed"),
			IsolateFailures: getEnvBool("SCORING_ISOLATE_FAILURES", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Address returns host:port for the HTTP server
func (s *ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Validate checks values that have no safe default
func (c *Config) Validate() error {
	if c.Delivery.URL == "" {
		return fmt.Errorf("DELIVERY_URL is required")
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be at least 1, got %d", c.Delivery.MaxAttempts)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
