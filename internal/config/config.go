package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"campus-events/internal/apperr"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	QR       QRConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DSN builds the postgres connection string for bun's pgdriver.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type RedisConfig struct {
	Addr string
	// LockTTL bounds how long a registration admission lease may outlive a
	// crashed holder.
	LockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	CheckInEvents      string
	RegistrationEvents string
}

type AuthConfig struct {
	OIDCIssuer string
}

type QRConfig struct {
	// SigningSecret is the shared HMAC secret behind every minted QR code.
	SigningSecret string
	// MaxAge is the scan-time freshness window. Zero disables the check.
	MaxAge time.Duration
}

// Validate fails fast when the signing secret is absent. Starting without it
// would let paid-ticket approval degrade to unsigned codes.
func (q QRConfig) Validate() error {
	if q.SigningSecret == "" {
		return apperr.Config("QR_SECRET_KEY is not set")
	}
	return nil
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "events_user"),
			Password:     getEnv("DB_PASSWORD", "events_pass"),
			Database:     getEnv("DB_NAME", "campus_events"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			LockTTL: time.Duration(getEnvInt("REGISTRATION_LOCK_TTL_SECONDS", 10)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "campus-events-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				CheckInEvents:      getEnv("KAFKA_TOPIC_CHECKIN", "checkin-events"),
				RegistrationEvents: getEnv("KAFKA_TOPIC_REGISTRATIONS", "registration-events"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		QR: QRConfig{
			SigningSecret: getEnv("QR_SECRET_KEY", ""),
			MaxAge:        time.Duration(getEnvInt("QR_MAX_AGE_HOURS", 48)) * time.Hour,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
