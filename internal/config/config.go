package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration for every multiactivity process.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	Log      LogConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Email    EmailConfig
	Kafka    KafkaConfig
	Consul   ConsulConfig
	Pokemon  PokemonConfig
}

// LogConfig holds slog settings
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	AllowOrigins []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// DatabaseConfig holds Postgres settings
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	Migrate  bool   `env:"DATABASE_MIGRATE" envDefault:"true"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// StorageConfig holds S3/MinIO settings
type StorageConfig struct {
	Endpoint       string `env:"S3_ENDPOINT"`
	PublicEndpoint string `env:"S3_PUBLIC_ENDPOINT"`
	AccessKey      string `env:"S3_ACCESS_KEY"`
	SecretKey      string `env:"S3_SECRET_KEY"`
	Bucket         string `env:"S3_BUCKET_NAME" envDefault:"multiactivity"`
	Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	UseSSL         bool   `env:"S3_USE_SSL" envDefault:"false"`
}

// AuthConfig holds credential and token settings
type AuthConfig struct {
	JWTSecret     string        `env:"AUTH_JWT_SECRET"`
	Issuer        string        `env:"AUTH_ISSUER" envDefault:"multiactivity"`
	AccessTTL     time.Duration `env:"AUTH_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL    time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"720h"`
	RefreshMargin time.Duration `env:"AUTH_REFRESH_MARGIN" envDefault:"1m"`
	ConfirmTTL    time.Duration `env:"AUTH_CONFIRM_TTL" envDefault:"24h"`
	AutoConfirm   bool          `env:"AUTH_AUTO_CONFIRM" envDefault:"false"`
	BcryptCost    int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
	ConfirmURL    string        `env:"AUTH_CONFIRM_URL" envDefault:"http://localhost:8080/auth/confirm"`
}

// EmailConfig holds outgoing mail settings
type EmailConfig struct {
	Mode     string `env:"EMAIL_MODE" envDefault:"log"`
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	FromName string `env:"SMTP_FROM_NAME" envDefault:"Multiple Activities"`

	// ServicePort is the mailer's health endpoint port
	ServicePort int `env:"EMAIL_SERVICE_PORT" envDefault:"8085"`
}

// KafkaConfig holds email event streaming settings
type KafkaConfig struct {
	Enabled       bool   `env:"ENABLE_KAFKA" envDefault:"false"`
	Brokers       string `env:"KAFKA_BROKERS"`
	EmailTopic    string `env:"KAFKA_TOPIC_EMAIL_EVENTS" envDefault:"email-events"`
	EmailDLQTopic string `env:"KAFKA_TOPIC_EMAIL_DLQ" envDefault:"email-events-dlq"`
	ConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" envDefault:"mailer-group"`
	MaxRetries    int    `env:"KAFKA_MAX_RETRIES" envDefault:"3"`
}

// ConsulConfig holds service registration settings. Registration is skipped
// when Addr is empty.
type ConsulConfig struct {
	Addr        string `env:"CONSUL_HTTP_ADDR"`
	Token       string `env:"CONSUL_HTTP_TOKEN"`
	ServiceHost string `env:"SERVICE_HOST" envDefault:"localhost"`
}

// PokemonConfig holds PokeAPI settings
type PokemonConfig struct {
	BaseURL  string        `env:"POKEAPI_BASE_URL" envDefault:"https://pokeapi.co/api/v2"`
	CacheTTL time.Duration `env:"POKEAPI_CACHE_TTL" envDefault:"24h"`
	Timeout  time.Duration `env:"POKEAPI_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
