package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Google     GoogleConfig     `yaml:"google"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Worker     WorkerConfig     `yaml:"worker"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// APIAuthConfig configures HS256 bearer tokens.
type APIAuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// KafkaConfig enables the booking event forwarder when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	BookingSpreadsheetID string `yaml:"bookings_spreadsheet_id"`
	BookingSheetName     string `yaml:"bookings_sheet_name"`
}

// TelegramConfig maps staff roles to the chat that receives their assignments.
type TelegramConfig struct {
	BotToken  string           `yaml:"bot_token"`
	Debug     bool             `yaml:"debug"`
	RoleChats map[string]int64 `yaml:"role_chats"`
}

type WorkerConfig struct {
	QueueKey     string        `yaml:"queue_key"`
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type PaymentsConfig struct {
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at configPath, expanding ${VAR} references from the
// environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes raw YAML into a validated Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Auth.JWTSecret == "" || c.API.Auth.JWTSecret == "CHANGE_ME" {
		return errors.New("api auth jwt_secret is required")
	}
	if len(c.API.Auth.JWTSecret) < 16 {
		return errors.New("api auth jwt_secret must be at least 16 characters")
	}
	if c.API.RateLimit.RPS < 0 || c.API.RateLimit.Burst < 0 {
		return errors.New("api rate_limit values must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	if c.Google.BookingSpreadsheetID != "" && c.Google.CredentialsFile == "" {
		return errors.New("google credentials_file is required for the bookings sheet")
	}
	if c.Worker.MaxDelay < c.Worker.BaseDelay {
		return errors.New("worker max_delay must not be lower than base_delay")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "celestia"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.API.Auth.Issuer == "" {
		c.API.Auth.Issuer = c.App.Name
	}
	if c.API.Auth.TokenTTL == 0 {
		c.API.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Google.BookingSheetName == "" {
		c.Google.BookingSheetName = "Bookings"
	}
	if c.Worker.QueueKey == "" {
		c.Worker.QueueKey = "celestia:outbox"
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Payments.IdempotencyTTL == 0 {
		c.Payments.IdempotencyTTL = 24 * time.Hour
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
