package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Database DatabaseConfig          `yaml:"database"`
	Redis    RedisConfig             `yaml:"redis"`
	Delivery  domain.DeliverySettings `yaml:"delivery"`
	Transport TransportConfig         `yaml:"transport"`
	Tracking TrackingConfig          `yaml:"tracking"`
	Reports  ReportsConfig           `yaml:"reports"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	TrackingPort    int           `yaml:"tracking_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Addr returns host:port of the admin server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds the dispatch lock backend. An empty URL falls back to
// Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Transport kinds.
const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// TransportConfig selects the relay behind the delivery settings. The SMTP
// relay uses the delivery.smtp_* fields; SES uses the AWS credential chain.
type TransportConfig struct {
	Kind                string `yaml:"kind"`
	HelloName           string `yaml:"hello_name"`
	InsecureSkipVerify  bool   `yaml:"insecure_skip_verify"`
	SESRegion           string `yaml:"ses_region"`
	SESConfigurationSet string `yaml:"ses_configuration_set"`
}

// TrackingConfig holds open/click tracking settings
type TrackingConfig struct {
	BaseURL      string                  `yaml:"base_url"`
	SiteURL      string                  `yaml:"site_url"`
	LinkPatterns []analytics.PatternSpec `yaml:"link_patterns"`
	SQSQueueURL  string                  `yaml:"sqs_queue_url"`
	AWSRegion    string                  `yaml:"aws_region"`
}

// ReportsConfig holds the S3 delivery report archive. Reports are not
// archived when S3Bucket is empty.
type ReportsConfig struct {
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Default returns the configuration used for every unset field.
func Default() Config {
	redact := true
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			TrackingPort:    8081,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Delivery: domain.DeliverySettings{
			SMTPPort:          587,
			BatchSize:         50,
			ChunkSize:         50,
			ChunkDelay:        200 * time.Millisecond,
			ConnectionTimeout: 10 * time.Second,
			GreetingTimeout:   10 * time.Second,
			SocketTimeout:     30 * time.Second,
			MaxRetries:        3,
			MaxBackoffDelay:   10 * time.Second,
			RetryChunkSizes:   "10,5,1",
			RetryWaveDelay:    5 * time.Second,
			SubjectDateFormat: "02.01.2006",
		},
		Transport: TransportConfig{
			Kind:      TransportSMTP,
			SESRegion: "us-east-1",
		},
		Tracking: TrackingConfig{
			LinkPatterns: analytics.DefaultPatternSpecs(),
			AWSRegion:    "us-east-1",
		},
		Reports: ReportsConfig{
			S3Region: "us-east-1",
		},
		Log: LogConfig{
			Level:     "info",
			RedactPII: &redact,
		},
	}
}

// Load loads configuration from a YAML file and fills unset fields from
// Default. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	// SMTP overrides
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Delivery.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT %q: %w", v, err)
		}
		cfg.Delivery.SMTPPort = port
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Delivery.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Delivery.SMTPPassword = v
	}
	if v := os.Getenv("MAIL_TRANSPORT"); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.Delivery.AdminEmail = v
	}

	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.Tracking.SQSQueueURL = v
	}
	if v := os.Getenv("REPORTS_S3_BUCKET"); v != "" {
		cfg.Reports.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Tracking.AWSRegion = v
		cfg.Reports.S3Region = v
		cfg.Transport.SESRegion = v
	}

	return cfg, nil
}

// Validate reports settings without which no newsletter can be delivered.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	switch c.Transport.Kind {
	case TransportSMTP:
		if c.Delivery.SMTPHost == "" {
			return fmt.Errorf("delivery.smtp_host is required")
		}
	case TransportSES:
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Delivery.FromEmail == "" {
		return fmt.Errorf("delivery.from_email is required")
	}
	return nil
}

// RedactPIIEnabled reports whether log output masks addresses; on unless
// disabled.
func (l LogConfig) RedactPIIEnabled() bool {
	return l.RedactPII == nil || *l.RedactPII
}
