package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CREDITRISK"

// Config for the whole application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	API      APIConfig      `mapstructure:"api"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Database DatabaseConfig `mapstructure:"database"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// General application configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// Configuration for the API server
type APIConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	Mode            string          `mapstructure:"mode"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// Per-client request limits of the API
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

// Configuration for Kafka
type KafkaConfig struct {
	Enabled  bool                `mapstructure:"enabled"`
	Brokers  []string            `mapstructure:"brokers"`
	Producer KafkaProducerConfig `mapstructure:"producer"`
	Consumer KafkaConsumerConfig `mapstructure:"consumer"`
	Topics   KafkaTopicsConfig   `mapstructure:"topics"`
}

// Kafka producer configuration
type KafkaProducerConfig struct {
	Encoding       string        `mapstructure:"encoding"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxFailures    int           `mapstructure:"max_failures"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
}

// Kafka consumer configuration
type KafkaConsumerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	GroupID string `mapstructure:"group_id"`
}

// Kafka topics configuration
type KafkaTopicsConfig struct {
	RiskMetrics string `mapstructure:"risk_metrics"`
	LoanBooks   string `mapstructure:"loan_books"`
}

// Configuration for the stress history database
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// Configuration for risk calculations
type RiskConfig struct {
	StressWorkers   int           `mapstructure:"stress_workers"`
	HistoryLimit    int           `mapstructure:"history_limit"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	SampleLoans     int           `mapstructure:"sample_loans"`
	SampleSeed      int64         `mapstructure:"sample_seed"`
}

// Configuration for metrics
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Interval   time.Duration    `mapstructure:"interval"`
}

// Configuration for Prometheus metrics
type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads the configuration from path, if it exists, and CREDITRISK_* environment variables.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.API.Port <= 0 {
		return fmt.Errorf("api.port must be positive, got %d", c.API.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Risk.RefreshInterval < 0 {
		return fmt.Errorf("risk.refresh_interval cannot be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "credit-risk-pipeline")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.shutdown_timeout", "15s")
	v.SetDefault("api.mode", "release")
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.requests_per_second", 20)
	v.SetDefault("api.rate_limit.burst", 50)
	v.SetDefault("api.rate_limit.idle_ttl", "10m")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.producer.encoding", "json")
	v.SetDefault("kafka.producer.batch_timeout", "50ms")
	v.SetDefault("kafka.producer.write_timeout", "5s")
	v.SetDefault("kafka.producer.max_failures", 5)
	v.SetDefault("kafka.producer.breaker_timeout", "30s")
	v.SetDefault("kafka.consumer.enabled", false)
	v.SetDefault("kafka.consumer.group_id", "credit-risk-engine")
	v.SetDefault("kafka.topics.risk_metrics", "risk.metrics")
	v.SetDefault("kafka.topics.loan_books", "loan.books")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.dsn", "file:credit_risk.db?_busy_timeout=5000")

	// Risk defaults
	v.SetDefault("risk.stress_workers", 4)
	v.SetDefault("risk.history_limit", 50)
	v.SetDefault("risk.refresh_interval", "1m")
	v.SetDefault("risk.sample_loans", 100)
	v.SetDefault("risk.sample_seed", 42)

	// Metrics defaults
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.interval", "15s")
}

// GetConfigPath returns the config file location, overridable with CREDITRISK_CONFIG_PATH
func GetConfigPath() string {
	if configPath := os.Getenv(envPrefix + "_CONFIG_PATH"); configPath != "" {
		return configPath
	}

	return "./config/config.yaml"
}
