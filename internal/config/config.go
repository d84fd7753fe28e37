package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

const DefaultHTTPAddr = ":8085"

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	LogFile     string `yaml:"log_file"`
	PostgresURL string `yaml:"postgres_url"`
	NATSURL     string `yaml:"nats_url"`
	RedisAddr   string `yaml:"redis_addr"`

	// APIKeyHashes holds SHA-256 hashes of accepted operator API keys.
	// Empty means auth is disabled (local development only).
	APIKeyHashes []string `yaml:"api_key_hashes"`

	SMTP       SMTPConfig       `yaml:"smtp"`
	SMS        SMSConfig        `yaml:"sms"`
	Queue      QueueConfig      `yaml:"queue"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Escalation EscalationConfig `yaml:"escalation"`
	Sweeps     SweepConfig      `yaml:"sweeps"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type SMSConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	Sender     string `yaml:"sender"`
}

type QueueConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffCap    time.Duration `yaml:"backoff_cap"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	BackoffJitter float64       `yaml:"backoff_jitter"`
}

type DeliveryConfig struct {
	Workers        int                        `yaml:"workers"`
	AttemptTimeout time.Duration              `yaml:"attempt_timeout"`
	FallbackOrder  []domain.Channel           `yaml:"fallback_order"`
	RatePerSecond  map[domain.Channel]float64 `yaml:"rate_per_second"`
}

type MonitorConfig struct {
	Interval            time.Duration `yaml:"interval"`
	Window              time.Duration `yaml:"window"`
	DeliveryRateFloor   float64       `yaml:"delivery_rate_floor"`
	FailureRateWarning  float64       `yaml:"failure_rate_warning"`
	FailureRateCritical float64       `yaml:"failure_rate_critical"`
	ChannelFailureRate  float64       `yaml:"channel_failure_rate"`
	ConsecutiveWindows  int           `yaml:"consecutive_windows"`
	LatencyCeiling      time.Duration `yaml:"latency_ceiling"`
	StuckThreshold      time.Duration `yaml:"stuck_threshold"`
	StuckRetryBatch     int           `yaml:"stuck_retry_batch"`
}

type EscalationConfig struct {
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
	HistoryRetention     time.Duration `yaml:"history_retention"`
	StaleThreshold       time.Duration `yaml:"stale_threshold"`
	DefaultCooldown      time.Duration `yaml:"default_cooldown"`
}

type SweepConfig struct {
	ScheduledInterval time.Duration `yaml:"scheduled_interval"`
	ExpiryInterval    time.Duration `yaml:"expiry_interval"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:    DefaultHTTPAddr,
		PostgresURL: "postgres://localhost:5432/notifications",
		NATSURL:     "nats://localhost:4222",
		Queue: QueueConfig{
			MaxRetries:    3,
			LeaseDuration: 60 * time.Second,
			PollInterval:  2 * time.Second,
			BatchSize:     25,
			BackoffBase:   1 * time.Second,
			BackoffCap:    30 * time.Second,
			BackoffFactor: 2.0,
			BackoffJitter: 0.2,
		},
		Delivery: DeliveryConfig{
			Workers:        16,
			AttemptTimeout: 10 * time.Second,
			FallbackOrder:  []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail, domain.ChannelSMS},
			RatePerSecond: map[domain.Channel]float64{
				domain.ChannelEmail: 10,
				domain.ChannelSMS:   5,
			},
		},
		Monitor: MonitorConfig{
			Interval:            60 * time.Second,
			Window:              1 * time.Hour,
			DeliveryRateFloor:   0.80,
			FailureRateWarning:  0.15,
			FailureRateCritical: 0.25,
			ChannelFailureRate:  0.50,
			ConsecutiveWindows:  5,
			LatencyCeiling:      60 * time.Second,
			StuckThreshold:      15 * time.Minute,
			StuckRetryBatch:     100,
		},
		Escalation: EscalationConfig{
			HousekeepingInterval: 10 * time.Minute,
			HistoryRetention:     7 * 24 * time.Hour,
			StaleThreshold:       2 * time.Hour,
			DefaultCooldown:      30 * time.Minute,
		},
		Sweeps: SweepConfig{
			ScheduledInterval: 1 * time.Minute,
			ExpiryInterval:    5 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.max_retries must be at least 1")
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("queue.batch_size must be at least 1")
	}
	if c.Delivery.Workers < 1 {
		return fmt.Errorf("delivery.workers must be at least 1")
	}
	if c.Monitor.DeliveryRateFloor < 0 || c.Monitor.DeliveryRateFloor > 1 {
		return fmt.Errorf("monitor.delivery_rate_floor must be between 0 and 1")
	}
	if c.Monitor.FailureRateWarning > c.Monitor.FailureRateCritical {
		return fmt.Errorf("monitor.failure_rate_warning must not exceed failure_rate_critical")
	}
	for _, ch := range c.Delivery.FallbackOrder {
		if !ch.Valid() {
			return fmt.Errorf("delivery.fallback_order: unknown channel %q", ch)
		}
	}
	return nil
}

// Load reads the config file at path (missing file falls back to defaults),
// then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if addr := os.Getenv("NOTIFIER_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if dsn := os.Getenv("NOTIFIER_POSTGRES_URL"); dsn != "" {
		cfg.PostgresURL = dsn
	}
	if url := os.Getenv("NOTIFIER_NATS_URL"); url != "" {
		cfg.NATSURL = url
	}
	if addr := os.Getenv("NOTIFIER_REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if hash := os.Getenv("NOTIFIER_API_KEY_HASH"); hash != "" {
		cfg.APIKeyHashes = append(cfg.APIKeyHashes, hash)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
