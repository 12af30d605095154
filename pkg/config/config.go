package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// ProviderConfig configures one upstream metric source. An empty APIKey
// degrades the provider to estimate-only mode; it never fails startup.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	DayLimit    int           `yaml:"day_limit" default:"100"`
	MinuteLimit int           `yaml:"minute_limit" default:"10"`
	Timeout     time.Duration `yaml:"timeout" default:"15s"`
}

// CategoryConfig configures one periodic collection job.
type CategoryConfig struct {
	Enabled         bool `yaml:"enabled" default:"true"`
	IntervalMinutes uint `yaml:"interval_minutes" default:"30"`
}

// PriceBandConfig is the expected USD range for an asset. Bands are a
// product-policy knob, deliberately not hardcoded.
type PriceBandConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type" default:"clickhouse"` // kafka or clickhouse
	} `yaml:"backend"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		SnapshotTopic string   `yaml:"snapshot_topic" default:"chainpulse.snapshots"`
		AnomalyTopic  string   `yaml:"anomaly_topic" default:"chainpulse.anomalies"`
		SignalTopic   string   `yaml:"signal_topic" default:"chainpulse.signals"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"gzip"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"chainpulse-ingest"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"1s"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"30s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"chainpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
		SeriesTTL     time.Duration `yaml:"series_ttl" default:"6h"`
		StructuralTTL time.Duration `yaml:"structural_ttl" default:"12h"`
		HistoricalTTL time.Duration `yaml:"historical_ttl" default:"24h"`
	} `yaml:"cache"`
	Providers  map[string]ProviderConfig  `yaml:"providers"`
	Categories map[string]CategoryConfig  `yaml:"categories"`
	PriceBands map[string]PriceBandConfig `yaml:"price_bands"`
	Collection struct {
		MaxAssets     int           `yaml:"max_assets" default:"10"`
		RetryAttempts int           `yaml:"retry_attempts" default:"3"`
		RetryBackoff  time.Duration `yaml:"retry_backoff" default:"1s"`
	} `yaml:"collection"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"stream"`
	Narrative struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout" default:"30s"`
		Workers    int           `yaml:"workers" default:"1"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"narrative"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	// Per-provider key override: GLASSNODE_API_KEY, COINGECKO_API_KEY, ...
	for name, pc := range c.Providers {
		if v := os.Getenv(strings.ToUpper(name) + "_API_KEY"); v != "" {
			pc.APIKey = v
			c.Providers[name] = pc
		}
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty with kafka backend")
	}
	for name, pc := range c.Providers {
		if pc.DayLimit <= 0 || pc.MinuteLimit <= 0 {
			return fmt.Errorf("provider %s: day_limit and minute_limit must be positive", name)
		}
	}
	for name, cc := range c.Categories {
		if cc.Enabled && cc.IntervalMinutes == 0 {
			return fmt.Errorf("category %s: interval_minutes must be positive when enabled", name)
		}
	}
	for asset, band := range c.PriceBands {
		if band.Min < 0 || band.Max <= band.Min {
			return fmt.Errorf("price band %s: want 0 <= min < max", asset)
		}
	}
	return nil
}
