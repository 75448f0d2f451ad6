package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address             string `yaml:"address"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
		// RateLimitPerMinute caps public requests per client; 0 disables limiting.
		RateLimitPerMinute int  `yaml:"rate_limit_per_minute"`
		RateLimitFailOpen  bool `yaml:"rate_limit_fail_open"`
	} `yaml:"server"`

	GRPC struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"grpc"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite3 | postgres
		Path     string `yaml:"path"`
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Availability struct {
		MinLeadMinutes         int  `yaml:"min_lead_minutes"`
		MaxRangeDays           int  `yaml:"max_range_days"`
		FailOpen               bool `yaml:"fail_open"`
		ConflictTimeoutSeconds int  `yaml:"conflict_timeout_seconds"`
		CacheTTLSeconds        int  `yaml:"cache_ttl_seconds"`
		BusyCacheTTLSeconds    int  `yaml:"busy_cache_ttl_seconds"`
	} `yaml:"availability"`

	Google struct {
		Enabled           bool                `yaml:"enabled"`
		CredentialsFile   string              `yaml:"credentials_file"`
		RequestsPerSecond float64             `yaml:"requests_per_second"`
		Calendars         map[string][]string `yaml:"calendars"` // owner id -> calendar ids
	} `yaml:"google"`

	ICS struct {
		Enabled        bool                `yaml:"enabled"`
		TimeoutSeconds int                 `yaml:"timeout_seconds"`
		Feeds          map[string][]string `yaml:"feeds"` // owner id -> feed urls
		// FloatingTimezone reads feed times that carry no TZID.
		FloatingTimezone string `yaml:"floating_timezone"`
		CacheSize        int    `yaml:"cache_size"`
	} `yaml:"ics"`

	Kafka struct {
		Enabled bool   `yaml:"enabled"`
		Brokers string `yaml:"brokers"` // comma separated
		Topic   string `yaml:"topic"`
	} `yaml:"kafka"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Schedule      string `yaml:"schedule"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Endpoint    string  `yaml:"endpoint"`
		Insecure    bool    `yaml:"insecure"`
		ServiceName string  `yaml:"service_name"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`

	Schedules struct {
		Path                 string `yaml:"path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"schedules"`

	// APIKeys maps an owner API key to the owner id it authenticates.
	APIKeys map[string]string `yaml:"api_keys"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite3" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9091"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/calendly.db"
	}
	if c.Availability.MaxRangeDays <= 0 {
		c.Availability.MaxRangeDays = 31
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "calendly"
	}
	if c.ICS.FloatingTimezone == "" {
		c.ICS.FloatingTimezone = "UTC"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "calendly.events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Schedules.Path == "" {
		c.Schedules.Path = "configs/schedules.yaml"
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute cannot be negative")
	}
	if c.Availability.MinLeadMinutes < 0 {
		return fmt.Errorf("availability.min_lead_minutes cannot be negative")
	}
	if _, err := time.LoadLocation(c.ICS.FloatingTimezone); err != nil {
		return fmt.Errorf("ics.floating_timezone: %w", err)
	}
	if c.Kafka.Enabled && strings.TrimSpace(c.Kafka.Brokers) == "" {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	for key, owner := range c.APIKeys {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(owner) == "" {
			return fmt.Errorf("api_keys: empty key or owner")
		}
	}
	return nil
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) MinLead() time.Duration {
	return time.Duration(c.Availability.MinLeadMinutes) * time.Minute
}

func (c *Config) ConflictTimeout() time.Duration {
	if c.Availability.ConflictTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Availability.ConflictTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Availability.CacheTTLSeconds) * time.Second
}

func (c *Config) BusyCacheTTL() time.Duration {
	return time.Duration(c.Availability.BusyCacheTTLSeconds) * time.Second
}

func (c *Config) ICSTimeout() time.Duration {
	if c.ICS.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ICS.TimeoutSeconds) * time.Second
}

func (c *Config) ScheduleWatchInterval() time.Duration {
	if c.Schedules.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Schedules.WatchIntervalSeconds) * time.Second
}
