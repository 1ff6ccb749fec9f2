package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the insights engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clients   ClientsConfig   `yaml:"clients"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups integrations with the document store.
type ClientsConfig struct {
	Store EventStoreConfig `yaml:"store"`
}

// EventStoreConfig configures access to the document-store event feed.
type EventStoreConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	EventsPath   string        `yaml:"eventsPath"`
	PaymentsPath string        `yaml:"paymentsPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SnapshotsConfig configures snapshot persistence and previous-score lookup.
type SnapshotsConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	ScoreTTL    time.Duration `yaml:"scoreTTL"`
	SnapshotTTL time.Duration `yaml:"snapshotTTL"`
}

// AnalyticsConfig externalizes the engine's windows, thresholds and cutoffs
// so they are injectable and tunable per deployment rather than hardcoded.
type AnalyticsConfig struct {
	WeekWindowDays       int                `yaml:"weekWindowDays"`
	MaxPeriods           int                `yaml:"maxPeriods"`
	BaselineWindowDays   int                `yaml:"baselineWindowDays"`
	WarnThresholdPct     float64            `yaml:"warnThresholdPct"`
	CriticalThresholdPct float64            `yaml:"criticalThresholdPct"`
	TrendEpsilonPct      float64            `yaml:"trendEpsilonPct"`
	ScoreCutoffs         ScoreCutoffsConfig `yaml:"scoreCutoffs"`
	// MetricDirections tags metrics whose deviation direction matters:
	// "higher-is-bad", "lower-is-bad" or "symmetric" (the default).
	MetricDirections map[string]string `yaml:"metricDirections"`
}

// ScoreCutoffsConfig holds the fixed risk-tier boundaries.
type ScoreCutoffsConfig struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls intervention rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls Valkey-backed caching of previous scores and the last
// computed snapshot.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PULSE_INSIGHTS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8085",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Store: EventStoreConfig{
				EventsPath:   "/api/v1/store/events",
				PaymentsPath: "/api/v1/store/payments",
				Timeout:      5 * time.Second,
			},
		},
		Snapshots: SnapshotsConfig{
			Timeout:     5 * time.Second,
			ScoreTTL:    24 * time.Hour,
			SnapshotTTL: time.Hour,
		},
		Analytics: AnalyticsConfig{
			WeekWindowDays:       7,
			MaxPeriods:           8,
			BaselineWindowDays:   7,
			WarnThresholdPct:     25,
			CriticalThresholdPct: 50,
			TrendEpsilonPct:      2,
			ScoreCutoffs:         ScoreCutoffsConfig{Critical: 30, High: 50, Medium: 70},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func validate(cfg *Config) error {
	a := cfg.Analytics
	if a.WeekWindowDays <= 0 {
		return fmt.Errorf("analytics.weekWindowDays must be positive")
	}
	if a.MaxPeriods < 0 {
		return fmt.Errorf("analytics.maxPeriods must not be negative")
	}
	if a.BaselineWindowDays <= 0 {
		return fmt.Errorf("analytics.baselineWindowDays must be positive")
	}
	if a.WarnThresholdPct <= 0 || a.CriticalThresholdPct <= a.WarnThresholdPct {
		return fmt.Errorf("analytics severity thresholds must satisfy 0 < warn < critical")
	}
	c := a.ScoreCutoffs
	if !(c.Critical < c.High && c.High < c.Medium) {
		return fmt.Errorf("analytics.scoreCutoffs must satisfy critical < high < medium")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSE_INSIGHTS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PULSE_STORE_BASE_URL"); v != "" {
		cfg.Clients.Store.BaseURL = v
	}
	if v := os.Getenv("PULSE_STORE_EVENTS_PATH"); v != "" {
		cfg.Clients.Store.EventsPath = v
	}
	if v := os.Getenv("PULSE_STORE_PAYMENTS_PATH"); v != "" {
		cfg.Clients.Store.PaymentsPath = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_SNAPSHOTS_URL"); v != "" {
		cfg.Snapshots.Endpoint = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_SNAPSHOTS_API_KEY"); v != "" {
		cfg.Snapshots.APIKey = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("PULSE_INSIGHTS_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_BASELINE_WINDOW_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.BaselineWindowDays = days
		}
	}
	if v := os.Getenv("PULSE_INSIGHTS_MAX_PERIODS"); v != "" {
		if periods, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.MaxPeriods = periods
		}
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("PULSE_INSIGHTS_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("PULSE_INSIGHTS_SCORE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshots.ScoreTTL = d
		}
	}
	if v := os.Getenv("PULSE_INSIGHTS_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshots.SnapshotTTL = d
		}
	}
}
