package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names for reaching the remote rule service
const (
	TransportHTTP = "http"
	TransportNATS = "nats"
)

type Config struct {
	Service ServiceConfig `json:"service" yaml:"service"`
	NATS    NATSConfig    `json:"nats" yaml:"nats"`
	MQTT    MQTTConfig    `json:"mqtt" yaml:"mqtt"`
	Logging LogConfig     `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Console ConsoleConfig `json:"console" yaml:"console"`
	Auth    AuthConfig    `json:"auth" yaml:"auth"`
}

type ServiceConfig struct {
	Transport string `json:"transport" yaml:"transport"` // http or nats
	BaseURL   string `json:"baseURL" yaml:"baseURL"`
	Token     string `json:"token" yaml:"token"`
	Timeout   string `json:"timeout" yaml:"timeout"` // Duration string
}

type TLSConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	CAFile   string `json:"caFile" yaml:"caFile"`
}

type NATSConfig struct {
	URLs          []string  `json:"urls" yaml:"urls"`
	ClientID      string    `json:"clientId" yaml:"clientId"`
	Username      string    `json:"username" yaml:"username"`
	Password      string    `json:"password" yaml:"password"`
	SubjectPrefix string    `json:"subjectPrefix" yaml:"subjectPrefix"`
	TLS           TLSConfig `json:"tls" yaml:"tls"`
}

// MQTTConfig configures the optional queue stats feed. An empty broker
// disables it and stats are read from the rule service instead.
type MQTTConfig struct {
	Broker     string    `json:"broker" yaml:"broker"`
	ClientID   string    `json:"clientId" yaml:"clientId"`
	Username   string    `json:"username" yaml:"username"`
	Password   string    `json:"password" yaml:"password"`
	StatsTopic string    `json:"statsTopic" yaml:"statsTopic"`
	QoS        byte      `json:"qos" yaml:"qos"`
	MaxAge     string    `json:"maxAge" yaml:"maxAge"` // Duration string
	TLS        TLSConfig `json:"tls" yaml:"tls"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path, "stdout" or "stderr"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
	Path    string `json:"path" yaml:"path"`
}

type ConsoleConfig struct {
	PollInterval            string `json:"pollInterval" yaml:"pollInterval"`     // Duration string
	RequestTimeout          string `json:"requestTimeout" yaml:"requestTimeout"` // Duration string
	PageSize                int    `json:"pageSize" yaml:"pageSize"`
	DiscardEditsOnTabSwitch *bool  `json:"discardEditsOnTabSwitch" yaml:"discardEditsOnTabSwitch"`
	RetryAttempts           int    `json:"retryAttempts" yaml:"retryAttempts"`
	RetryBackoff            string `json:"retryBackoff" yaml:"retryBackoff"` // Duration string
}

type AuthConfig struct {
	Role         string   `json:"role" yaml:"role"`
	ManagerRoles []string `json:"managerRoles" yaml:"managerRoles"`
}

// Load reads and parses the configuration file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied and no file
// backing it.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Service
	if c.Service.Transport == "" {
		c.Service.Transport = TransportHTTP
	}
	if c.Service.Timeout == "" {
		c.Service.Timeout = "15s"
	}

	// NATS
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "notify"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = "rule-console"
	}

	// MQTT
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "rule-console"
	}
	if c.MQTT.StatsTopic == "" {
		c.MQTT.StatsTopic = "notify/queue/stats"
	}
	if c.MQTT.MaxAge == "" {
		c.MQTT.MaxAge = "1m"
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stderr"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}

	// Metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	// Console
	if c.Console.PollInterval == "" {
		c.Console.PollInterval = "10s"
	}
	if c.Console.RequestTimeout == "" {
		c.Console.RequestTimeout = c.Service.Timeout
	}
	if c.Console.PageSize <= 0 {
		c.Console.PageSize = 50
	}
	if c.Console.DiscardEditsOnTabSwitch == nil {
		discard := true
		c.Console.DiscardEditsOnTabSwitch = &discard
	}
	if c.Console.RetryAttempts <= 0 {
		c.Console.RetryAttempts = 3
	}
	if c.Console.RetryBackoff == "" {
		c.Console.RetryBackoff = "500ms"
	}

	// Auth
	if len(c.Auth.ManagerRoles) == 0 {
		c.Auth.ManagerRoles = []string{"owner", "admin"}
	}
}

// Validate checks the configuration, typically again after ApplyOverrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	// Validate service config
	switch cfg.Service.Transport {
	case TransportHTTP:
		if cfg.Service.BaseURL == "" {
			return fmt.Errorf("service base URL is required for http transport")
		}
	case TransportNATS:
		if len(cfg.NATS.URLs) == 0 {
			return fmt.Errorf("at least one NATS URL is required for nats transport")
		}
		if err := validateTLS("nats", cfg.NATS.TLS); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid service transport: %s", cfg.Service.Transport)
	}

	durations := map[string]string{
		"service timeout":         cfg.Service.Timeout,
		"console poll interval":   cfg.Console.PollInterval,
		"console request timeout": cfg.Console.RequestTimeout,
		"console retry backoff":   cfg.Console.RetryBackoff,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	// Validate MQTT stats feed if configured
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1, or 2")
		}
		if _, err := time.ParseDuration(cfg.MQTT.MaxAge); err != nil {
			return fmt.Errorf("invalid mqtt max age: %w", err)
		}
		if err := validateTLS("mqtt", cfg.MQTT.TLS); err != nil {
			return err
		}
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Console.PageSize > 500 {
		return fmt.Errorf("console page size must not exceed 500")
	}

	return nil
}

func validateTLS(name string, tls TLSConfig) error {
	if !tls.Enable {
		return nil
	}
	if tls.CertFile == "" {
		return fmt.Errorf("%s tls cert file is required when tls is enabled", name)
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("%s tls key file is required when tls is enabled", name)
	}
	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(baseURL, role, logLevel, metricsAddr string, pollInterval time.Duration) {
	if baseURL != "" {
		c.Service.BaseURL = baseURL
	}
	if role != "" {
		c.Auth.Role = role
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
		c.Metrics.Enabled = true
	}
	if pollInterval > 0 {
		c.Console.PollInterval = pollInterval.String()
	}
}

// Durations parsed from the validated string fields. Load guarantees they
// parse, so errors fall back to the defaults.

func (c *ConsoleConfig) PollEvery() time.Duration {
	return parseOr(c.PollInterval, 10*time.Second)
}

func (c *ConsoleConfig) Timeout() time.Duration {
	return parseOr(c.RequestTimeout, 15*time.Second)
}

func (c *ConsoleConfig) Backoff() time.Duration {
	return parseOr(c.RetryBackoff, 500*time.Millisecond)
}

func (c *ConsoleConfig) DiscardEdits() bool {
	return c.DiscardEditsOnTabSwitch == nil || *c.DiscardEditsOnTabSwitch
}

func (c *ServiceConfig) RequestTimeout() time.Duration {
	return parseOr(c.Timeout, 15*time.Second)
}

func (c *MQTTConfig) StatsMaxAge() time.Duration {
	return parseOr(c.MaxAge, time.Minute)
}

func parseOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
