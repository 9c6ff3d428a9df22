package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the runtime configuration for the relay server.
type Config struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"` // empty serves /metrics on Addr
	LogLevel    string `yaml:"log_level"`
	LogColor    bool   `yaml:"log_color"`
	CORSOrigin  string `yaml:"cors_origin"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	MJPEGInterval    time.Duration `yaml:"mjpeg_interval"`
	MJPEGMaxClients  int           `yaml:"mjpeg_max_clients"` // 0 = unbounded
	MJPEGPlaceholder bool          `yaml:"mjpeg_placeholder"`

	WriteTimeout  time.Duration `yaml:"write_timeout"`
	PingInterval  time.Duration `yaml:"ping_interval"` // 0 disables websocket pings
	ReadLimit     int64         `yaml:"read_limit"`
	StatsInterval time.Duration `yaml:"stats_interval"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the optional event publisher.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // host:port, empty disables publishing
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	FrameEvents bool   `yaml:"frame_events"`
}

// DefaultConfig returns a config aligned with the detector's expectations
// (relay on :8010, ~30fps MJPEG).
func DefaultConfig() Config {
	return Config{
		Addr:          ":8010",
		LogLevel:      "info",
		LogColor:      true,
		CORSOrigin:    "*",
		MaxBodyBytes:  16 << 20,
		MJPEGInterval: 33 * time.Millisecond,
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		ReadLimit:     64 << 10,
		StatsInterval: 2 * time.Second,
		MQTT: MQTTConfig{
			TopicPrefix: "fire-relay",
		},
	}
}

// Load reads a YAML file on top of DefaultConfig and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.MJPEGInterval <= 0 {
		errs = append(errs, fmt.Errorf("mjpeg_interval must be positive, got %v", c.MJPEGInterval))
	}
	if c.MJPEGMaxClients < 0 {
		errs = append(errs, fmt.Errorf("mjpeg_max_clients must be >= 0, got %d", c.MJPEGMaxClients))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout))
	}
	if c.PingInterval < 0 {
		errs = append(errs, fmt.Errorf("ping_interval must be >= 0, got %v", c.PingInterval))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats_interval must be positive, got %v", c.StatsInterval))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = def.CORSOrigin
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.MJPEGInterval == 0 {
		c.MJPEGInterval = def.MJPEGInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = def.ReadLimit
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = def.StatsInterval
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	return c
}
