package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	MetricsPort         string `mapstructure:"metrics_port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

type DatabaseCfg struct {
	DSN string `mapstructure:"dsn"`
}

type CryptoCfg struct {
	// Key is hex-encoded 32-byte AES key material.
	Key string `mapstructure:"key"`
}

type VideoCfg struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	TokenSecret     string `mapstructure:"token_secret"`
	TokenTTLSeconds int    `mapstructure:"token_ttl_seconds"`
}

type LoggerCfg struct {
	Development bool `mapstructure:"development"`
}

type LimitsCfg struct {
	EventsPerMinute int   `mapstructure:"events_per_minute"`
	EventBurst      int   `mapstructure:"event_burst"`
	MaxMessageSize  int64 `mapstructure:"max_message_size"`
}

type Config struct {
	Server   ServerCfg   `mapstructure:"server"`
	Database DatabaseCfg `mapstructure:"database"`
	Crypto   CryptoCfg   `mapstructure:"crypto"`
	Video    VideoCfg    `mapstructure:"video"`
	Logger   LoggerCfg   `mapstructure:"logger"`
	Limits   LimitsCfg   `mapstructure:"limits"`

	// Derived
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	VideoTokenTTL time.Duration
}

// Load reads the config file and applies env overrides (APP_ prefix).
// The encryption key is validated here: a missing or wrong-length key must
// stop the process before any connection is accepted.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if _, err := cfg.EncryptionKey(); err != nil {
		return nil, err
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8084"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9100"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Limits.EventsPerMinute == 0 {
		cfg.Limits.EventsPerMinute = 300
	}
	if cfg.Limits.EventBurst == 0 {
		cfg.Limits.EventBurst = 20
	}
	if cfg.Limits.MaxMessageSize == 0 {
		cfg.Limits.MaxMessageSize = 64 * 1024
	}
	if cfg.Video.TokenTTLSeconds == 0 {
		cfg.Video.TokenTTLSeconds = 300
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.VideoTokenTTL = time.Duration(cfg.Video.TokenTTLSeconds) * time.Second
	return &cfg, nil
}

// EncryptionKey decodes and validates the configured key material.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Crypto.Key == "" {
		return nil, fmt.Errorf("crypto.key is not set")
	}
	key, err := hex.DecodeString(c.Crypto.Key)
	if err != nil {
		return nil, fmt.Errorf("crypto.key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto.key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
