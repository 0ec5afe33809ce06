package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/hl7/pkg/hl7"
)

type Config struct {
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	HTTPPort           string        `mapstructure:"HTTP_PORT"`
	MLLPAddr           string        `mapstructure:"MLLP_ADDR"`
	MLLPMaxMessageSize int           `mapstructure:"MLLP_MAX_MESSAGE_SIZE"`
	MLLPReadTimeout    time.Duration `mapstructure:"MLLP_READ_TIMEOUT"`
	HL7Encoding        string        `mapstructure:"HL7_ENCODING"`
	AckApplication     string        `mapstructure:"ACK_APPLICATION"`
	AckFacility        string        `mapstructure:"ACK_FACILITY"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	BatchBodyLimit     string        `mapstructure:"BATCH_BODY_LIMIT"`
}

var keys = []string{
	"ENV", "LOG_LEVEL", "HTTP_PORT", "MLLP_ADDR", "MLLP_MAX_MESSAGE_SIZE",
	"MLLP_READ_TIMEOUT", "HL7_ENCODING", "ACK_APPLICATION", "ACK_FACILITY",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "BODY_LIMIT", "BATCH_BODY_LIMIT",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", "8000")
	v.SetDefault("MLLP_ADDR", ":2575")
	v.SetDefault("MLLP_MAX_MESSAGE_SIZE", 1<<20)
	v.SetDefault("MLLP_READ_TIMEOUT", "30s")
	v.SetDefault("HL7_ENCODING", "utf-8")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("BATCH_BODY_LIMIT", "16M")

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ArchiveEnabled reports whether inbound messages are persisted.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}

// Level returns the zerolog level named by LOG_LEVEL, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.HTTPPort == "" && c.MLLPAddr == "" {
		return fmt.Errorf("at least one of HTTP_PORT and MLLP_ADDR must be set")
	}
	if c.MLLPMaxMessageSize <= 0 {
		return fmt.Errorf("MLLP_MAX_MESSAGE_SIZE must be positive, got %d", c.MLLPMaxMessageSize)
	}
	if c.MLLPReadTimeout < 0 {
		return fmt.Errorf("MLLP_READ_TIMEOUT must not be negative, got %s", c.MLLPReadTimeout)
	}
	if _, err := hl7.LookupEncoding(c.HL7Encoding); err != nil {
		return fmt.Errorf("HL7_ENCODING: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
