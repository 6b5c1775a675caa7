package log

import (
	"os"
	"strings"
)

// Config selects level, format (text or json) and destination. Output is
// "stderr", "stdout", "discard" or a file path.
type Config struct {
	Level     string `yaml:"level" toml:"level"`
	Format    string `yaml:"format" toml:"format"`
	Output    string `yaml:"output" toml:"output"`
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: "stderr"}
}

// NewConfigFromEnv reads MITEY_LOG_LEVEL, MITEY_LOG_FORMAT and MITEY_LOG_OUTPUT
// on top of the defaults.
func NewConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("MITEY_LOG_LEVEL"); v != "" {
		cfg.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MITEY_LOG_FORMAT"); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	if v := os.Getenv("MITEY_LOG_OUTPUT"); v != "" {
		cfg.Output = v
	}
	return cfg
}
