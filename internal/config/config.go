// Package config loads package-guard settings.
// Values resolve from (highest to lowest priority):
// 1. Environment variables (PACKAGE_GUARD_*, CLICKHOUSE_DSN, POSTGRES_DSN)
// 2. YAML file (--config flag or PACKAGE_GUARD_CONFIG)
// 3. Defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/triage-ai/palisade/package_guard/internal/engine"
	"github.com/triage-ai/palisade/package_guard/internal/hook"
	"github.com/triage-ai/palisade/package_guard/internal/reputation"
	"github.com/triage-ai/palisade/package_guard/internal/storage"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfigPath     = "PACKAGE_GUARD_CONFIG"
	EnvLogLevel       = "PACKAGE_GUARD_LOG_LEVEL"
	EnvAuditDir       = storage.RootEnv
	EnvShellTools     = "PACKAGE_GUARD_SHELL_TOOLS"
	EnvSocketBinary   = "PACKAGE_GUARD_SOCKET_BIN"
	EnvScoreTimeoutMs = "PACKAGE_GUARD_SCORE_TIMEOUT_MS"
	EnvMaxOutputBytes = "PACKAGE_GUARD_MAX_OUTPUT_BYTES"
	EnvStdinTimeoutMs = "PACKAGE_GUARD_STDIN_TIMEOUT_MS"
	EnvClickHouseDSN  = "CLICKHOUSE_DSN"
	EnvPostgresDSN    = "POSTGRES_DSN"
)

// DefaultLogLevel keeps stderr quiet unless something goes wrong.
const DefaultLogLevel = "warn"

// Config holds all package-guard settings.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// AuditDir overrides the audit root. Empty means storage.ResolveRoot picks it.
	AuditDir string `yaml:"audit_dir"`

	// ShellTools are the tool names whose input is a shell command.
	ShellTools []string `yaml:"shell_tools"`

	Hook       HookConfig       `yaml:"hook"`
	Reputation ReputationConfig `yaml:"reputation"`
	Sinks      SinksConfig      `yaml:"sinks"`
}

// HookConfig bounds reading the host payload.
type HookConfig struct {
	StdinTimeout  time.Duration `yaml:"stdin_timeout"`
	MaxInputBytes int64         `yaml:"max_input_bytes"`
}

// ReputationConfig configures the external scoring tool.
type ReputationConfig struct {
	Binary         string        `yaml:"binary"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxOutputBytes int64         `yaml:"max_output_bytes"`
}

// SinksConfig enables optional remote audit sinks.
type SinksConfig struct {
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:   DefaultLogLevel,
		ShellTools: []string{engine.DefaultShellTool},
		Hook: HookConfig{
			StdinTimeout:  hook.DefaultReadTimeout,
			MaxInputBytes: hook.DefaultMaxInputBytes,
		},
		Reputation: ReputationConfig{
			Binary:         reputation.DefaultBinary,
			Timeout:        reputation.DefaultTimeout,
			MaxOutputBytes: reputation.DefaultMaxOutputBytes,
		},
	}
}

// Load resolves configuration. path may be empty, in which case
// PACKAGE_GUARD_CONFIG is consulted; with neither set no file is read.
// A named file that cannot be read or parsed is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

// loadFile decodes path over cfg; keys absent from the file keep their value.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = envOrDefault(EnvLogLevel, cfg.LogLevel)
	cfg.AuditDir = envOrDefault(EnvAuditDir, cfg.AuditDir)
	if v := os.Getenv(EnvShellTools); v != "" {
		cfg.ShellTools = splitList(v)
	}

	cfg.Reputation.Binary = envOrDefault(EnvSocketBinary, cfg.Reputation.Binary)
	cfg.Reputation.Timeout = envOrDefaultMillis(EnvScoreTimeoutMs, cfg.Reputation.Timeout)
	cfg.Reputation.MaxOutputBytes = envOrDefaultInt64(EnvMaxOutputBytes, cfg.Reputation.MaxOutputBytes)
	cfg.Hook.StdinTimeout = envOrDefaultMillis(EnvStdinTimeoutMs, cfg.Hook.StdinTimeout)

	cfg.Sinks.ClickHouseDSN = envOrDefault(EnvClickHouseDSN, cfg.Sinks.ClickHouseDSN)
	cfg.Sinks.PostgresDSN = envOrDefault(EnvPostgresDSN, cfg.Sinks.PostgresDSN)
}

// normalize restores defaults for values a file or env zeroed out.
func (c *Config) normalize() {
	def := Default()
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if len(c.ShellTools) == 0 {
		c.ShellTools = def.ShellTools
	}
	if c.Hook.StdinTimeout <= 0 {
		c.Hook.StdinTimeout = def.Hook.StdinTimeout
	}
	if c.Hook.MaxInputBytes <= 0 {
		c.Hook.MaxInputBytes = def.Hook.MaxInputBytes
	}
	if c.Reputation.Binary == "" {
		c.Reputation.Binary = def.Reputation.Binary
	}
	if c.Reputation.Timeout <= 0 {
		c.Reputation.Timeout = def.Reputation.Timeout
	}
	if c.Reputation.MaxOutputBytes <= 0 {
		c.Reputation.MaxOutputBytes = def.Reputation.MaxOutputBytes
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultMillis(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
