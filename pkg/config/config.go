package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines runtime settings for gridbridge.
type Config struct {
	LogLevel  string        `yaml:"logLevel"`
	LogFormat string        `yaml:"logFormat"`
	Gateway   GatewayConfig `yaml:"gateway"`
	Exec      ExecConfig    `yaml:"exec"`
	Scripts   ScriptsConfig `yaml:"scripts"`
	Engines   EnginesConfig `yaml:"engines"`
}

type GatewayConfig struct {
	Address         string   `yaml:"address"`
	AllowedAddrs    []string `yaml:"allowedAddrs"`
	AllowedOrigins  []string `yaml:"allowedOrigins"`
	MaxInFlight     int      `yaml:"maxInFlight"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes"`
	ShutdownTimeout string   `yaml:"shutdownTimeout"`
}

type ExecConfig struct {
	Timeout    string `yaml:"timeout"`
	MaxTimeout string `yaml:"maxTimeout"`
	MaxSteps   uint64 `yaml:"maxSteps"`
	MaxOutput  int    `yaml:"maxOutput"`
}

type ScriptsConfig struct {
	Paths []string `yaml:"paths"`
	Watch bool     `yaml:"watch"`
}

type EnginesConfig struct {
	Default string       `yaml:"default"`
	Allow   []string     `yaml:"allow"`
	Block   []string     `yaml:"block"`
	Python  PythonConfig `yaml:"python"`
}

type PythonConfig struct {
	Instance    string   `yaml:"instance"`
	PythonPaths []string `yaml:"pythonPaths"`
}

// Default returns the settings used when no file or environment says
// otherwise.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Gateway: GatewayConfig{
			Address:         "127.0.0.1:5001",
			AllowedOrigins:  []string{"*"},
			MaxInFlight:     8,
			MaxBodyBytes:    32 << 20,
			ShutdownTimeout: "5s",
		},
		Exec: ExecConfig{
			Timeout:    "10s",
			MaxTimeout: "60s",
			MaxSteps:   50_000_000,
			MaxOutput:  1 << 20,
		},
		Scripts: ScriptsConfig{
			Paths: []string{"~/.gridbridge/scripts"},
			Watch: true,
		},
		Engines: EnginesConfig{
			Default: "starlark",
			Allow:   []string{"starlark"},
		},
	}
}

// LoadConfig loads configuration from a YAML file and environment overrides.
// An empty path falls back to DefaultConfigPath when that file exists.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("GRIDBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GRIDBRIDGE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("GRIDBRIDGE_ADDR"); v != "" {
		cfg.Gateway.Address = v
	}
	if v := os.Getenv("GRIDBRIDGE_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("GRIDBRIDGE_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIDBRIDGE_MAX_IN_FLIGHT: %w", err)
		}
		cfg.Gateway.MaxInFlight = n
	}
	if v := os.Getenv("GRIDBRIDGE_EXEC_TIMEOUT"); v != "" {
		cfg.Exec.Timeout = v
	}
	if v := os.Getenv("GRIDBRIDGE_SCRIPTS_PATH"); v != "" {
		cfg.Scripts.Paths = filepath.SplitList(v)
	}
	if v := os.Getenv("GRIDBRIDGE_ENGINES"); v != "" {
		cfg.Engines.Allow = splitList(v)
	}
	return nil
}

// Validate checks durations and limits.
func (c *Config) Validate() error {
	var problems []string
	for name, value := range map[string]string{
		"exec.timeout":            c.Exec.Timeout,
		"exec.maxTimeout":         c.Exec.MaxTimeout,
		"gateway.shutdownTimeout": c.Gateway.ShutdownTimeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if c.Gateway.MaxInFlight < 0 {
		problems = append(problems, "gateway.maxInFlight must not be negative")
	}
	if c.Exec.MaxOutput < 0 {
		problems = append(problems, "exec.maxOutput must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) ExecTimeout() time.Duration {
	return parseDuration(c.Exec.Timeout)
}

func (c *Config) ExecMaxTimeout() time.Duration {
	return parseDuration(c.Exec.MaxTimeout)
}

func (c *Config) ShutdownTimeout() time.Duration {
	if d := parseDuration(c.Gateway.ShutdownTimeout); d > 0 {
		return d
	}
	return 5 * time.Second
}

// ScriptPaths returns the script library paths with ~ expanded.
func (c *Config) ScriptPaths() []string {
	out := make([]string, 0, len(c.Scripts.Paths))
	for _, p := range c.Scripts.Paths {
		if p == "" {
			continue
		}
		out = append(out, ExpandPath(p))
	}
	return out
}

// DefaultConfigPath returns the default location for the CLI config file.
func DefaultConfigPath() string {
	if path := os.Getenv("GRIDBRIDGE_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gridbridge", "config.yaml")
}

func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
