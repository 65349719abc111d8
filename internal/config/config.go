package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hession/calcmate/internal/logger"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		// Default to ./config in current working directory
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MCP       MCPConfig       `yaml:"mcp"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig HTTP transport configuration
type ServerConfig struct {
	Host                   string          `yaml:"host"`
	Port                   int             `yaml:"port"`
	ReadTimeoutSeconds     int             `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int             `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int             `yaml:"shutdown_timeout_seconds"`
	CORSAllowedOrigins     []string        `yaml:"cors_allowed_origins"`
	RateLimit              RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig per-client request rate limit; zero requests per second disables it
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxClients        int     `yaml:"max_clients"` // limiter buckets kept at once
	// TrustedProxies are addresses or CIDR ranges allowed to name the client
	// through X-Forwarded-For / X-Real-IP; empty means the peer is the client
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// MCPConfig Model Context Protocol transport configuration
type MCPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Address       string `yaml:"address"`
	ServerName    string `yaml:"server_name"`
	ServerVersion string `yaml:"server_version"`
}

// AuditConfig invocation audit log configuration
type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DBPath       string `yaml:"db_path"`
	DefaultLimit int    `yaml:"default_limit"`
}

// LogConfig logger configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"` // empty means <config dir>/logs
	MaxDays    int    `yaml:"max_days"`
	ConsoleOut bool   `yaml:"console_out"`
}

// TelemetryConfig OpenTelemetry metrics export configuration
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	ServiceName string            `yaml:"service_name"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	IntervalSec int               `yaml:"interval_seconds"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			ShutdownTimeoutSeconds: 10,
			CORSAllowedOrigins:     []string{"*"},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 0,
				Burst:             20,
				MaxClients:        10000,
			},
		},
		MCP: MCPConfig{
			Enabled:       false,
			Address:       ":3000",
			ServerName:    "calcmate",
			ServerVersion: "1.0.0",
		},
		Audit: AuditConfig{
			Enabled:      true,
			DBPath:       filepath.Join(homeDir, ".calcmate", "audit.db"),
			DefaultLimit: 20,
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "calcmate",
			Insecure:    true,
			IntervalSec: 30,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and overlays the environment
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig() // Use default values as base

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create default config
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, err
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure config directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Serialize config
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	// Add header comment
	content := "# CalcMate Configuration File\n# Environment overrides: PORT, CALCMATE_HOST, CALCMATE_LOG_LEVEL, CALCMATE_AUDIT_DB, CALCMATE_MCP_ADDRESS\n\n" + string(data)

	// Write file
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: server.port must be between 1 and 65535")
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("config error: server.read_timeout_seconds must be greater than 0")
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("config error: server.write_timeout_seconds must be greater than 0")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config error: server.shutdown_timeout_seconds must be greater than 0")
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("config error: server.rate_limit.requests_per_second cannot be negative")
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst <= 0 {
		return fmt.Errorf("config error: server.rate_limit.burst must be greater than 0 when rate limiting is enabled")
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.MaxClients <= 0 {
		return fmt.Errorf("config error: server.rate_limit.max_clients must be greater than 0 when rate limiting is enabled")
	}
	for _, proxy := range c.Server.RateLimit.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("config error: server.rate_limit.trusted_proxies: %q is not an IP address or CIDR range", proxy)
		}
	}

	// Validate MCP config
	if c.MCP.Enabled {
		if _, _, err := net.SplitHostPort(c.MCP.Address); err != nil {
			return fmt.Errorf("config error: mcp.address is invalid: %w", err)
		}
		if strings.TrimSpace(c.MCP.ServerName) == "" {
			return fmt.Errorf("config error: mcp.server_name cannot be empty")
		}
	}

	// Validate audit config
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return fmt.Errorf("config error: audit.db_path cannot be empty")
	}
	if c.Audit.DefaultLimit <= 0 {
		return fmt.Errorf("config error: audit.default_limit must be greater than 0")
	}

	// Validate log config
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config error: log.level: %w", err)
	}

	// Validate telemetry config
	if c.Telemetry.Enabled {
		if strings.TrimSpace(c.Telemetry.Endpoint) == "" {
			return fmt.Errorf("config error: telemetry.endpoint cannot be empty")
		}
		if c.Telemetry.IntervalSec <= 0 {
			return fmt.Errorf("config error: telemetry.interval_seconds must be greater than 0")
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// ReadTimeout returns the read timeout as a duration
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LogDirectory returns the configured log directory, defaulting under the config dir
func (c *Config) LogDirectory() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return LogDir()
}

// LoggerConfig converts the log section for logger.Init
func (c *Config) LoggerConfig() logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Config{
		LogDir:     c.LogDirectory(),
		Level:      level,
		MaxDays:    c.Log.MaxDays,
		ConsoleOut: c.Log.ConsoleOut,
	}
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`CalcMate Configuration:
  Server:
    Address: %s
    Timeouts: read %ds, write %ds, shutdown %ds
    CORS Allowed Origins: %s
    Rate Limit: %s
  MCP:
    Enabled: %v
    Address: %s
    Server: %s %s
  Audit:
    Enabled: %v
    DB Path: %s
    Default Limit: %d
  Log:
    Level: %s
    Dir: %s
    Max Days: %d
    Console Out: %v
  Telemetry:
    Enabled: %v
    Endpoint: %s
    Service Name: %s
    Insecure: %v
    Headers: %s`,
		c.Server.Addr(),
		c.Server.ReadTimeoutSeconds,
		c.Server.WriteTimeoutSeconds,
		c.Server.ShutdownTimeoutSeconds,
		strings.Join(c.Server.CORSAllowedOrigins, ", "),
		describeRateLimit(c.Server.RateLimit),
		c.MCP.Enabled,
		c.MCP.Address,
		c.MCP.ServerName,
		c.MCP.ServerVersion,
		c.Audit.Enabled,
		c.Audit.DBPath,
		c.Audit.DefaultLimit,
		c.Log.Level,
		c.LogDirectory(),
		c.Log.MaxDays,
		c.Log.ConsoleOut,
		c.Telemetry.Enabled,
		c.Telemetry.Endpoint,
		c.Telemetry.ServiceName,
		c.Telemetry.Insecure,
		redactHeaders(c.Telemetry.Headers),
	)
}

func describeRateLimit(rl RateLimitConfig) string {
	if rl.RequestsPerSecond <= 0 {
		return "(disabled)"
	}
	desc := fmt.Sprintf("%g req/s, burst %d", rl.RequestsPerSecond, rl.Burst)
	if len(rl.TrustedProxies) > 0 {
		desc += ", trusted proxies " + strings.Join(rl.TrustedProxies, ", ")
	}
	return desc
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

// redactHeaders lists header names only; values usually carry credentials
func redactHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(headers))
	for name, value := range headers {
		names = append(names, name+"="+redactSecret(value))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func redactSecret(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
