package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Recognized environment keys
const (
	EnvPort          = "PORT"
	EnvHost          = "CALCMATE_HOST"
	EnvLogLevel      = "CALCMATE_LOG_LEVEL"
	EnvAuditDB       = "CALCMATE_AUDIT_DB"
	EnvMCPAddress    = "CALCMATE_MCP_ADDRESS"
	EnvOTLPEndpoint  = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
	EnvAuditEnabled  = "CALCMATE_AUDIT_ENABLED"
	EnvMCPEnabled    = "CALCMATE_MCP_ENABLED"
	EnvTelemetryOn   = "CALCMATE_TELEMETRY_ENABLED"
	EnvRateLimitRate = "CALCMATE_RATE_LIMIT"
)

var envKeys = []string{
	EnvPort, EnvHost, EnvLogLevel, EnvAuditDB, EnvMCPAddress, EnvOTLPEndpoint,
	EnvAuditEnabled, EnvMCPEnabled, EnvTelemetryOn, EnvRateLimitRate,
}

// EnvPath returns the .env file path
func EnvPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// LoadEnv reads the .env file in the config directory, then overlays the
// process environment, which always wins. A missing .env file is not an error.
func LoadEnv() (map[string]string, error) {
	env := make(map[string]string)

	envPath, err := EnvPath()
	if err == nil {
		if _, statErr := os.Stat(envPath); statErr == nil {
			values, err := godotenv.Read(envPath)
			if err != nil {
				return nil, fmt.Errorf("failed to parse env file: %w", err)
			}
			for _, key := range envKeys {
				if v, ok := values[key]; ok {
					env[key] = v
				}
			}
		}
	}

	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides configuration fields with environment values
func (c *Config) ApplyEnv(env map[string]string) error {
	if v := strings.TrimSpace(env[EnvPort]); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: %s must be an integer, got %q", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v := strings.TrimSpace(env[EnvHost]); v != "" {
		c.Server.Host = v
	}
	if v := strings.TrimSpace(env[EnvLogLevel]); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(env[EnvAuditDB]); v != "" {
		c.Audit.DBPath = v
	}
	if v := strings.TrimSpace(env[EnvMCPAddress]); v != "" {
		c.MCP.Address = v
	}
	if v := strings.TrimSpace(env[EnvOTLPEndpoint]); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(env[EnvRateLimitRate]); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config error: %s must be a number, got %q", EnvRateLimitRate, v)
		}
		c.Server.RateLimit.RequestsPerSecond = rps
	}

	for key, target := range map[string]*bool{
		EnvAuditEnabled: &c.Audit.Enabled,
		EnvMCPEnabled:   &c.MCP.Enabled,
		EnvTelemetryOn:  &c.Telemetry.Enabled,
	} {
		v := strings.TrimSpace(env[key])
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: %s must be a boolean, got %q", key, v)
		}
		*target = b
	}

	return nil
}
