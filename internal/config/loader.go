package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Existing variables win. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			cfg.Server.Token = expandEnvVars(cfg.Server.Token)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	cfg.Server.Token = expandEnvVars(cfg.Server.Token)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields that an explicit YAML file blanked out.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = d.Server.BaseURL
	}
	if cfg.Server.Platform == "" {
		cfg.Server.Platform = d.Server.Platform
	}
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = d.Transport.Timeout
	}
	if cfg.Transport.HandshakeTimeout == 0 {
		cfg.Transport.HandshakeTimeout = d.Transport.HandshakeTimeout
	}
	if cfg.Transport.ReconnectAttempts == 0 {
		cfg.Transport.ReconnectAttempts = d.Transport.ReconnectAttempts
	}
	if cfg.Transport.ReconnectDelay == 0 {
		cfg.Transport.ReconnectDelay = d.Transport.ReconnectDelay
	}
	if cfg.Transport.OutboxSize == 0 {
		cfg.Transport.OutboxSize = d.Transport.OutboxSize
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = d.HTTP.Timeout
	}
	if cfg.Display.Timezone == "" {
		cfg.Display.Timezone = d.Display.Timezone
	}
	if cfg.Display.ClockFormat == "" {
		cfg.Display.ClockFormat = d.Display.ClockFormat
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads QUERYDESK_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUERYDESK_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("QUERYDESK_SOCKET_URL"); v != "" {
		cfg.Server.SocketURL = v
	}
	if v := os.Getenv("QUERYDESK_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("QUERYDESK_PLATFORM"); v != "" {
		cfg.Server.Platform = v
	}
	if v := os.Getenv("QUERYDESK_TIMEZONE"); v != "" {
		cfg.Display.Timezone = v
	}
	if v := os.Getenv("QUERYDESK_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.ReconnectAttempts = n
		}
	}
	if v := os.Getenv("QUERYDESK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.Timeout = d
		}
	}
	if v := os.Getenv("QUERYDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// FromRaw decodes a raw config map the way Load decodes a file, without
// environment overrides. It is used to check an edit before it is saved.
func FromRaw(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "invalid config: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}
