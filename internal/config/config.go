package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	defaultBaseURL  = "http://localhost:3500"
	defaultPlatform = "terra"
	defaultTimezone = "Asia/Kolkata"
	defaultClock    = "15:04:05"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:  defaultBaseURL,
			Platform: defaultPlatform,
		},
		Transport: TransportConfig{
			Timeout:           20 * time.Minute,
			HandshakeTimeout:  15 * time.Second,
			Reconnect:         true,
			ReconnectAttempts: 5,
			ReconnectDelay:    2 * time.Second,
			OutboxSize:        64,
		},
		HTTP: HTTPConfig{
			Timeout:  30 * time.Second,
			RetryMax: 2,
		},
		Display: DisplayConfig{
			Timezone:    defaultTimezone,
			ClockFormat: defaultClock,
		},
		Logging: LoggingConfig{
			Level:        "warn",
			ConsoleStyle: "pretty",
		},
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.Server.Token != "" {
		c.Server.Token = "********"
	}
	return c
}
