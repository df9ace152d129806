package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host database
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.BaseURL == "" {
		issues = append(issues, ValidationIssue{Path: "server.baseUrl", Message: "is required"})
	} else if u, err := url.Parse(cfg.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, ValidationIssue{
			Path:    "server.baseUrl",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", cfg.Server.BaseURL),
		})
	}

	if cfg.Server.SocketURL != "" {
		if u, err := url.Parse(cfg.Server.SocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			issues = append(issues, ValidationIssue{
				Path:    "server.socketUrl",
				Message: fmt.Sprintf("must be a ws(s) URL, got %q", cfg.Server.SocketURL),
			})
		}
	}

	validPlatforms := []string{"terra", "ai_games"}
	if cfg.Server.Platform != "" && !slices.Contains(validPlatforms, cfg.Server.Platform) {
		issues = append(issues, ValidationIssue{
			Path:    "server.platform",
			Message: fmt.Sprintf("must be one of %v, got %q", validPlatforms, cfg.Server.Platform),
		})
	}

	// Transport validation
	if cfg.Transport.Timeout < 0 {
		issues = append(issues, ValidationIssue{Path: "transport.timeout", Message: "must not be negative"})
	}
	if cfg.Transport.ReconnectAttempts < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "transport.reconnectAttempts",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Transport.ReconnectAttempts),
		})
	}
	if cfg.Transport.ReconnectDelay < 0 || cfg.Transport.ReconnectDelay > 5*time.Minute {
		issues = append(issues, ValidationIssue{
			Path:    "transport.reconnectDelay",
			Message: fmt.Sprintf("must be between 0 and 5m, got %s", cfg.Transport.ReconnectDelay),
		})
	}
	if cfg.Transport.OutboxSize < 0 {
		issues = append(issues, ValidationIssue{Path: "transport.outboxSize", Message: "must not be negative"})
	}

	if cfg.HTTP.RetryMax < 0 || cfg.HTTP.RetryMax > 10 {
		issues = append(issues, ValidationIssue{
			Path:    "http.retryMax",
			Message: fmt.Sprintf("must be 0-10, got %d", cfg.HTTP.RetryMax),
		})
	}

	if cfg.Display.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Display.Timezone); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "display.timezone",
				Message: fmt.Sprintf("unknown time zone %q", cfg.Display.Timezone),
			})
		}
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
