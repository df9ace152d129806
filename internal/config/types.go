package config

import "time"

// Config is the root configuration for querydesk.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Transport TransportConfig `yaml:"transport,omitempty"`
	HTTP      HTTPConfig      `yaml:"http,omitempty"`
	Display   DisplayConfig   `yaml:"display,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	State     StateConfig     `yaml:"state,omitempty"`
}

// ServerConfig locates the analytics backend.
type ServerConfig struct {
	BaseURL   string `yaml:"baseUrl,omitempty"`   // REST side-channel root
	SocketURL string `yaml:"socketUrl,omitempty"` // derived from BaseURL when empty
	Token     string `yaml:"token,omitempty"`     // supports ${ENV_VAR}
	Platform  string `yaml:"platform,omitempty"`  // default platform for new sessions
}

// SocketEndpoint returns the WebSocket URL, deriving it from BaseURL
// (http → ws, https → wss, path /ws) when SocketURL is unset.
func (s ServerConfig) SocketEndpoint() string {
	if s.SocketURL != "" {
		return s.SocketURL
	}
	base := s.BaseURL
	switch {
	case len(base) >= 8 && base[:8] == "https://":
		base = "wss://" + base[8:]
	case len(base) >= 7 && base[:7] == "http://":
		base = "ws://" + base[7:]
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/ws"
}

// TransportConfig controls the persistent pipeline connection.
type TransportConfig struct {
	Timeout           time.Duration `yaml:"timeout,omitempty"` // max round-trip silence
	HandshakeTimeout  time.Duration `yaml:"handshakeTimeout,omitempty"`
	Reconnect         bool          `yaml:"reconnect"`
	ReconnectAttempts int           `yaml:"reconnectAttempts,omitempty"`
	ReconnectDelay    time.Duration `yaml:"reconnectDelay,omitempty"`
	OutboxSize        int           `yaml:"outboxSize,omitempty"` // frames buffered while disconnected
}

// HTTPConfig controls the REST side-channel client.
type HTTPConfig struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	RetryMax int           `yaml:"retryMax,omitempty"`
}

// DisplayConfig controls how timestamps are rendered.
type DisplayConfig struct {
	Timezone    string `yaml:"timezone,omitempty"`
	ClockFormat string `yaml:"clockFormat,omitempty"` // Go layout
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// StateConfig locates the local state database.
type StateConfig struct {
	Path string `yaml:"path,omitempty"` // default <base>/data/state.db
}
