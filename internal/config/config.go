package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variables that override the agent settings from the config file
const (
	EnvAgentID        = "VOICE_AGENT_AGENT_ID"
	EnvBackendBaseURL = "VOICE_AGENT_BACKEND_URL"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig     `toml:"server"`     // HTTP server settings
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Storage    StorageConfig    `toml:"storage"`    // Settings persistence
	Agent      AgentConfig      `toml:"agent"`      // Voice agent identity and embedding
	Credential CredentialConfig `toml:"credential"` // Access credential requests
	Transport  TransportConfig  `toml:"transport"`  // Realtime voice transport
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir   string `toml:"static_files_dir"`      // Optional directory with stylesheets and icons served under /static/
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains settings persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path of the SQLite database holding the admin settings
}

// AgentConfig holds the initial agent settings. Once the settings store has been
// seeded, values saved through the admin page take precedence.
type AgentConfig struct {
	AgentID        string `toml:"agent_id"`         // Agent identifier sent to the backend
	BackendBaseURL string `toml:"backend_base_url"` // Base URL of the backend exposing /create-web-call
	ContainerID    string `toml:"container_id"`     // DOM id of the element the widget is mounted into
	Locale         string `toml:"locale"`           // UI copy: "en" or "de"
}

// CredentialConfig contains settings for the access credential request
type CredentialConfig struct {
	// RequestTimeoutSecs bounds the /create-web-call request. 0 disables the
	// timeout, which matches the behavior of the embedded widget.
	RequestTimeoutSecs int `toml:"request_timeout_seconds"`
}

// TransportConfig contains settings for the realtime voice transport
type TransportConfig struct {
	Type                 string `toml:"type"`                      // "websocket" or "scripted"
	URL                  string `toml:"url"`                       // Realtime endpoint dialed with the access token (websocket only)
	HandshakeTimeoutSecs int    `toml:"handshake_timeout_seconds"` // Websocket handshake timeout
	StartTimeoutSecs     int    `toml:"start_timeout_seconds"`     // Bound on StartCall; 0 disables it
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnv()

	return config, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			Host:             "127.0.0.1",
			ReadTimeoutSecs:  15,
			WriteTimeoutSecs: 15,
			IdleTimeoutSecs:  60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			SQLitePath: "data/voice-agent.db",
		},
		Agent: AgentConfig{
			ContainerID: "voice-agent",
			Locale:      "en",
		},
		Transport: TransportConfig{
			Type:                 "websocket",
			HandshakeTimeoutSecs: 30,
		},
	}
}

// LoadWithFallback attempts to load configuration from multiple locations
// Tries in order: the preferred path, configs/config.toml, config.toml
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnv lets the environment override the agent settings
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAgentID)); v != "" {
		c.Agent.AgentID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendBaseURL)); v != "" {
		c.Agent.BackendBaseURL = v
	}
}

// Validate checks the configuration and fills in defaults for optional values.
// Empty agent settings are valid: the widget then renders a configuration
// required message instead of the call control.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be >= 0")
	}

	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}

	if c.Agent.ContainerID == "" {
		c.Agent.ContainerID = "voice-agent"
	}
	switch c.Agent.Locale {
	case "":
		c.Agent.Locale = "en"
	case "en", "de":
	default:
		return fmt.Errorf("invalid agent locale: %s (must be 'en' or 'de')", c.Agent.Locale)
	}

	if c.Credential.RequestTimeoutSecs < 0 {
		return fmt.Errorf("invalid credential request_timeout_seconds: %d (must be >= 0)", c.Credential.RequestTimeoutSecs)
	}

	if c.Transport.Type == "" {
		c.Transport.Type = "websocket"
	}
	switch c.Transport.Type {
	case "websocket":
		if c.Transport.URL == "" {
			return fmt.Errorf("transport.url is required when transport type is websocket")
		}
		if !strings.HasPrefix(c.Transport.URL, "ws://") && !strings.HasPrefix(c.Transport.URL, "wss://") {
			return fmt.Errorf("transport.url must use ws:// or wss://: %s", c.Transport.URL)
		}
	case "scripted":
	default:
		return fmt.Errorf("invalid transport type: %s (must be 'websocket' or 'scripted')", c.Transport.Type)
	}
	if c.Transport.HandshakeTimeoutSecs < 0 || c.Transport.StartTimeoutSecs < 0 {
		return fmt.Errorf("transport timeouts must be >= 0")
	}

	return nil
}
