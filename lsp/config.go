package lsp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Stryk91/lsp-mcp-bridge/security"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRestartDelay   = 2 * time.Second
	defaultMaxRestarts    = 5
)

// ServerConfig describes one configured language server.
type ServerConfig struct {
	Command               string         `json:"command" toml:"command"`
	Args                  []string       `json:"args" toml:"args"`
	Extensions            []string       `json:"extensions" toml:"extensions"`
	RootPatterns          []string       `json:"root_patterns" toml:"root_patterns"`
	TimeoutMs             int            `json:"timeout_ms" toml:"timeout_ms"`
	InitializationOptions map[string]any `json:"initialization_options" toml:"initialization_options"`
}

// GlobalConfig carries bridge-wide settings.
type GlobalConfig struct {
	LogPath            string `json:"log_file_path" toml:"log_file_path"`
	LogLevel           string `json:"log_level" toml:"log_level"`
	MaxLogFiles        int    `json:"max_log_files" toml:"max_log_files"`
	MaxRestartAttempts int    `json:"max_restart_attempts" toml:"max_restart_attempts"`
	RestartDelayMs     int    `json:"restart_delay_ms" toml:"restart_delay_ms"`
	RequestTimeoutMs   int    `json:"request_timeout_ms" toml:"request_timeout_ms"`
	WatchDocuments     bool   `json:"watch_documents" toml:"watch_documents"`
	WatchMode          string `json:"watch_mode" toml:"watch_mode"`
	WatchIntervalMs    int    `json:"watch_interval_ms" toml:"watch_interval_ms"`
}

// BridgeConfig is the parsed on-disk configuration. Both the JSON and the TOML
// form decode into it; the file extension picks the decoder.
type BridgeConfig struct {
	Servers map[string]ServerConfig `json:"servers" toml:"servers"`
	Global  GlobalConfig            `json:"global" toml:"global"`
}

// DefaultConfig returns a minimal configuration with no servers, so the
// bridge can start and answer every call with NotConfigured rather than
// refusing to run.
func DefaultConfig() *BridgeConfig {
	return &BridgeConfig{Servers: map[string]ServerConfig{}}
}

// LoadConfig reads and validates a configuration file. The path must fall
// inside one of the allowed directories.
func LoadConfig(path string, allowedDirectories []string) (*BridgeConfig, error) {
	absPath, err := security.ValidateConfigPath(path, allowedDirectories)
	if err != nil {
		return nil, fmt.Errorf("config path rejected: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	var cfg BridgeConfig
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", absPath, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", absPath, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}

	return &cfg, nil
}

func (c *BridgeConfig) validate() error {
	for name, sc := range c.Servers {
		if sc.Command == "" {
			return fmt.Errorf("server %q has no command", name)
		}
		if len(sc.Extensions) == 0 {
			return fmt.Errorf("server %q maps no extensions", name)
		}
		for _, ext := range sc.Extensions {
			if strings.TrimPrefix(ext, ".") == "" {
				return fmt.Errorf("server %q has an empty extension", name)
			}
		}
	}
	return nil
}

// RequestTimeout returns the default per-request deadline.
func (c *BridgeConfig) RequestTimeout() time.Duration {
	if c.Global.RequestTimeoutMs > 0 {
		return time.Duration(c.Global.RequestTimeoutMs) * time.Millisecond
	}
	return defaultRequestTimeout
}

// RestartDelay returns the base delay between respawn attempts.
func (c *BridgeConfig) RestartDelay() time.Duration {
	if c.Global.RestartDelayMs > 0 {
		return time.Duration(c.Global.RestartDelayMs) * time.Millisecond
	}
	return defaultRestartDelay
}

// MaxRestartAttempts bounds the exponential respawn backoff.
func (c *BridgeConfig) MaxRestartAttempts() int {
	if c.Global.MaxRestartAttempts > 0 {
		return c.Global.MaxRestartAttempts
	}
	return defaultMaxRestarts
}

// WatchInterval returns the polling interval for the document watcher.
func (c *BridgeConfig) WatchInterval() time.Duration {
	if c.Global.WatchIntervalMs > 0 {
		return time.Duration(c.Global.WatchIntervalMs) * time.Millisecond
	}
	return 2 * time.Second
}

// ApplyEnvOverrides allows runtime tuning from outside (e.g. via MCP client
// env blocks) without editing config files inside a container.
func ApplyEnvOverrides(c *BridgeConfig) {
	if v := os.Getenv("LSP_BRIDGE_REQUEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Global.RequestTimeoutMs = n
		}
	}
	if v := os.Getenv("LSP_BRIDGE_MAX_RESTART_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Global.MaxRestartAttempts = n
		}
	}
	if v := os.Getenv("LSP_BRIDGE_RESTART_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Global.RestartDelayMs = n
		}
	}
	if v := os.Getenv("LSP_BRIDGE_LOG_LEVEL"); v != "" {
		c.Global.LogLevel = v
	}
	if v := os.Getenv("LSP_BRIDGE_WATCH_DOCUMENTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Global.WatchDocuments = b
		}
	}
}
