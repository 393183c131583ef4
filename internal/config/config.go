// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/driftapp/driftchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete driftchat configuration.
type Config struct {
	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Chat configuration
	Chat ChatConfig `toml:"chat" json:"chat"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains conversation backend configuration.
type ServerConfig struct {
	// BaseURL is the conversation API base URL
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the REST request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries is the retry budget for transient REST errors
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// StorageConfig contains local persistence configuration.
type StorageConfig struct {
	// Driver selects the local store backend: "file" or "sqlite"
	Driver string `toml:"driver" json:"driver"`
	// Path is the data directory (file driver) or database file (sqlite).
	// Empty means the default under ~/.driftchat.
	Path string `toml:"path" json:"path"`
}

// ChatConfig contains conversation behavior configuration.
type ChatConfig struct {
	// ReasoningEnabled requests a visible thinking phase on new sessions
	ReasoningEnabled bool `toml:"reasoning_enabled" json:"reasoning_enabled"`
	// SearchEnabled requests web search on new sessions
	SearchEnabled bool `toml:"search_enabled" json:"search_enabled"`
	// DirectoryPageSize is how many conversations one directory page holds
	DirectoryPageSize int `toml:"directory_page_size" json:"directory_page_size"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant replies as markdown
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowReasoning displays the thinking phase in the transcript
	ShowReasoning bool `toml:"show_reasoning" json:"show_reasoning"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "https://api.driftchat.app/v1",
			TimeoutSecs: 30,
			MaxRetries:  3,
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "",
		},
		Chat: ChatConfig{
			ReasoningEnabled:  false,
			SearchEnabled:     false,
			DirectoryPageSize: 50,
		},
		UI: UIConfig{
			Theme:         "dark",
			Markdown:      true,
			ShowReasoning: true,
			CompactMode:   false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the driftchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".driftchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// DataPath resolves the local store location for the configured driver.
func (c *Config) DataPath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Storage.Driver == "sqlite" {
		return filepath.Join(dir, "driftchat.db"), nil
	}
	return filepath.Join(dir, "conversations"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}
	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. JSON when the path ends in .json, TOML otherwise.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config from %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config from %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	if c.Chat.DirectoryPageSize == 0 {
		c.Chat.DirectoryPageSize = defaults.Chat.DirectoryPageSize
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies DRIFTCHAT_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DRIFTCHAT_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("DRIFTCHAT_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.TimeoutSecs = n
		}
	}
	if v := os.Getenv("DRIFTCHAT_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DRIFTCHAT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("DRIFTCHAT_REASONING"); v != "" {
		c.Chat.ReasoningEnabled = parseBool(v)
	}
	if v := os.Getenv("DRIFTCHAT_SEARCH"); v != "" {
		c.Chat.SearchEnabled = parseBool(v)
	}
	if v := os.Getenv("DRIFTCHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.ToLower(v))
	return err == nil && b
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url %q is not a valid URL", c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 300 {
		return fmt.Errorf("server.timeout_secs must be 1-300, got %d", c.Server.TimeoutSecs)
	}
	if c.Server.MaxRetries < 0 || c.Server.MaxRetries > 10 {
		return fmt.Errorf("server.max_retries must be 0-10, got %d", c.Server.MaxRetries)
	}
	if c.Storage.Driver != "file" && c.Storage.Driver != "sqlite" {
		return fmt.Errorf("storage.driver must be file or sqlite, got %q", c.Storage.Driver)
	}
	if c.Chat.DirectoryPageSize < 1 || c.Chat.DirectoryPageSize > 200 {
		return fmt.Errorf("chat.directory_page_size must be 1-200, got %d", c.Chat.DirectoryPageSize)
	}
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		return fmt.Errorf("ui.theme must be dark, light, or auto, got %q", c.UI.Theme)
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the TOML config file atomically.
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to the given path atomically. Config
// files are 0600 so tokens stored alongside never leak to other users.
func (c *Config) SaveTo(path string) error {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
