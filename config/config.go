// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.aimuz.me/tambourine/internal/types"
)

const (
	appName        = "tambourine"
	configFileName = "config.json"

	// DefaultServerURL is where the dictation server listens by default.
	DefaultServerURL = "http://127.0.0.1:8765"

	// EnvServerURL overrides the stored server URL.
	EnvServerURL = "TAMBOURINE_SERVER_URL"
	// EnvLogLevel overrides the stored log level.
	EnvLogLevel = "TAMBOURINE_LOG_LEVEL"
)

// DefaultToggleHotkey is the chord that toggles recording.
var DefaultToggleHotkey = []string{"ctrl", "shift", "space"}

// file is the on-disk shape.
type file struct {
	ServerURL string                `json:"server_url,omitempty"`
	Settings  types.Settings        `json:"settings"`
	Hotkeys   types.HotkeyConfig    `json:"hotkeys"`
	Overlay   types.OverlayPosition `json:"overlay"`
	LogLevel  string                `json:"log_level,omitempty"`
}

// Config represents the application configuration.
// It is safe for concurrent use; readers get copies.
type Config struct {
	mu   sync.RWMutex
	path string
	data file

	serverURLOverride string
	logLevelOverride  string
}

// Load loads configuration from the user config directory.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. Environment overrides are applied
// on top but never persisted.
func LoadFile(path string) (*Config, error) {
	c := &Config{
		path:              path,
		data:              defaultFile(),
		serverURLOverride: strings.TrimSpace(os.Getenv(EnvServerURL)),
		logLevelOverride:  strings.TrimSpace(os.Getenv(EnvLogLevel)),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &c.data); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(c.data.Hotkeys.Toggle) == 0 {
		c.data.Hotkeys.Toggle = DefaultToggleHotkey
	}

	return c, nil
}

// Default returns an unsaved default configuration stored at path.
func Default(path string) *Config {
	return &Config{path: path, data: defaultFile()}
}

// Path returns the file the configuration is saved to.
func (c *Config) Path() string { return c.path }

// Save persists the configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	if c.path == "" {
		return nil
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Server
// ─────────────────────────────────────────────────────────────────────────────

// ServerURL returns the server base URL without a trailing slash.
func (c *Config) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverURLOverride != "" {
		return strings.TrimRight(c.serverURLOverride, "/")
	}
	return strings.TrimRight(c.data.ServerURL, "/")
}

// SetServerURL stores a new server base URL.
func (c *Config) SetServerURL(url string) error {
	url = strings.TrimSpace(url)
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("server url must start with http:// or https://: %q", url)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.ServerURL = strings.TrimRight(url, "/")
	return c.saveLocked()
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// Settings returns a copy of the user settings.
func (c *Config) Settings() types.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSettings(c.data.Settings)
}

// UpdateSettings replaces the user settings and returns the previous value.
func (c *Config) UpdateSettings(s types.Settings) (types.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := cloneSettings(c.data.Settings)
	c.data.Settings = cloneSettings(s)
	if err := c.saveLocked(); err != nil {
		return prev, err
	}
	return prev, nil
}

func cloneSettings(s types.Settings) types.Settings {
	if s.CleanupPromptSections != nil {
		sections := *s.CleanupPromptSections
		s.CleanupPromptSections = &sections
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Hotkeys, overlay and logging
// ─────────────────────────────────────────────────────────────────────────────

// Hotkeys returns the configured hotkey chords.
func (c *Config) Hotkeys() types.HotkeyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.HotkeyConfig{
		Toggle: append([]string(nil), c.data.Hotkeys.Toggle...),
		Hold:   append([]string(nil), c.data.Hotkeys.Hold...),
	}
}

// OverlayPosition returns the last saved overlay position.
func (c *Config) OverlayPosition() types.OverlayPosition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Overlay
}

// SetOverlayPosition records where the overlay was dragged to.
func (c *Config) SetOverlayPosition(x, y int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Overlay = types.OverlayPosition{X: x, Y: y, Saved: true}
	return c.saveLocked()
}

// LogLevel returns the configured log level, info by default.
func (c *Config) LogLevel() slog.Level {
	c.mu.RLock()
	name := c.data.LogLevel
	if c.logLevelOverride != "" {
		name = c.logLevelOverride
	}
	c.mu.RUnlock()

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Dir returns the application directory inside the user config directory.
func Dir() (string, error) {
	path, err := configPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

func defaultFile() file {
	return file{
		ServerURL: DefaultServerURL,
		Hotkeys:   types.HotkeyConfig{Toggle: DefaultToggleHotkey},
		LogLevel:  "info",
	}
}
