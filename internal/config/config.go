package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/SharePicker/internal/logger"
)

// Config holds the application configuration
type Config struct {
	LogLevel      string          `json:"log_level" yaml:"log_level"`
	LogPretty     bool            `json:"log_pretty" yaml:"log_pretty"`
	ServerPort    int             `json:"server_port" yaml:"server_port"`
	EventBuffer   int             `json:"event_buffer" yaml:"event_buffer"`
	OverlayCursor bool            `json:"overlay_cursor" yaml:"overlay_cursor"`
	ListTimeout   time.Duration   `json:"list_timeout" yaml:"list_timeout"`
	Thumbnail     ThumbnailConfig `json:"thumbnail" yaml:"thumbnail"`
}

// ThumbnailConfig bounds the size of thumbnails handed to consumers
type ThumbnailConfig struct {
	MaxWidth  int `json:"max_width" yaml:"max_width"`
	MaxHeight int `json:"max_height" yaml:"max_height"`
}

// Defaults returns the configuration used for missing keys
func Defaults() *Config {
	return &Config{
		LogLevel:      "info",
		ServerPort:    8686,
		EventBuffer:   100,
		OverlayCursor: false,
		ListTimeout:   2 * time.Second,
		Thumbnail: ThumbnailConfig{
			MaxWidth:  440,
			MaxHeight: 280,
		},
	}
}

// Validate checks that every value is usable
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid port number: %d", c.ServerPort)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	if c.ListTimeout <= 0 {
		return fmt.Errorf("list_timeout must be positive, got %s", c.ListTimeout)
	}
	if c.Thumbnail.MaxWidth < 1 || c.Thumbnail.MaxHeight < 1 {
		return fmt.Errorf("thumbnail bounds must be positive, got %dx%d", c.Thumbnail.MaxWidth, c.Thumbnail.MaxHeight)
	}
	return nil
}

// Manager handles configuration persistence
type Manager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

// NewManager loads the config file, creating it with defaults if it does not
// exist. An empty configFile selects ~/.config/sharepicker/config.yaml.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		actualConfigPath = filepath.Join(homeDir, ".config", "sharepicker", "config.yaml")
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// load reads the config file; keys missing from the file keep their defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Keys lists the settable configuration keys
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type field struct {
	get func(c *Config) any
	set func(c *Config, value string) error
}

var fields = map[string]field{
	"log_level": {
		get: func(c *Config) any { return c.LogLevel },
		set: func(c *Config, v string) error { c.LogLevel = v; return nil },
	},
	"log_pretty": {
		get: func(c *Config) any { return c.LogPretty },
		set: func(c *Config, v string) error { return parseBool(v, &c.LogPretty) },
	},
	"server_port": {
		get: func(c *Config) any { return c.ServerPort },
		set: func(c *Config, v string) error { return parseInt(v, &c.ServerPort) },
	},
	"event_buffer": {
		get: func(c *Config) any { return c.EventBuffer },
		set: func(c *Config, v string) error { return parseInt(v, &c.EventBuffer) },
	},
	"overlay_cursor": {
		get: func(c *Config) any { return c.OverlayCursor },
		set: func(c *Config, v string) error { return parseBool(v, &c.OverlayCursor) },
	},
	"list_timeout": {
		get: func(c *Config) any { return c.ListTimeout },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			c.ListTimeout = d
			return nil
		},
	},
	"thumbnail.max_width": {
		get: func(c *Config) any { return c.Thumbnail.MaxWidth },
		set: func(c *Config, v string) error { return parseInt(v, &c.Thumbnail.MaxWidth) },
	},
	"thumbnail.max_height": {
		get: func(c *Config) any { return c.Thumbnail.MaxHeight },
		set: func(c *Config, v string) error { return parseInt(v, &c.Thumbnail.MaxHeight) },
	},
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid number: %s", v)
	}
	*dst = n
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid boolean: %s (use: true or false)", v)
	}
	*dst = b
	return nil
}

// Value returns the current value of key
func (m *Manager) Value(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	return f.get(m.Get()), nil
}

// Override changes key in memory only, for command line flags
func (m *Manager) Override(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	cfg := m.Get()
	if err := f.set(cfg, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Set changes key and saves the configuration
func (m *Manager) Set(key, value string) error {
	if err := m.Override(key, value); err != nil {
		return err
	}
	return m.Save()
}
