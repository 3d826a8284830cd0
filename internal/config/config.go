package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// EnvDir overrides the configuration directory.
	EnvDir = "GMTUI_CONFIG"

	FileName        = "config.toml"
	DefaultEndpoint = "wss://push.groupme.com/faye"
	DefaultAPIBase  = "https://api.groupme.com/v3"
)

type Config struct {
	Secret  string       `toml:"secret" yaml:"secret"`
	UserID  string       `toml:"user_id,omitempty" yaml:"user_id,omitempty"`
	APIBase string       `toml:"api_base,omitempty" yaml:"api_base,omitempty"`
	Push    PushConfig   `toml:"push" yaml:"push"`
	Notify  NotifyConfig `toml:"notify" yaml:"notify"`
	Log     LogConfig    `toml:"log" yaml:"log"`
}

type PushConfig struct {
	Endpoint        string        `toml:"endpoint" yaml:"endpoint"`
	Transport       string        `toml:"transport" yaml:"transport"`
	RenewAfter      time.Duration `toml:"renew_after" yaml:"renew_after"`
	HandshakeRetry  time.Duration `toml:"handshake_retry" yaml:"handshake_retry"`
	ExchangeTimeout time.Duration `toml:"exchange_timeout" yaml:"exchange_timeout"`
}

type NotifyConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	Summary       string `toml:"summary" yaml:"summary"`
	Sound         string `toml:"sound,omitempty" yaml:"sound,omitempty"`
	Icon          string `toml:"icon" yaml:"icon"`
	RatePerMinute int    `toml:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int    `toml:"burst" yaml:"burst"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	// File is relative to the config directory unless absolute.
	File string `toml:"file" yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		APIBase: DefaultAPIBase,
		Push: PushConfig{
			Endpoint:        DefaultEndpoint,
			Transport:       "websocket",
			RenewAfter:      time.Hour,
			HandshakeRetry:  5 * time.Second,
			ExchangeTimeout: 45 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:       true,
			Summary:       "GroupMe",
			Icon:          "mail-unread",
			RatePerMinute: 30,
			Burst:         5,
		},
		Log: LogConfig{
			Level: "info",
			File:  "gmtui.log",
		},
	}
}

// Default returns a configuration with every default filled in and no secret.
func Default() *Config {
	return defaultConfig()
}

// Dir returns the configuration directory: $GMTUI_CONFIG if set, otherwise
// groupme-tui under the user config dir.
func Dir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	name := "groupme-tui"
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		name = "Groupme-tui"
	}
	return filepath.Join(base, name), nil
}

// DefaultPath returns Dir()/config.toml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads path over the defaults. Files ending in .yaml or .yml are YAML,
// everything else TOML. A missing file returns an error satisfying
// errors.Is(err, fs.ErrNotExist).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	cfg := defaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension, creating
// the directory if needed. The file holds an access token, so it is 0600.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config save failed (%s): %w", path, err)
	}

	var data []byte
	if isYAML(path) {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("config encode failed: %w", err)
		}
		data = out
	} else {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("config encode failed: %w", err)
		}
		data = buf.Bytes()
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config save failed (%s): %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Secret) == "" {
		return fmt.Errorf("missing secret (GroupMe access token)")
	}
	switch c.Push.Transport {
	case "websocket", "long-polling":
	default:
		return fmt.Errorf("push.transport must be websocket or long-polling, got %q", c.Push.Transport)
	}
	if strings.TrimSpace(c.Push.Endpoint) == "" {
		return fmt.Errorf("push.endpoint is required")
	}
	if c.Push.RenewAfter <= 0 {
		return fmt.Errorf("push.renew_after must be positive")
	}
	if c.Push.HandshakeRetry < 0 || c.Push.ExchangeTimeout < 0 {
		return fmt.Errorf("push durations must not be negative")
	}
	return nil
}

// LogPath resolves Log.File against dir.
func (c *Config) LogPath(dir string) string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(dir, c.Log.File)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
