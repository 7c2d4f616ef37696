package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. OBSR_CLIENT_HOST.
const EnvPrefix = "OBSR_"

const appDirName = "obs-web-remote"

type Config struct {
	Client ClientConfig `yaml:"client" envPrefix:"CLIENT_"`
	Poll   PollConfig   `yaml:"poll" envPrefix:"POLL_"`
	Bridge BridgeConfig `yaml:"bridge" envPrefix:"BRIDGE_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
	// StateDir holds connection.yaml and the TUI log. Empty means the XDG
	// state directory.
	StateDir string `yaml:"state_dir" env:"STATE_DIR"`
}

type ClientConfig struct {
	// Host is host[:port], optionally with a ws://, wss://, http:// or
	// https:// prefix.
	Host     string `yaml:"host" env:"HOST"`
	Password string `yaml:"password" env:"PASSWORD"`
	// PreferSecure picks wss:// when the host carries no scheme or port hint.
	PreferSecure   bool          `yaml:"prefer_secure" env:"PREFER_SECURE"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// AutoConnect connects at startup when a password is stored.
	AutoConnect bool `yaml:"auto_connect" env:"AUTO_CONNECT"`
}

type PollConfig struct {
	Interval            time.Duration `yaml:"interval" env:"INTERVAL"`
	ScreenshotIdleEvery int           `yaml:"screenshot_idle_every" env:"SCREENSHOT_IDLE_EVERY"`
	ScreenshotWidth     int           `yaml:"screenshot_width" env:"SCREENSHOT_WIDTH"`
}

type BridgeConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
	// AuthKey, when set, must be sent in the AuthKey header of every request.
	AuthKey string `yaml:"auth_key" env:"AUTH_KEY"`
	// StaticDir is served at / when set.
	StaticDir string `yaml:"static_dir" env:"STATIC_DIR"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	// File receives the TUI's log output. Empty means tui.log in the state
	// directory.
	File string `yaml:"file" env:"FILE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Host:           "localhost:4444",
			RequestTimeout: 10 * time.Second,
			AutoConnect:    true,
		},
		Poll: PollConfig{
			Interval:            3 * time.Second,
			ScreenshotIdleEvery: 3,
			ScreenshotWidth:     250,
		},
		Bridge: BridgeConfig{
			Listen: "127.0.0.1:4445",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any), .env files in the working directory and OBSR_* environment
// variables, in increasing precedence. A missing file is only an error
// when path was given explicitly.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env style files without overriding variables that
// are already set. Missing files are skipped.
func loadEnvFiles(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	c.Client.Host = strings.TrimSpace(c.Client.Host)
	if c.Client.Host == "" {
		return errors.New("client.host must not be empty")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.ScreenshotWidth <= 0 {
		return fmt.Errorf("poll.screenshot_width must be positive, got %d", c.Poll.ScreenshotWidth)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// StatePath returns the state directory, honouring XDG_STATE_HOME.
func (c *Config) StatePath() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	return defaultStateDir()
}

// LogPath returns where the TUI writes its log.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.StatePath(), "tui.log")
}

func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
