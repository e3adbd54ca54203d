package askdir

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"mvdan.cc/sh/v3/shell"

	defaults "github.com/Paranoid-AF/askdir/default"
)

// Config represents the user's askdir configuration.
type Config struct {
	Version    int              `toml:"version"`
	Watch      WatchConfig      `toml:"watch"`
	Generation GenerationConfig `toml:"generation"`
	Pricing    Pricing          `toml:"pricing"`
}

// WatchConfig holds settings for the directory watcher.
type WatchConfig struct {
	Directory string   `toml:"directory"`
	SettleMS  int      `toml:"settle_ms"`
	QueueSize int      `toml:"queue_size"`
	Ignore    []string `toml:"ignore"`
}

// GenerationConfig holds settings for the inference API.
type GenerationConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	Detail         string `toml:"detail"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ConfigDir returns the config directory path.
// Resolution order: $ASKDIR_CONFIG_DIR > $XDG_CONFIG_HOME/askdir > ~/.config/askdir
func ConfigDir() string {
	if dir := os.Getenv("ASKDIR_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "askdir")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "askdir-config")
	}
	return filepath.Join(home, ".config", "askdir")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the prompt template path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(string(defaults.DefaultConfigTOML), &cfg); err != nil {
		panic("askdir: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads the config at path on top of the defaults, so keys
// missing from the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "path", path, "key", key.String())
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// into the process environment. Variables already set are left alone and
// missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if ResolveAPIKey(cfg) == "" {
		warnings = append(warnings, "no API key configured; set ASKDIR_API_KEY or OPENAI_API_KEY, requests will be sent unauthenticated")
	}
	if cfg.Generation.MaxTokens <= 0 {
		warnings = append(warnings, "generation.max_tokens is not positive; the API default will apply")
	}
	if cfg.Pricing.PromptPer1K < 0 || cfg.Pricing.CompletionPer1K < 0 {
		warnings = append(warnings, "pricing has negative unit prices; cost estimates will be wrong")
	}
	if cfg.Watch.SettleMS < 0 {
		warnings = append(warnings, "watch.settle_ms is negative; files will be sent on creation")
	}
	return warnings
}

// ResolveWatchDirectory returns the absolute watch root.
// Priority: $ASKDIR_WATCH_DIRECTORY env > config value. The value is expanded
// the way a shell would expand a single argument, so "~" and "$VAR" work.
func ResolveWatchDirectory(cfg *Config) (string, error) {
	dir := os.Getenv("ASKDIR_WATCH_DIRECTORY")
	if dir == "" && cfg != nil {
		dir = cfg.Watch.Directory
	}
	if dir == "" {
		return "", errors.New("watch directory not configured; set watch.directory or ASKDIR_WATCH_DIRECTORY")
	}
	return ExpandPath(dir)
}

// ExpandPath expands a leading "~" and $VARS in a configured path and makes
// the result absolute. The value is otherwise literal: spaces and quotes are
// part of the path. A value that does not expand is used as written.
func ExpandPath(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home + dir[1:]
		}
	}
	expanded, err := shell.Expand(dir, nil)
	if err != nil {
		slog.Debug("path not expanded, using it as written", "path", dir, "error", err)
		expanded = dir
	}
	return filepath.Abs(expanded)
}

// ResolveBaseURL returns the inference API base URL.
// Priority: $ASKDIR_BASE_URL env > config value.
func ResolveBaseURL(cfg *Config) string {
	if url := os.Getenv("ASKDIR_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.BaseURL
	}
	return ""
}

// ResolveAPIKey returns the inference API key.
// Priority: $ASKDIR_API_KEY env > $OPENAI_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("ASKDIR_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveModel returns the model name.
// Priority: $ASKDIR_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("ASKDIR_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// SettleDuration returns how long a new file must stay unwritten before it is sent.
func SettleDuration(cfg *Config) time.Duration {
	if cfg == nil || cfg.Watch.SettleMS <= 0 {
		return 0
	}
	return time.Duration(cfg.Watch.SettleMS) * time.Millisecond
}

// RequestTimeout returns the HTTP timeout, or 0 for none.
func RequestTimeout(cfg *Config) time.Duration {
	if cfg == nil || cfg.Generation.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
}

// LoadPrompt returns the custom prompt template from PromptPath, or the
// embedded default when none exists.
func LoadPrompt() string {
	data, err := os.ReadFile(PromptPath())
	if err != nil {
		return defaults.DefaultPrompt
	}
	slog.Info("loaded custom prompt", "path", PromptPath())
	return string(data)
}
