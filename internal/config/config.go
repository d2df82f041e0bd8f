package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override the credentials in the config file.
const (
	EnvAPIKey     = "SCROBBLED_LASTFM_API_KEY"
	EnvAPISecret  = "SCROBBLED_LASTFM_API_SECRET"
	EnvSessionKey = "SCROBBLED_LASTFM_SESSION_KEY"
)

// Config holds scrobbled runtime configuration loaded from TOML.
type Config struct {
	LastFM   LastFMConfig   `toml:"lastfm"`
	Scrobble ScrobbleConfig `toml:"scrobble"`
	Player   PlayerConfig   `toml:"player"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
}

// LastFMConfig holds the remote service credentials. SessionKey comes from
// the one-time scrobbled-auth handshake.
type LastFMConfig struct {
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	SessionKey     string `toml:"session_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ScrobbleConfig tunes when plays are reported.
type ScrobbleConfig struct {
	ProgressRatio        float64 `toml:"progress_ratio"`
	IntervalSeconds      int     `toml:"interval_seconds"`
	SubmitTimeoutSeconds int     `toml:"submit_timeout_seconds"`
	NowPlaying           bool    `toml:"now_playing"`
	BackoffMaxSeconds    int     `toml:"backoff_max_seconds"` // 0 retries on every tick
}

type PlayerConfig struct {
	Backend     string `toml:"backend"` // auto, music, mpris, mpd, mpv
	MPRISPlayer string `toml:"mpris_player"`
	MPDAddress  string `toml:"mpd_address"`
	MPDPassword string `toml:"mpd_password"`
	MPVIPC      string `toml:"mpv_ipc"`
}

type NotifyConfig struct {
	Backend string `toml:"backend"` // auto, dbus, osascript, none
}

type LogConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// Load reads configuration from disk, applies defaults and environment
// overrides, and validates it. If path is empty, a default OS-specific
// location is used. A missing file is not an error as long as the
// environment supplies the credentials.
func Load(path string) (*Config, string, error) {
	cfg, cfgPath, err := Read(path)
	if err != nil {
		return nil, cfgPath, err
	}
	if err := Validate(*cfg); err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// Read is Load without validation, for tools that run before the config is complete.
func Read(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	var cfg Config
	data, err := os.ReadFile(cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)
	return &cfg, cfgPath, nil
}

// DefaultPath returns the config file location for this OS.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	name := "scrobbled"
	if runtime.GOOS == "windows" {
		name = "Scrobbled"
	}
	return filepath.Join(dir, name, "config.toml"), nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		cfg.LastFM.APIKey = v
	}
	if v := getenv(EnvAPISecret); v != "" {
		cfg.LastFM.APISecret = v
	}
	if v := getenv(EnvSessionKey); v != "" {
		cfg.LastFM.SessionKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LastFM.TimeoutSeconds == 0 {
		cfg.LastFM.TimeoutSeconds = 10
	}
	if cfg.Scrobble.ProgressRatio == 0 {
		cfg.Scrobble.ProgressRatio = 0.5
	}
	if cfg.Scrobble.IntervalSeconds == 0 {
		cfg.Scrobble.IntervalSeconds = 10
	}
	if cfg.Scrobble.SubmitTimeoutSeconds == 0 {
		cfg.Scrobble.SubmitTimeoutSeconds = 15
	}
	if cfg.Player.Backend == "" {
		cfg.Player.Backend = "auto"
	}
	if cfg.Player.MPDAddress == "" {
		cfg.Player.MPDAddress = "localhost:6600"
	}
	if cfg.Notify.Backend == "" {
		cfg.Notify.Backend = "auto"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate performs semantic validation. Missing credentials are fatal at startup.
func Validate(cfg Config) error {
	if err := ValidateAPI(cfg); err != nil {
		return err
	}
	if cfg.LastFM.SessionKey == "" {
		return errors.New("lastfm.session_key is required (run scrobbled-auth)")
	}
	if cfg.Scrobble.ProgressRatio <= 0 || cfg.Scrobble.ProgressRatio > 1 {
		return fmt.Errorf("scrobble.progress_ratio must be in (0, 1], got %v", cfg.Scrobble.ProgressRatio)
	}
	if cfg.Scrobble.IntervalSeconds < 1 {
		return errors.New("scrobble.interval_seconds must be at least 1")
	}
	if cfg.Scrobble.BackoffMaxSeconds < 0 {
		return errors.New("scrobble.backoff_max_seconds must not be negative")
	}
	switch cfg.Player.Backend {
	case "auto", "music", "mpris", "mpd", "mpv":
	default:
		return fmt.Errorf("unknown player backend: %s", cfg.Player.Backend)
	}
	switch cfg.Notify.Backend {
	case "auto", "dbus", "osascript", "none":
	default:
		return fmt.Errorf("unknown notify backend: %s", cfg.Notify.Backend)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", cfg.Log.Level)
	}
	return nil
}

// ValidateAPI checks only the application credentials, which the auth
// handshake needs before a session key exists.
func ValidateAPI(cfg Config) error {
	if cfg.LastFM.APIKey == "" {
		return errors.New("lastfm.api_key is required")
	}
	if cfg.LastFM.APISecret == "" {
		return errors.New("lastfm.api_secret is required")
	}
	return nil
}

// Interval is the polling period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Scrobble.IntervalSeconds) * time.Second
}

// SubmitTimeout bounds a single scrobble submission.
func (c Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Scrobble.SubmitTimeoutSeconds) * time.Second
}

// BackoffMax is the longest wait between failed attempts; zero disables backoff.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Scrobble.BackoffMaxSeconds) * time.Second
}

// SaveSessionKey writes key into the [lastfm] table of the file at path,
// keeping every other setting. The file is created if needed.
func SaveSessionKey(path, key string) error {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	lastfm, _ := doc["lastfm"].(map[string]any)
	if lastfm == nil {
		lastfm = map[string]any{}
	}
	lastfm["session_key"] = key
	doc["lastfm"] = lastfm

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
