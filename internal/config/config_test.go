package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		LastFM: LastFMConfig{APIKey: "key", APISecret: "secret", SessionKey: "session"},
	}
	applyDefaults(&cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.LastFM.APIKey = "" }, wantErr: true},
		{name: "missing api secret", mutate: func(c *Config) { c.LastFM.APISecret = "" }, wantErr: true},
		{name: "missing session key", mutate: func(c *Config) { c.LastFM.SessionKey = "" }, wantErr: true},
		{name: "ratio too large", mutate: func(c *Config) { c.Scrobble.ProgressRatio = 1.2 }, wantErr: true},
		{name: "ratio negative", mutate: func(c *Config) { c.Scrobble.ProgressRatio = -0.1 }, wantErr: true},
		{name: "full ratio", mutate: func(c *Config) { c.Scrobble.ProgressRatio = 1 }},
		{name: "unknown player", mutate: func(c *Config) { c.Player.Backend = "winamp" }, wantErr: true},
		{name: "mpd player", mutate: func(c *Config) { c.Player.Backend = "mpd" }},
		{name: "unknown notifier", mutate: func(c *Config) { c.Notify.Backend = "growl" }, wantErr: true},
		{name: "negative backoff", mutate: func(c *Config) { c.Scrobble.BackoffMaxSeconds = -1 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvSessionKey, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[lastfm]
api_key = "key"
api_secret = "secret"
session_key = "session"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Scrobble.ProgressRatio != 0.5 {
		t.Errorf("progress_ratio = %v, want 0.5", cfg.Scrobble.ProgressRatio)
	}
	if cfg.Interval().Seconds() != 10 {
		t.Errorf("interval = %v, want 10s", cfg.Interval())
	}
	if cfg.SubmitTimeout().Seconds() != 15 {
		t.Errorf("submit timeout = %v, want 15s", cfg.SubmitTimeout())
	}
	if cfg.BackoffMax() != 0 {
		t.Errorf("backoff max = %v, want disabled", cfg.BackoffMax())
	}
	if cfg.Player.Backend != "auto" || cfg.Notify.Backend != "auto" {
		t.Errorf("backends = %q/%q, want auto/auto", cfg.Player.Backend, cfg.Notify.Backend)
	}
	if cfg.Scrobble.NowPlaying {
		t.Error("now_playing should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[lastfm]
api_key = "key"
api_secret = "secret"
session_key = "file-session"

[scrobble]
progress_ratio = 0.75
interval_seconds = 5
backoff_max_seconds = 300

[player]
backend = "mpd"
mpd_address = "music.local:6600"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvSessionKey, "env-session")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LastFM.SessionKey != "env-session" {
		t.Errorf("session key = %q, env should win", cfg.LastFM.SessionKey)
	}
	if cfg.Scrobble.ProgressRatio != 0.75 || cfg.Scrobble.IntervalSeconds != 5 {
		t.Errorf("scrobble = %+v", cfg.Scrobble)
	}
	if cfg.BackoffMax().Minutes() != 5 {
		t.Errorf("backoff max = %v", cfg.BackoffMax())
	}
	if cfg.Player.Backend != "mpd" || cfg.Player.MPDAddress != "music.local:6600" {
		t.Errorf("player = %+v", cfg.Player)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvAPISecret, "secret")
	t.Setenv(EnvSessionKey, "session")

	if _, _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "")
	t.Setenv(EnvSessionKey, "")

	_, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("err = %v, want missing api_key", err)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[lastfm\napi_key="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestSaveSessionKey(t *testing.T) {
	t.Setenv(EnvSessionKey, "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	// creates the file when absent
	if err := SaveSessionKey(path, "first"); err != nil {
		t.Fatalf("SaveSessionKey: %v", err)
	}

	data := `
[lastfm]
api_key = "key"
api_secret = "secret"
session_key = "old"

[player]
backend = "mpris"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := SaveSessionKey(path, "new-session"); err != nil {
		t.Fatalf("SaveSessionKey: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LastFM.SessionKey != "new-session" {
		t.Errorf("session key = %q", cfg.LastFM.SessionKey)
	}
	if cfg.LastFM.APIKey != "key" || cfg.Player.Backend != "mpris" {
		t.Errorf("other settings lost: %+v", cfg)
	}
}
