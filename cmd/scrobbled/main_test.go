package main

import (
	"log/slog"
	"runtime"
	"testing"

	"github.com/tunez/scrobbled/internal/config"
)

func TestBuildSource(t *testing.T) {
	auto := "mpris"
	if runtime.GOOS == "darwin" {
		auto = "music"
	}
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{backend: "auto", want: auto},
		{backend: "music", want: "music"},
		{backend: "mpd", want: "mpd"},
		{backend: "mpv", want: "mpv"},
		{backend: "winamp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			src, err := buildSource(config.PlayerConfig{
				Backend:    tt.backend,
				MPDAddress: "localhost:6600",
			}, slog.Default())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for backend %q", tt.backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildSource(%q): %v", tt.backend, err)
			}
			if got := src.Name(); got != tt.want {
				t.Fatalf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}
