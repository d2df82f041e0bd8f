package player

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrNotPlaying is returned by a Source when the player is stopped, paused or idle.
	ErrNotPlaying = errors.New("player: not playing")
	// ErrNotRunning is returned by a Source when the player process or service is absent.
	ErrNotRunning = errors.New("player: not running")
)

// Snapshot is one poll of the player's playback state. Durations are whole seconds.
type Snapshot struct {
	Artist   string
	Title    string
	Album    string
	Duration int
	Position int
}

// Source reads the current playback state from a concrete player.
type Source interface {
	// Name identifies the backend in logs.
	Name() string
	// Read returns the current snapshot, ErrNotPlaying when nothing is playing,
	// or any other error when the player could not be read.
	Read(ctx context.Context) (Snapshot, error)
}

// Probe is the read-only view of a player used by the monitor. It never
// returns errors: anything unreadable counts as not playing.
type Probe interface {
	IsPlaying(ctx context.Context) bool
	CurrentSnapshot(ctx context.Context) (Snapshot, bool)
}

// FailClosed adapts a Source into a Probe. Read errors and snapshots
// missing an artist or title are reported as not playing.
func FailClosed(src Source, logger *slog.Logger) Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &failClosed{src: src, logger: logger}
}

type failClosed struct {
	src    Source
	logger *slog.Logger
}

func (f *failClosed) IsPlaying(ctx context.Context) bool {
	_, ok := f.CurrentSnapshot(ctx)
	return ok
}

func (f *failClosed) CurrentSnapshot(ctx context.Context) (Snapshot, bool) {
	snap, err := f.src.Read(ctx)
	switch {
	case errors.Is(err, ErrNotPlaying):
		return Snapshot{}, false
	case errors.Is(err, ErrNotRunning):
		f.logger.Debug("player not running", slog.String("player", f.src.Name()))
		return Snapshot{}, false
	case err != nil:
		f.logger.Warn("player probe failed", slog.String("player", f.src.Name()), slog.Any("err", err))
		return Snapshot{}, false
	}
	// Last.fm refuses scrobbles without an artist or title.
	if snap.Artist == "" || snap.Title == "" {
		f.logger.Debug("incomplete track metadata",
			slog.String("player", f.src.Name()),
			slog.String("artist", snap.Artist),
			slog.String("title", snap.Title))
		return Snapshot{}, false
	}
	return snap, true
}
