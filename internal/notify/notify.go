// Package notify shows best-effort desktop notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/tunez/scrobbled/internal/scrobble"
)

// Notifier posts a user-visible notification.
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
}

// New returns the notifier for backend: "auto", "dbus", "osascript" or "none".
func New(backend, appName string) (Notifier, error) {
	switch backend {
	case "", "auto":
		if runtime.GOOS == "darwin" {
			return NewOSAScript(), nil
		}
		return NewDBus(appName), nil
	case "dbus":
		return NewDBus(appName), nil
	case "osascript":
		return NewOSAScript(), nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", backend)
	}
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// Announce wraps sub so that every accepted scrobble is followed by a
// notification. Notification failures are logged and never returned.
func Announce(sub scrobble.Submitter, n Notifier, logger *slog.Logger) scrobble.Submitter {
	if n == nil {
		n = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &announcer{Submitter: sub, notifier: n, logger: logger}
}

type announcer struct {
	scrobble.Submitter
	notifier Notifier
	logger   *slog.Logger
}

func (a *announcer) Submit(ctx context.Context, artist, title string, ts time.Time) error {
	if err := a.Submitter.Submit(ctx, artist, title, ts); err != nil {
		return err
	}
	if err := a.notifier.Notify(ctx, "Scrobbled", title+" by "+artist); err != nil {
		a.logger.Warn("notification failed", slog.Any("err", err))
	}
	return nil
}

// UpdateNowPlaying forwards to the wrapped submitter when it supports it.
func (a *announcer) UpdateNowPlaying(ctx context.Context, artist, title, album string, duration int) error {
	np, ok := a.Submitter.(scrobble.NowPlayinger)
	if !ok {
		return nil
	}
	return np.UpdateNowPlaying(ctx, artist, title, album, duration)
}
