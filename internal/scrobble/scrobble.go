package scrobble

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotConfigured = errors.New("scrobbling not configured")
	// ErrRejected means the service answered and declined the scrobble.
	ErrRejected = errors.New("scrobble rejected")
	// ErrUnavailable means the service could not be reached or answered with a server error.
	ErrUnavailable = errors.New("scrobble service unavailable")

	ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrRejected)
	ErrRateLimited  = fmt.Errorf("%w: rate limited", ErrRejected)
)

// Submitter reports a single play event to a remote tracking service.
// A nil error means the service accepted the scrobble.
type Submitter interface {
	Submit(ctx context.Context, artist, title string, ts time.Time) error
}

// NowPlayinger is implemented by submitters that can also announce the track
// that just started.
type NowPlayinger interface {
	UpdateNowPlaying(ctx context.Context, artist, title, album string, duration int) error
}

// IsRejected reports whether err is a definitive answer from the service.
func IsRejected(err error) bool { return errors.Is(err, ErrRejected) }

// IsUnavailable reports whether err is a transport level failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
