// Package monitor drives the scrobble gate from periodic player polls.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	"github.com/tunez/scrobbled/internal/player"
	"github.com/tunez/scrobbled/internal/scrobble"
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultSubmitTimeout = 15 * time.Second
)

// State is the monitor's view of the player.
type State int

const (
	StateIdle State = iota
	StateObserving
)

func (s State) String() string {
	if s == StateObserving {
		return "observing"
	}
	return "idle"
}

// Options configures a Monitor.
type Options struct {
	Probe     player.Probe
	Submitter scrobble.Submitter
	Gate      *scrobble.Gate

	Interval      time.Duration
	SubmitTimeout time.Duration
	// BackoffMax enables exponential backoff between failed attempts for the
	// same track instance. Zero retries on every tick.
	BackoffMax time.Duration
	// NowPlaying announces each new track instance when the submitter supports it.
	NowPlaying bool

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Monitor polls the probe on a fixed interval and feeds the gate. All state
// is owned by the goroutine calling Run, so ticks never overlap.
type Monitor struct {
	opts    Options
	state   State
	lastKey *scrobble.Key

	backoff *backoff.ExponentialBackOff
	retryAt time.Time
}

func New(opts Options) *Monitor {
	if opts.Gate == nil {
		opts.Gate = scrobble.NewGate(scrobble.DefaultProgressRatio)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultSubmitTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Monitor{opts: opts}
	if opts.BackoffMax > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = opts.Interval
		b.MaxInterval = opts.BackoffMax
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.Reset()
		m.backoff = b
	}
	return m
}

// State reports whether the player was playing at the last tick.
func (m *Monitor) State() State { return m.state }

// Run ticks immediately and then every interval until ctx is cancelled.
// Cancellation is only observed between ticks and before a submission, so a
// tick is never torn down halfway through its effects.
func (m *Monitor) Run(ctx context.Context) error {
	m.opts.Logger.Info("monitor started",
		slog.Duration("interval", m.opts.Interval),
		slog.Float64("progress_ratio", m.opts.Gate.Ratio()))

	ticker := m.opts.Clock.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.opts.Logger.Info("monitor stopped")
			return nil
		case <-ticker.Chan():
			m.safeTick(ctx)
		}
	}
}

func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.opts.Logger.Error("tick panicked", slog.Any("panic", r))
		}
	}()
	m.Tick(ctx)
}

// Tick runs one poll: at most one probe read and one submission.
func (m *Monitor) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	logger := m.opts.Logger

	snap, ok := m.opts.Probe.CurrentSnapshot(ctx)
	if !ok {
		if m.state == StateObserving {
			logger.Info("playback stopped")
		}
		m.state = StateIdle
		m.lastKey = nil
		return
	}

	key := scrobble.KeyOf(snap)
	if m.lastKey == nil || *m.lastKey != key {
		logger.Info("now playing",
			slog.String("artist", snap.Artist),
			slog.String("title", snap.Title),
			slog.String("album", snap.Album),
			slog.Int("duration", snap.Duration),
			slog.Float64("threshold", m.opts.Gate.Threshold(snap.Duration)))
		m.opts.Gate.OnTrackChanged(key)
		m.lastKey = &key
		m.resetRetry()
		m.announce(ctx, snap)
	}
	m.state = StateObserving

	now := m.opts.Clock.Now()
	d := m.opts.Gate.Evaluate(snap, now)
	if d.Action == scrobble.ActionSkip {
		logger.Debug("skip", slog.String("track", key.String()), slog.String("reason", d.Reason), slog.Int("position", snap.Position))
		return
	}
	if !m.retryAt.IsZero() && now.Before(m.retryAt) {
		logger.Debug("waiting before retry", slog.String("track", key.String()), slog.Time("retry_at", m.retryAt))
		return
	}
	if ctx.Err() != nil {
		return
	}

	// A submission that has started runs to its own timeout even if ctx is cancelled.
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.SubmitTimeout)
	err := m.opts.Submitter.Submit(subCtx, d.Artist, d.Title, now)
	cancel()
	if err != nil {
		m.logSubmitError(key, err)
		m.scheduleRetry(now)
		return
	}

	m.opts.Gate.Accepted(d.Artist, d.Title, now)
	m.resetRetry()
	logger.Info("scrobbled", slog.String("artist", d.Artist), slog.String("title", d.Title))
}

func (m *Monitor) announce(ctx context.Context, snap player.Snapshot) {
	if !m.opts.NowPlaying {
		return
	}
	np, ok := m.opts.Submitter.(scrobble.NowPlayinger)
	if !ok {
		return
	}
	npCtx, cancel := context.WithTimeout(ctx, m.opts.SubmitTimeout)
	defer cancel()
	if err := np.UpdateNowPlaying(npCtx, snap.Artist, snap.Title, snap.Album, snap.Duration); err != nil {
		m.opts.Logger.Warn("now playing update failed", slog.Any("err", err))
	}
}

func (m *Monitor) logSubmitError(key scrobble.Key, err error) {
	kind := "network"
	switch {
	case scrobble.IsRejected(err):
		kind = "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	case errors.Is(err, context.Canceled):
		kind = "canceled"
	case errors.Is(err, scrobble.ErrNotConfigured):
		kind = "not configured"
	}
	m.opts.Logger.Warn("scrobble failed, will retry",
		slog.String("track", key.String()),
		slog.String("kind", kind),
		slog.Any("err", err))
}

func (m *Monitor) scheduleRetry(now time.Time) {
	if m.backoff == nil {
		return
	}
	wait := m.backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = m.backoff.MaxInterval
	}
	m.retryAt = now.Add(wait)
}

func (m *Monitor) resetRetry() {
	m.retryAt = time.Time{}
	if m.backoff != nil {
		m.backoff.Reset()
	}
}
