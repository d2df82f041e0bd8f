// Package mpv reads playback state from a running mpv over its JSON IPC socket.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tunez/scrobbled/internal/player"
)

// errUnavailable is mpv's answer for properties with no value, e.g. duration while idle.
var errUnavailable = errors.New("property unavailable")

// Options configures the Source.
type Options struct {
	IPCPath string
	Logger  *slog.Logger
	Dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	// MaxRetries bounds dial attempts per read.
	MaxRetries int
}

// Source queries an existing mpv started with --input-ipc-server.
type Source struct {
	opts   Options
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int
}

func New(opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IPCPath == "" {
		opts.IPCPath = DefaultIPCPath()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Source{opts: opts}
}

// DefaultIPCPath is where the socket is looked for when none is configured.
func DefaultIPCPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\mpvsocket`
	}
	return filepath.Join(os.TempDir(), "mpvsocket")
}

func (s *Source) Name() string { return "mpv" }

// Close drops the IPC connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked()
}

func (s *Source) Read(ctx context.Context) (player.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			return player.Snapshot{}, err
		}
	}

	snap, err := s.readLocked(ctx)
	if err != nil && !errors.Is(err, player.ErrNotPlaying) {
		_ = s.dropLocked()
	}
	return snap, err
}

func (s *Source) readLocked(ctx context.Context) (player.Snapshot, error) {
	var idle bool
	if err := s.getProperty(ctx, "idle-active", &idle); err != nil && !errors.Is(err, errUnavailable) {
		return player.Snapshot{}, err
	}
	if idle {
		return player.Snapshot{}, player.ErrNotPlaying
	}
	var paused bool
	if err := s.getProperty(ctx, "pause", &paused); err != nil {
		return player.Snapshot{}, err
	}
	if paused {
		return player.Snapshot{}, player.ErrNotPlaying
	}

	var duration, pos float64
	if err := s.getProperty(ctx, "duration", &duration); err != nil {
		return player.Snapshot{}, fmt.Errorf("duration: %w", err)
	}
	if err := s.getProperty(ctx, "time-pos", &pos); err != nil {
		return player.Snapshot{}, fmt.Errorf("time-pos: %w", err)
	}
	var meta map[string]string
	if err := s.getProperty(ctx, "metadata", &meta); err != nil && !errors.Is(err, errUnavailable) {
		return player.Snapshot{}, fmt.Errorf("metadata: %w", err)
	}

	snap := snapshotFromMetadata(meta)
	if snap.Title == "" {
		var mediaTitle string
		if err := s.getProperty(ctx, "media-title", &mediaTitle); err == nil {
			snap.Title = mediaTitle
		}
	}
	snap.Duration = int(math.Floor(duration))
	snap.Position = int(math.Floor(pos))
	return snap, nil
}

func (s *Source) connectLocked(ctx context.Context) error {
	s.opts.Logger.Debug("connecting to mpv ipc", slog.String("ipc_path", s.opts.IPCPath))
	dial := s.opts.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: 2 * time.Second}).DialContext
	}
	var conn net.Conn
	var err error
	baseDelay := 50 * time.Millisecond
	maxDelay := 500 * time.Millisecond
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < s.opts.MaxRetries; i++ {
		conn, err = dial(ctx, "unix", s.opts.IPCPath)
		if err == nil {
			s.conn = conn
			s.reader = bufio.NewReader(conn)
			s.opts.Logger.Debug("connected to mpv ipc on attempt", slog.Int("attempt", i+1))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect mpv ipc: %w", ctx.Err())
		default:
		}

		if i < s.opts.MaxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(i))
			if delay > maxDelay {
				delay = maxDelay
			}
			jitter := time.Duration(float64(delay) * 0.2 * rng.Float64())
			time.Sleep(delay + jitter)
		}
	}
	return fmt.Errorf("%w: connect mpv ipc: %v", player.ErrNotRunning, err)
}

func (s *Source) dropLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id"`
}

type ipcMessage struct {
	Event     string          `json:"event"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	RequestID int             `json:"request_id"`
}

// getProperty sends get_property and decodes the reply into out. Unsolicited
// event lines received in between are discarded.
func (s *Source) getProperty(ctx context.Context, name string, out any) error {
	s.nextID++
	id := s.nextID

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
	} else {
		_ = s.conn.SetDeadline(time.Now().Add(2 * time.Second))
	}

	b, err := json.Marshal(ipcRequest{Command: []any{"get_property", name}, RequestID: id})
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var msg ipcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if msg.Event != "" || msg.RequestID != id {
			continue
		}
		switch msg.Error {
		case "success":
		case "property unavailable":
			return errUnavailable
		default:
			return fmt.Errorf("get_property %s: %s", name, msg.Error)
		}
		if err := json.Unmarshal(msg.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return nil
	}
}

// snapshotFromMetadata reads tags, whose key case depends on the container format.
func snapshotFromMetadata(meta map[string]string) player.Snapshot {
	lookup := func(key string) string {
		for k, v := range meta {
			if strings.EqualFold(k, key) {
				return v
			}
		}
		return ""
	}
	artist := lookup("artist")
	if artist == "" {
		artist = lookup("album_artist")
	}
	return player.Snapshot{
		Artist: artist,
		Title:  lookup("title"),
		Album:  lookup("album"),
	}
}
