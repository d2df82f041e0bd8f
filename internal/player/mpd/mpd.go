// Package mpd reads playback state from a Music Player Daemon.
package mpd

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/tunez/scrobbled/internal/player"
)

// Source polls MPD. The connection is opened lazily and re-dialed after errors.
type Source struct {
	Address  string
	Password string

	mu     sync.Mutex
	client *mpd.Client
}

func New(address, password string) *Source {
	return &Source{Address: address, Password: password}
}

func (s *Source) Name() string { return "mpd" }

func (s *Source) Read(ctx context.Context) (player.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return player.Snapshot{}, err
	}

	if s.client == nil {
		c, err := mpd.DialAuthenticated("tcp", s.Address, s.Password)
		if err != nil {
			return player.Snapshot{}, fmt.Errorf("%w: dial %s: %v", player.ErrNotRunning, s.Address, err)
		}
		s.client = c
	}

	status, err := s.client.Status()
	if err != nil {
		s.dropLocked()
		return player.Snapshot{}, fmt.Errorf("status: %w", err)
	}
	if status["state"] != "play" {
		return player.Snapshot{}, player.ErrNotPlaying
	}
	song, err := s.client.CurrentSong()
	if err != nil {
		s.dropLocked()
		return player.Snapshot{}, fmt.Errorf("current song: %w", err)
	}
	return encodeStatus(status, song)
}

// Close disconnects from MPD.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Source) dropLocked() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// encodeStatus gets the most relevant info from the passed Attrs.
func encodeStatus(status, song mpd.Attrs) (player.Snapshot, error) {
	elapsed, err := floorSeconds(status["elapsed"])
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("parse elapsed: %w", err)
	}

	// older servers only report duration on the song
	rawDuration := status["duration"]
	if rawDuration == "" {
		rawDuration = song["duration"]
	}
	if rawDuration == "" {
		rawDuration = song["Time"]
	}
	duration, err := floorSeconds(rawDuration)
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("parse duration: %w", err)
	}

	return player.Snapshot{
		Artist:   song["Artist"],
		Title:    song["Title"],
		Album:    song["Album"],
		Duration: duration,
		Position: elapsed,
	}, nil
}

func floorSeconds(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(f)), nil
}
