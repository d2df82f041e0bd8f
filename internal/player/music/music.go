// Package music reads Apple Music playback state through osascript.
package music

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tunez/scrobbled/internal/player"
)

const fieldSep = "\x1f"

// script prints one unit-separated line: state, artist, title, album,
// duration and position. Nothing is printed when Music is not running, so
// the query never launches the app.
const script = `if application "Music" is running then
	tell application "Music"
		set st to (player state as text)
		if st is not "playing" then return st
		set t to current track
		set sep to (ASCII character 31)
		return st & sep & (artist of t) & sep & (name of t) & sep & (album of t) & sep & ((duration of t) as text) & sep & ((player position) as text)
	end tell
end if
return ""`

// Source queries the Music app.
type Source struct {
	run func(ctx context.Context, script string) ([]byte, error)
}

func New() *Source {
	return &Source{run: runOSAScript}
}

func (s *Source) Name() string { return "music" }

func (s *Source) Read(ctx context.Context) (player.Snapshot, error) {
	out, err := s.run(ctx, script)
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("osascript: %w", err)
	}
	return parse(string(out))
}

func parse(out string) (player.Snapshot, error) {
	out = strings.TrimRight(out, "\r\n")
	if out == "" {
		return player.Snapshot{}, player.ErrNotRunning
	}
	fields := strings.Split(out, fieldSep)
	if fields[0] != "playing" {
		return player.Snapshot{}, player.ErrNotPlaying
	}
	if len(fields) != 6 {
		return player.Snapshot{}, fmt.Errorf("unexpected osascript output %q", out)
	}

	duration, err := parseSeconds(fields[4])
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("parse duration: %w", err)
	}
	position, err := parseSeconds(fields[5])
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("parse position: %w", err)
	}

	return player.Snapshot{
		Artist:   fields[1],
		Title:    fields[2],
		Album:    fields[3],
		Duration: duration,
		Position: position,
	}, nil
}

// parseSeconds floors an AppleScript real, which uses the user's locale
// decimal separator.
func parseSeconds(s string) (int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" || s == "missing value" {
		return 0, errors.New("missing value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(f)), nil
}

func runOSAScript(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}
