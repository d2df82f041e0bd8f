// Package mpris reads playback state from MPRIS2 players on the D-Bus session bus.
package mpris

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/tunez/scrobbled/internal/player"
)

const (
	busPrefix       = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
)

// Source reads from the first MPRIS player whose bus name matches Player,
// or from the first player found when Player is empty.
type Source struct {
	Player string

	mu   sync.Mutex
	conn *dbus.Conn
}

func New(playerName string) *Source {
	return &Source{Player: playerName}
}

func (s *Source) Name() string {
	if s.Player == "" {
		return "mpris"
	}
	return "mpris:" + s.Player
}

// Close releases the session bus connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Source) Read(ctx context.Context) (player.Snapshot, error) {
	conn, err := s.connection()
	if err != nil {
		return player.Snapshot{}, err
	}

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		s.reset()
		return player.Snapshot{}, fmt.Errorf("list bus names: %w", err)
	}
	name, ok := pickPlayer(names, s.Player)
	if !ok {
		return player.Snapshot{}, player.ErrNotRunning
	}

	snap, err := readPlayer(ctx, conn.Object(name, mprisPath))
	if err != nil {
		return player.Snapshot{}, err
	}
	if snap.Title == "" {
		return player.Snapshot{}, fmt.Errorf("%s: metadata has no title", name)
	}
	return snap, nil
}

// propertyCaller is the part of dbus.BusObject used to read player properties.
type propertyCaller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

func readPlayer(ctx context.Context, obj propertyCaller) (player.Snapshot, error) {
	status, err := getProperty(ctx, obj, "PlaybackStatus")
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("playback status: %w", err)
	}
	if st, _ := status.Value().(string); st != "Playing" {
		return player.Snapshot{}, player.ErrNotPlaying
	}

	meta, err := getProperty(ctx, obj, "Metadata")
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("metadata: %w", err)
	}
	pos, err := getProperty(ctx, obj, "Position")
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("position: %w", err)
	}

	md, _ := meta.Value().(map[string]dbus.Variant)
	snap := snapshotFromMetadata(md)
	snap.Position = int(microseconds(pos.Value()) / 1e6)
	return snap, nil
}

func getProperty(ctx context.Context, obj propertyCaller, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, playerInterface, prop).Store(&v)
	return v, err
}

func (s *Source) connection() (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.conn.Connected() {
		return s.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *Source) reset() {
	_ = s.Close()
}

// pickPlayer returns the MPRIS bus name to read. Names are sorted so the
// choice is stable when several players are running.
func pickPlayer(names []string, want string) (string, bool) {
	var players []string
	for _, n := range names {
		if strings.HasPrefix(n, busPrefix) {
			players = append(players, n)
		}
	}
	sort.Strings(players)
	for _, n := range players {
		if want == "" {
			return n, true
		}
		suffix := strings.TrimPrefix(n, busPrefix)
		// players may append ".instanceNNN" to their well-known name
		if suffix == want || strings.HasPrefix(suffix, want+".") {
			return n, true
		}
	}
	return "", false
}

func snapshotFromMetadata(md map[string]dbus.Variant) player.Snapshot {
	var snap player.Snapshot
	if v, ok := md["xesam:artist"]; ok {
		switch a := v.Value().(type) {
		case []string:
			snap.Artist = strings.Join(a, ", ")
		case string:
			snap.Artist = a
		}
	}
	if v, ok := md["xesam:title"]; ok {
		snap.Title, _ = v.Value().(string)
	}
	if v, ok := md["xesam:album"]; ok {
		snap.Album, _ = v.Value().(string)
	}
	if v, ok := md["mpris:length"]; ok {
		snap.Duration = int(microseconds(v.Value()) / 1e6)
	}
	return snap
}

// microseconds normalises the integer types players use for lengths and positions.
func microseconds(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
