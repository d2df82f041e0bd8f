package scrobble

import (
	"math"
	"time"

	"github.com/tunez/scrobbled/internal/player"
)

// DefaultProgressRatio is the fraction of a track that must play before it counts.
const DefaultProgressRatio = 0.5

// Skip reasons reported by Gate.Evaluate.
const (
	ReasonAlreadyScrobbled = "already scrobbled this instance"
	ReasonBelowThreshold   = "below threshold"
	ReasonCooldown         = "duplicate within cooldown"
)

// Key identifies a logical track. Album and duration are deliberately not part
// of it, so the same song on two releases is one track.
type Key struct {
	Artist string
	Title  string
}

// KeyOf returns the identity of the track in s.
func KeyOf(s player.Snapshot) Key {
	return Key{Artist: s.Artist, Title: s.Title}
}

func (k Key) String() string { return k.Artist + " - " + k.Title }

// Action is what the gate wants done with a snapshot.
type Action int

const (
	ActionSkip Action = iota
	ActionScrobble
)

func (a Action) String() string {
	if a == ActionScrobble {
		return "scrobble"
	}
	return "skip"
}

// Decision is the result of evaluating one snapshot.
type Decision struct {
	Action Action
	Reason string // set when Action is ActionSkip
	Artist string
	Title  string
}

// Play is a scrobble the service accepted.
type Play struct {
	Artist string
	Title  string
	At     time.Time
}

// Gate decides, from a stream of polled snapshots, when a listen should be
// reported. It is owned by a single goroutine and is not safe for concurrent use.
//
// scrobbled is true only if a submission for current was accepted since the
// last OnTrackChanged.
type Gate struct {
	ratio     float64
	current   *Key
	scrobbled bool
	last      *Play
}

// NewGate returns a gate with the given progress ratio. Ratios outside (0, 1]
// fall back to DefaultProgressRatio.
func NewGate(ratio float64) *Gate {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultProgressRatio
	}
	return &Gate{ratio: ratio}
}

// Ratio returns the progress ratio in use.
func (g *Gate) Ratio() float64 { return g.ratio }

// Current returns the track instance being evaluated, if any.
func (g *Gate) Current() (Key, bool) {
	if g.current == nil {
		return Key{}, false
	}
	return *g.current, true
}

// ScrobbledCurrent reports whether the current instance was already accepted.
func (g *Gate) ScrobbledCurrent() bool { return g.scrobbled }

// LastScrobbled returns the most recent accepted scrobble, if any.
func (g *Gate) LastScrobbled() (Play, bool) {
	if g.last == nil {
		return Play{}, false
	}
	return *g.last, true
}

// OnTrackChanged starts a new track instance. It resets the per-instance flag
// even when key equals the previous one, which is how replays are detected.
func (g *Gate) OnTrackChanged(key Key) {
	g.current = &key
	g.scrobbled = false
}

// Threshold is the position in seconds a track of the given duration must
// reach, rounded to one decimal to absorb jitter in reported positions.
func (g *Gate) Threshold(duration int) float64 {
	return math.Round(float64(duration)*g.ratio*10) / 10
}

// Evaluate decides what to do with s at time now. It never mutates state.
func (g *Gate) Evaluate(s player.Snapshot, now time.Time) Decision {
	key := KeyOf(s)
	if g.scrobbled && g.current != nil && *g.current == key {
		return skip(s, ReasonAlreadyScrobbled)
	}

	if float64(s.Position) < g.Threshold(s.Duration) {
		return skip(s, ReasonBelowThreshold)
	}

	// The cooldown uses half the duration regardless of the progress ratio.
	if g.last != nil && g.last.Artist == s.Artist && g.last.Title == s.Title {
		cooldown := time.Duration(s.Duration) * time.Second / 2
		if now.Sub(g.last.At) < cooldown {
			return skip(s, ReasonCooldown)
		}
	}

	return Decision{Action: ActionScrobble, Artist: s.Artist, Title: s.Title}
}

// Accepted records that the service accepted a scrobble of artist/title at now.
// Failed submissions must not be reported here so the next tick retries.
func (g *Gate) Accepted(artist, title string, now time.Time) {
	g.scrobbled = true
	g.last = &Play{Artist: artist, Title: title, At: now}
}

func skip(s player.Snapshot, reason string) Decision {
	return Decision{Action: ActionSkip, Reason: reason, Artist: s.Artist, Title: s.Title}
}
