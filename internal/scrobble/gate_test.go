package scrobble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunez/scrobbled/internal/player"
)

func snap(artist, title string, duration, position int) player.Snapshot {
	return player.Snapshot{Artist: artist, Title: title, Album: "Album", Duration: duration, Position: position}
}

func at(sec int64) time.Time { return time.Unix(sec, 0) }

func TestNewGateRatio(t *testing.T) {
	assert.Equal(t, 0.5, NewGate(0).Ratio())
	assert.Equal(t, 0.5, NewGate(-1).Ratio())
	assert.Equal(t, 0.5, NewGate(1.5).Ratio())
	assert.Equal(t, 0.8, NewGate(0.8).Ratio())
	assert.Equal(t, 1.0, NewGate(1).Ratio())
}

func TestThresholdRounding(t *testing.T) {
	g := NewGate(0.5)
	assert.Equal(t, 100.0, g.Threshold(200))
	assert.Equal(t, 100.5, g.Threshold(201))

	g = NewGate(0.33)
	// 0.33 * 247 = 81.51 -> 81.5
	assert.Equal(t, 81.5, g.Threshold(247))
	assert.Equal(t, 0.0, g.Threshold(0))
}

func TestScenarioAThreshold(t *testing.T) {
	g := NewGate(0.5)
	g.OnTrackChanged(Key{Artist: "A", Title: "Song"})

	d := g.Evaluate(snap("A", "Song", 200, 99), at(1000))
	assert.Equal(t, ActionSkip, d.Action)
	assert.Equal(t, ReasonBelowThreshold, d.Reason)

	d = g.Evaluate(snap("A", "Song", 200, 100), at(1000))
	assert.Equal(t, ActionScrobble, d.Action)
	assert.Equal(t, "A", d.Artist)
	assert.Equal(t, "Song", d.Title)
}

func TestBelowThresholdAlwaysSkips(t *testing.T) {
	g := NewGate(0.5)

	// fresh gate, no current track
	assert.Equal(t, ActionSkip, g.Evaluate(snap("A", "Song", 300, 10), at(0)).Action)

	// after an accepted scrobble of a different track
	g.OnTrackChanged(Key{Artist: "B", Title: "Other"})
	g.Accepted("B", "Other", at(10))
	assert.Equal(t, ActionSkip, g.Evaluate(snap("A", "Song", 300, 149), at(5000)).Action)

	// after an accepted scrobble of the same track long ago
	g.OnTrackChanged(Key{Artist: "A", Title: "Song"})
	assert.Equal(t, ActionSkip, g.Evaluate(snap("A", "Song", 300, 0), at(99999)).Action)
}

func TestAlreadyScrobbledThisInstance(t *testing.T) {
	g := NewGate(0.5)
	key := Key{Artist: "A", Title: "Song"}
	g.OnTrackChanged(key)

	d := g.Evaluate(snap("A", "Song", 200, 120), at(1000))
	require.Equal(t, ActionScrobble, d.Action)
	g.Accepted(d.Artist, d.Title, at(1000))
	assert.True(t, g.ScrobbledCurrent())

	for _, pos := range []int{121, 150, 199, 200} {
		d := g.Evaluate(snap("A", "Song", 200, pos), at(int64(1000+pos)))
		assert.Equal(t, ActionSkip, d.Action)
		assert.Equal(t, ReasonAlreadyScrobbled, d.Reason)
	}

	// long after the cooldown it still counts as the same instance
	d = g.Evaluate(snap("A", "Song", 200, 150), at(100000))
	assert.Equal(t, ReasonAlreadyScrobbled, d.Reason)
}

func TestTrackChangeResetsEvenForSameKey(t *testing.T) {
	g := NewGate(0.5)
	key := Key{Artist: "A", Title: "Song"}
	g.OnTrackChanged(key)
	g.Accepted("A", "Song", at(1000))
	require.True(t, g.ScrobbledCurrent())

	g.OnTrackChanged(key)
	assert.False(t, g.ScrobbledCurrent())
	cur, ok := g.Current()
	require.True(t, ok)
	assert.Equal(t, key, cur)

	last, ok := g.LastScrobbled()
	require.True(t, ok)
	assert.Equal(t, Play{Artist: "A", Title: "Song", At: at(1000)}, last)
}

func TestScenarioBCooldown(t *testing.T) {
	g := NewGate(0.5)
	key := Key{Artist: "A", Title: "Song"}
	g.OnTrackChanged(key)
	g.Accepted("A", "Song", at(1000))

	// replay of the same song, new instance
	g.OnTrackChanged(key)

	d := g.Evaluate(snap("A", "Song", 200, 110), at(1050))
	assert.Equal(t, ActionSkip, d.Action)
	assert.Equal(t, ReasonCooldown, d.Reason)

	d = g.Evaluate(snap("A", "Song", 200, 110), at(1120))
	assert.Equal(t, ActionScrobble, d.Action)
}

func TestCooldownBoundary(t *testing.T) {
	g := NewGate(0.5)
	key := Key{Artist: "A", Title: "Song"}
	g.OnTrackChanged(key)
	g.Accepted("A", "Song", at(1000))
	g.OnTrackChanged(key)

	assert.Equal(t, ReasonCooldown, g.Evaluate(snap("A", "Song", 200, 100), at(1099)).Reason)
	assert.Equal(t, ActionScrobble, g.Evaluate(snap("A", "Song", 200, 100), at(1100)).Action)
}

func TestCooldownIgnoresOtherTracks(t *testing.T) {
	g := NewGate(0.5)
	g.OnTrackChanged(Key{Artist: "A", Title: "Song"})
	g.Accepted("A", "Song", at(1000))

	g.OnTrackChanged(Key{Artist: "A", Title: "Other"})
	d := g.Evaluate(snap("A", "Other", 200, 100), at(1001))
	assert.Equal(t, ActionScrobble, d.Action)
}

func TestCooldownUsesHalfDurationNotRatio(t *testing.T) {
	g := NewGate(0.9)
	key := Key{Artist: "A", Title: "Song"}
	g.OnTrackChanged(key)
	g.Accepted("A", "Song", at(1000))
	g.OnTrackChanged(key)

	// 90% threshold reached, but inside the fixed duration/2 cooldown
	assert.Equal(t, ReasonCooldown, g.Evaluate(snap("A", "Song", 200, 180), at(1099)).Reason)
	assert.Equal(t, ActionScrobble, g.Evaluate(snap("A", "Song", 200, 180), at(1100)).Action)
}

func TestLatestDurationWins(t *testing.T) {
	g := NewGate(0.5)
	g.OnTrackChanged(Key{Artist: "A", Title: "Stream"})

	assert.Equal(t, ActionSkip, g.Evaluate(snap("A", "Stream", 400, 150), at(0)).Action)
	// player revised the duration down
	assert.Equal(t, ActionScrobble, g.Evaluate(snap("A", "Stream", 300, 150), at(10)).Action)
}

func TestAlbumIsNotPartOfKey(t *testing.T) {
	g := NewGate(0.5)
	g.OnTrackChanged(Key{Artist: "A", Title: "Song"})
	g.Accepted("A", "Song", at(1000))

	s := snap("A", "Song", 200, 150)
	s.Album = "Live"
	assert.Equal(t, Key{Artist: "A", Title: "Song"}, KeyOf(s))
	assert.Equal(t, ReasonAlreadyScrobbled, g.Evaluate(s, at(1010)).Reason)
}

func TestFailedSubmissionLeavesStateUntouched(t *testing.T) {
	g := NewGate(0.5)
	g.OnTrackChanged(Key{Artist: "A", Title: "Song"})

	d := g.Evaluate(snap("A", "Song", 200, 120), at(1000))
	require.Equal(t, ActionScrobble, d.Action)
	// submission failed: Accepted is not called

	assert.False(t, g.ScrobbledCurrent())
	_, ok := g.LastScrobbled()
	assert.False(t, ok)

	d = g.Evaluate(snap("A", "Song", 200, 130), at(1010))
	assert.Equal(t, ActionScrobble, d.Action)
}

func TestAbandonedTrackIsNeverScrobbled(t *testing.T) {
	g := NewGate(0.5)
	g.OnTrackChanged(Key{Artist: "A", Title: "First"})
	assert.Equal(t, ActionSkip, g.Evaluate(snap("A", "First", 200, 40), at(0)).Action)

	g.OnTrackChanged(Key{Artist: "B", Title: "Second"})
	d := g.Evaluate(snap("B", "Second", 180, 5), at(10))
	assert.Equal(t, ActionSkip, d.Action)
	assert.Equal(t, "Second", d.Title)

	d = g.Evaluate(snap("B", "Second", 180, 90), at(95))
	assert.Equal(t, ActionScrobble, d.Action)
	assert.Equal(t, "B", d.Artist)
	assert.Equal(t, "Second", d.Title)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "Artist - Title", Key{Artist: "Artist", Title: "Title"}.String())
	assert.Equal(t, "scrobble", ActionScrobble.String())
	assert.Equal(t, "skip", ActionSkip.String())
}
