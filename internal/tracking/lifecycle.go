package tracking

import "time"

// Lifecycle drives the Active -> Lost -> Evicted state machine.
//
//	Active --(unmatched > LostAfter)--> Lost --(opacity < EvictBelow)--> Evicted
//	  ^                                   |
//	  +------------(matched)--------------+
//
// The lost flag is raised immediately but the fade is gradual, so a single
// dropped detection never makes an overlay flicker.
type Lifecycle struct {
	LostAfter      time.Duration
	DecayPerSecond float64
	EvictBelow     float64
}

// Advance updates state and opacity for one tick and returns the new state.
// A returned StateEvicted means the caller must remove the track from the
// registry; Advance itself never destroys anything.
func (l Lifecycle) Advance(t *Track, now time.Time) State {
	since := t.SinceMatch(now)
	if since <= l.LostAfter {
		t.State = StateActive
		t.Opacity = 1
		return StateActive
	}

	if t.State == StateActive {
		t.State = StateLost
		t.LostAt = t.LastSeenAt.Add(l.LostAfter)
	}

	t.Opacity = OpacityAt(since, l.LostAfter, l.DecayPerSecond)
	if t.Opacity < l.EvictBelow {
		return StateEvicted
	}
	return StateLost
}

// EvictionDelay is how long after its last match a track leaves the registry.
func (l Lifecycle) EvictionDelay() time.Duration {
	if l.DecayPerSecond <= 0 {
		return time.Duration(1<<63 - 1)
	}
	fade := (1 - l.EvictBelow) / l.DecayPerSecond
	return l.LostAfter + time.Duration(fade*float64(time.Second))
}
