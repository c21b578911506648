package tracking

import (
	"time"

	"github.com/golang/geo/r3"
)

// State is the lifecycle state of a track.
type State int

const (
	StateActive State = iota
	StateLost
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateLost:
		return "lost"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Physics is the 3D position state of a track in scene-space metres.
type Physics struct {
	Current  r3.Vector
	Target   r3.Vector
	Velocity r3.Vector

	estimated bool // Target has been set from a real estimate at least once
}

// Track is one tracked entity. Class never changes after creation.
type Track struct {
	ID    int
	Class string

	BBox    Box // smoothed, source-video pixels
	Physics Physics

	Opacity           float64
	ConsecutiveMisses int
	Hits              int
	Confidence        float64
	Gesture           string
	ScanProgress      *float64

	CreatedAt  time.Time
	LastSeenAt time.Time
	LostAt     time.Time
	State      State

	DepthSource     DepthSource
	DisplayDistance float64

	lastStepAt time.Time
	// displayFiltered is the slow distance filter; DisplayDistance only
	// follows it once they differ by the dead-band.
	displayFiltered float64
}

func (t *Track) SinceMatch(now time.Time) time.Duration {
	return now.Sub(t.LastSeenAt)
}

// EvictedTrack is the summary kept after a track leaves the registry.
type EvictedTrack struct {
	ID        int
	Class     string
	Hits      int
	CreatedAt time.Time
	LastSeen  time.Time
	EvictedAt time.Time
}
