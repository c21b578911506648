package tracking

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
)

var ErrUnknownTrack = errors.New("unknown track")

// ResourceReleaser owns per-track resources (render handles, cached labels)
// and is told exactly once when the track is destroyed.
type ResourceReleaser interface {
	Release(trackID int)
}

// ReleaseFunc adapts a function to ResourceReleaser.
type ReleaseFunc func(trackID int)

func (f ReleaseFunc) Release(trackID int) { f(trackID) }

// IDSource hands out track ids. One source shared by every registry in the
// process keeps ids unique across sessions and across restarts of a session.
// It is safe for concurrent use.
type IDSource struct {
	last atomic.Int64
}

func NewIDSource() *IDSource {
	return &IDSource{}
}

// Next returns the next unused id, starting at 1.
func (s *IDSource) Next() int {
	return int(s.last.Add(1))
}

// Peek is the id Next would return if no other registry takes one first.
func (s *IDSource) Peek() int {
	return int(s.last.Load()) + 1
}

// Registry is the authoritative set of live tracks. Tracks are stored in an
// id-ordered arena; ids are assigned monotonically and never reused.
// It is not safe for concurrent use: the tick that owns it is the only writer.
type Registry struct {
	tracks    []*Track
	index     map[int]int // id -> position in tracks
	ids       *IDSource
	releasers []ResourceReleaser
}

// NewRegistry returns a registry with its own id sequence.
func NewRegistry() *Registry {
	return NewRegistryWithIDs(NewIDSource())
}

// NewRegistryWithIDs returns a registry drawing ids from a shared source.
func NewRegistryWithIDs(ids *IDSource) *Registry {
	return &Registry{
		index: make(map[int]int),
		ids:   ids,
	}
}

// OnRelease registers a releaser invoked for every removed track.
func (r *Registry) OnRelease(rel ResourceReleaser) {
	r.releasers = append(r.releasers, rel)
}

// Create adds a new Active track seeded with box and a far-away placeholder position.
func (r *Registry) Create(class string, box Box, placeholderDepth float64, now time.Time) *Track {
	placeholder := r3.Vector{Z: -placeholderDepth}
	t := &Track{
		ID:         r.ids.Next(),
		Class:      class,
		BBox:       box,
		Physics:    Physics{Current: placeholder, Target: placeholder},
		Opacity:    1.0,
		Hits:       1,
		CreatedAt:  now,
		LastSeenAt: now,
		State:      StateActive,
	}

	r.index[t.ID] = len(r.tracks)
	r.tracks = append(r.tracks, t)
	return t
}

func (r *Registry) Get(id int) (*Track, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.tracks[i], true
}

// Lookup is Get with an error for ids that are not live.
func (r *Registry) Lookup(id int) (*Track, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("track %d: %w", id, ErrUnknownTrack)
	}
	return t, nil
}

// Remove destroys a track and releases its resources. It returns false if the
// id is not live, so a track can only ever be released once.
func (r *Registry) Remove(id int) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	t := r.tracks[i]
	t.State = StateEvicted

	copy(r.tracks[i:], r.tracks[i+1:])
	r.tracks[len(r.tracks)-1] = nil
	r.tracks = r.tracks[:len(r.tracks)-1]
	delete(r.index, id)
	for j := i; j < len(r.tracks); j++ {
		r.index[r.tracks[j].ID] = j
	}

	for _, rel := range r.releasers {
		rel.Release(id)
	}
	return true
}

// Each visits live tracks in ascending id order. fn must not add or remove tracks.
func (r *Registry) Each(fn func(*Track)) {
	for _, t := range r.tracks {
		fn(t)
	}
}

// Tracks returns the live tracks in ascending id order.
func (r *Registry) Tracks() []*Track {
	out := make([]*Track, len(r.tracks))
	copy(out, r.tracks)
	return out
}

func (r *Registry) Len() int {
	return len(r.tracks)
}

// NextID is the id the next created track will receive, unless a registry
// sharing the same IDSource takes it first.
func (r *Registry) NextID() int {
	return r.ids.Peek()
}
