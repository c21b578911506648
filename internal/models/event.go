package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSceneChanged EventType = "scene_changed"
	EventTrackEvicted EventType = "track_evicted"
)

// SceneEvent records a debounced change of the class multiset in a session.
type SceneEvent struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	SessionID   string         `json:"session_id" db:"session_id"`
	Signature   string         `json:"signature" db:"signature"`
	Summary     string         `json:"summary" db:"summary"`
	Counts      map[string]int `json:"counts" db:"counts"`
	OccurredAt  time.Time      `json:"occurred_at" db:"occurred_at"`
	SnapshotKey string         `json:"snapshot_key" db:"snapshot_key"` // MinIO key of the object list at the change
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// TrackRecord is written once per evicted track.
type TrackRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	TrackID   int       `json:"track_id" db:"track_id"`
	Class     string    `json:"class" db:"class"`
	Hits      int       `json:"hits" db:"hits"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
	EvictedAt time.Time `json:"evicted_at" db:"evicted_at"`
}

// Event is the envelope published on the EVENTS stream.
type Event struct {
	Type  EventType    `json:"type"`
	Scene *SceneEvent  `json:"scene,omitempty"`
	Track *TrackRecord `json:"track,omitempty"`
}

// SceneSnapshot is archived to object storage for every scene change.
type SceneSnapshot struct {
	Scene   SceneEvent      `json:"scene"`
	Objects []TrackedObject `json:"objects"`
}
