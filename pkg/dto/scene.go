package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/scenetrack/internal/models"
)

type SceneResponse struct {
	ID          uuid.UUID      `json:"id"`
	SessionID   string         `json:"session_id"`
	Signature   string         `json:"signature"`
	Summary     string         `json:"summary"`
	Counts      map[string]int `json:"counts"`
	OccurredAt  string         `json:"occurred_at"`
	SnapshotURL string         `json:"snapshot_url,omitempty"`
}

type SceneListResponse struct {
	Scenes []SceneResponse `json:"scenes"`
	Total  int             `json:"total"`
}

func NewSceneResponse(ev models.SceneEvent) SceneResponse {
	r := SceneResponse{
		ID:         ev.ID,
		SessionID:  ev.SessionID,
		Signature:  ev.Signature,
		Summary:    ev.Summary,
		Counts:     ev.Counts,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.SnapshotKey != "" {
		r.SnapshotURL = "/v1/scenes/" + ev.ID.String() + "/snapshot"
	}
	return r
}

type TrackResponse struct {
	TrackID   int    `json:"track_id"`
	SessionID string `json:"session_id"`
	Class     string `json:"class"`
	Hits      int    `json:"hits"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	EvictedAt string `json:"evicted_at"`
	Lifetime  string `json:"lifetime"`
}

type TrackListResponse struct {
	Tracks []TrackResponse `json:"tracks"`
}

func NewTrackResponse(rec models.TrackRecord) TrackResponse {
	return TrackResponse{
		TrackID:   rec.TrackID,
		SessionID: rec.SessionID,
		Class:     rec.Class,
		Hits:      rec.Hits,
		FirstSeen: rec.FirstSeen.UTC().Format(time.RFC3339Nano),
		LastSeen:  rec.LastSeen.UTC().Format(time.RFC3339Nano),
		EvictedAt: rec.EvictedAt.UTC().Format(time.RFC3339Nano),
		Lifetime:  rec.LastSeen.Sub(rec.FirstSeen).Round(time.Millisecond).String(),
	}
}
