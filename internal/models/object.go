package models

import "time"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TrackedObject is the per-track output consumed by renderers and summaries.
type TrackedObject struct {
	ID           int        `json:"id"`
	Class        string     `json:"class"`
	Confidence   float64    `json:"confidence"`
	BBox         [4]float64 `json:"bbox"` // x, y, w, h in viewport pixels
	Position3D   Vec3       `json:"position3D"`
	Distance     float64    `json:"distance"`
	LastSeen     int64      `json:"lastSeen"` // unix milliseconds
	IsOccluded   bool       `json:"isOccluded"`
	IsSelected   bool       `json:"isSelected"`
	DepthSource  string     `json:"depthSource"`
	Opacity      float64    `json:"opacity"`
	Label        string     `json:"label"`
	Gesture      string     `json:"gesture,omitempty"`
	ScanProgress *float64   `json:"scanProgress,omitempty"`
}

// ObjectFrame is the full object list for one session at one tick.
type ObjectFrame struct {
	SessionID   string          `json:"session_id"`
	Timestamp   time.Time       `json:"timestamp"`
	RapidMotion bool            `json:"rapid_motion"`
	Objects     []TrackedObject `json:"objects"`
}
