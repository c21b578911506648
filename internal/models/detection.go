package models

import "time"

// Detection is one result from the external perception model.
type Detection struct {
	Class       string     `json:"class"`
	Score       float64    `json:"score"`
	BBox        [4]float64 `json:"bbox"` // x, y, w, h in analysis-image pixels
	Gesture     string     `json:"gesture,omitempty"`
	ScaleFactor float64    `json:"scaleFactor,omitempty"` // analysis-image -> source-video pixels
}

// DetectionBatch is the message published to NATS for each inference pass.
type DetectionBatch struct {
	SessionID   string      `json:"session_id"`
	RequestID   string      `json:"request_id,omitempty"` // echoes DetectionRequest.RequestID when answering one
	CapturedAt  time.Time   `json:"captured_at"`
	VideoWidth  int         `json:"video_width"`
	VideoHeight int         `json:"video_height"`
	ScaleFactor float64     `json:"scaleFactor,omitempty"` // default for detections that carry none
	RapidMotion *bool       `json:"rapid_motion,omitempty"` // nil when the sender does not measure motion
	Detections  []Detection `json:"detections"`
}

// DetectionRequest asks the capture/detection collaborator for a new batch.
type DetectionRequest struct {
	SessionID     string    `json:"session_id"`
	RequestID     string    `json:"request_id"`
	IssuedAt      time.Time `json:"issued_at"`
	CaptureWidth  int       `json:"capture_width"`
	CaptureHeight int       `json:"capture_height"`
	JPEGQuality   float64   `json:"jpeg_quality"`
}
