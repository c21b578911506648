package dto

import "github.com/your-org/scenetrack/internal/models"

type SessionResponse struct {
	SessionID  string `json:"session_id"`
	Live       bool   `json:"live"`
	Objects    int    `json:"objects"`
	LastUpdate string `json:"last_update,omitempty"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type SelectRequest struct {
	// 0 clears the selection.
	TrackID *int `json:"track_id" binding:"required,min=0"`
}

type ScanRequest struct {
	// Omitted or null clears the scan annotation.
	Progress *float64 `json:"progress" binding:"omitempty,min=0,max=1"`
}

type ConditionsRequest struct {
	DownlinkMbps     float64 `json:"downlink_mbps" binding:"min=0"`
	RTTMillis        float64 `json:"rtt_ms" binding:"min=0"`
	SaveData         bool    `json:"save_data"`
	LowPower         bool    `json:"low_power"`
	ThermalThrottled bool    `json:"thermal_throttled"`
}

func (r ConditionsRequest) Conditions() models.Conditions {
	return models.Conditions{
		DownlinkMbps:     r.DownlinkMbps,
		RTTMillis:        r.RTTMillis,
		SaveData:         r.SaveData,
		LowPower:         r.LowPower,
		ThermalThrottled: r.ThermalThrottled,
	}
}

// WSMessage is a WebSocket message for real-time delivery.
type WSMessage struct {
	Type      string              `json:"type"` // objects, scene_changed, track_evicted
	SessionID string              `json:"session_id"`
	Frame     *models.ObjectFrame `json:"frame,omitempty"`
	Scene     *SceneResponse      `json:"scene,omitempty"`
	Track     *TrackResponse      `json:"track,omitempty"`
}

const WSTypeObjects = "objects"
