package models

type ControlAction string

const (
	ControlSelect     ControlAction = "select"
	ControlScan       ControlAction = "scan"
	ControlConditions ControlAction = "conditions"
)

// Conditions are the network/device signals reported by the client.
// The zero value means "unknown".
type Conditions struct {
	DownlinkMbps     float64 `json:"downlink_mbps"`
	RTTMillis        float64 `json:"rtt_ms"`
	SaveData         bool    `json:"save_data"`
	LowPower         bool    `json:"low_power"`
	ThermalThrottled bool    `json:"thermal_throttled"`
}

// ControlCommand is published by the API on the control subject and routed
// to the session runner that owns SessionID.
type ControlCommand struct {
	Action     ControlAction `json:"action"`
	SessionID  string        `json:"session_id"`
	TrackID    int           `json:"track_id,omitempty"`
	Progress   *float64      `json:"progress,omitempty"`
	Conditions *Conditions   `json:"conditions,omitempty"`
}
