package tracking

import (
	"math"
	"time"

	"github.com/your-org/scenetrack/internal/models"
)

const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"

	minJPEGQuality = 0.35
)

// CadencePlan is the requested detection cadence and capture settings.
// Delivery is best-effort; the plan only shapes what is asked for.
type CadencePlan struct {
	Tier           string
	DetectInterval time.Duration
	CaptureWidth   int
	CaptureHeight  int
	JPEGQuality    float64
}

// Plan maps network/device conditions and the rapid-motion flag to a cadence.
// Unknown network conditions (no downlink or RTT reported) get the medium tier.
func Plan(c models.Conditions, rapid bool) CadencePlan {
	var p CadencePlan
	switch {
	case c.DownlinkMbps == 0 && c.RTTMillis == 0:
		p = CadencePlan{Tier: TierMedium, DetectInterval: 300 * time.Millisecond, CaptureWidth: 480, JPEGQuality: 0.70}
	case c.DownlinkMbps >= 8 && c.RTTMillis <= 100:
		p = CadencePlan{Tier: TierHigh, DetectInterval: 150 * time.Millisecond, CaptureWidth: 640, JPEGQuality: 0.80}
	case c.DownlinkMbps >= 2 && c.RTTMillis <= 300:
		p = CadencePlan{Tier: TierMedium, DetectInterval: 300 * time.Millisecond, CaptureWidth: 480, JPEGQuality: 0.70}
	default:
		p = CadencePlan{Tier: TierLow, DetectInterval: 600 * time.Millisecond, CaptureWidth: 320, JPEGQuality: 0.55}
	}

	if c.SaveData {
		p.JPEGQuality -= 0.10
	}
	if c.LowPower || c.ThermalThrottled {
		p.DetectInterval = p.DetectInterval * 3 / 2
		if p.CaptureWidth > 480 {
			p.CaptureWidth = 480
		}
	}
	if rapid {
		p.JPEGQuality -= 0.15
	}

	p.JPEGQuality = math.Max(minJPEGQuality, math.Round(p.JPEGQuality*100)/100)
	p.CaptureHeight = p.CaptureWidth * 3 / 4
	return p
}

// RequestDecision is the outcome of asking whether to request detection now.
type RequestDecision string

const (
	RequestIssued     RequestDecision = "issued"
	RequestSuppressed RequestDecision = "suppressed_motion"
	RequestTooSoon    RequestDecision = "interval"
	RequestInFlight   RequestDecision = "in_flight"
)

// CadenceController turns a Plan into request decisions. Suppression after a
// motion burst is a scheduled-at timestamp checked on every call.
type CadenceController struct {
	Cooldown time.Duration

	gate          *Gate
	conditions    models.Conditions
	rapid         bool
	suppressUntil time.Time
	lastRequestAt time.Time
}

func NewCadenceController(cooldown time.Duration, gate *Gate) *CadenceController {
	return &CadenceController{Cooldown: cooldown, gate: gate}
}

func (c *CadenceController) SetConditions(cond models.Conditions) {
	c.conditions = cond
}

// SetMotion records the rapid-motion flag. Turning rapid starts a cooldown
// during which no detection requests are issued.
func (c *CadenceController) SetMotion(rapid bool, now time.Time) {
	if rapid && !c.rapid {
		c.suppressUntil = now.Add(c.Cooldown)
	}
	c.rapid = rapid
}

func (c *CadenceController) Rapid() bool {
	return c.rapid
}

func (c *CadenceController) Plan() CadencePlan {
	return Plan(c.conditions, c.rapid)
}

// Next decides whether a detection request should be issued at now and, if
// so, acquires the in-flight gate and returns the new request id.
func (c *CadenceController) Next(now time.Time) (string, CadencePlan, RequestDecision) {
	plan := c.Plan()

	if now.Before(c.suppressUntil) {
		return "", plan, RequestSuppressed
	}
	if !c.lastRequestAt.IsZero() && now.Sub(c.lastRequestAt) < plan.DetectInterval {
		return "", plan, RequestTooSoon
	}
	id, ok := c.gate.TryAcquire(now)
	if !ok {
		return "", plan, RequestInFlight
	}
	c.lastRequestAt = now
	return id, plan, RequestIssued
}
