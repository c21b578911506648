package tracking

import (
	"time"

	"github.com/google/uuid"
)

// Gate allows at most one outstanding detection request. A request that is
// never answered is abandoned after Timeout so a dead detector cannot stall
// the cadence forever.
type Gate struct {
	Timeout time.Duration

	id       string
	issuedAt time.Time
}

func NewGate(timeout time.Duration) *Gate {
	return &Gate{Timeout: timeout}
}

// InFlight reports whether a request is outstanding at now.
func (g *Gate) InFlight(now time.Time) bool {
	if g.id == "" {
		return false
	}
	if g.Timeout > 0 && now.Sub(g.issuedAt) >= g.Timeout {
		return false
	}
	return true
}

// TryAcquire issues a new request id unless one is already outstanding.
func (g *Gate) TryAcquire(now time.Time) (string, bool) {
	if g.InFlight(now) {
		return "", false
	}
	g.id = uuid.NewString()
	g.issuedAt = now
	return g.id, true
}

// Complete clears the gate if id answers the outstanding request. Stale ids
// leave the gate untouched.
func (g *Gate) Complete(id string) bool {
	if id == "" || id != g.id {
		return false
	}
	g.id = ""
	g.issuedAt = time.Time{}
	return true
}

// Current is the outstanding request id, or "" if none.
func (g *Gate) Current() string {
	return g.id
}
