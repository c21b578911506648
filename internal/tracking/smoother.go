package tracking

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
)

// displayDeadband is the smallest displayed-distance change (m) worth showing.
const displayDeadband = 0.01

// Converge moves current a fraction speed of the way toward target.
func Converge(current, target, speed float64) float64 {
	return current + (target-current)*speed
}

func ConvergeVec(current, target r3.Vector, speed float64) r3.Vector {
	return current.Add(target.Sub(current).Mul(speed))
}

// Smoother advances each track's position toward its latest target.
type Smoother struct {
	Normal  float64 // convergence per tick
	Fast    float64 // convergence per tick under rapid motion
	Display float64 // convergence of the displayed distance
}

// Step sets a new target and moves Physics.Current toward it. The first real
// estimate snaps Current so a new track does not fly in from the placeholder.
func (s Smoother) Step(t *Track, target r3.Vector, rapid bool, now time.Time) {
	p := &t.Physics
	p.Target = target

	if !p.estimated {
		p.Current = target
		p.Velocity = r3.Vector{}
		p.estimated = true
		t.DisplayDistance = target.Norm()
		t.displayFiltered = t.DisplayDistance
		t.lastStepAt = now
		return
	}

	speed := s.Normal
	if rapid {
		speed = s.Fast
	}
	prev := p.Current
	p.Current = ConvergeVec(p.Current, p.Target, speed)

	if dt := now.Sub(t.lastStepAt).Seconds(); dt > 0 {
		p.Velocity = p.Current.Sub(prev).Mul(1 / dt)
	}
	t.lastStepAt = now

	t.displayFiltered = Converge(t.displayFiltered, p.Current.Norm(), s.Display)
	if math.Abs(t.displayFiltered-t.DisplayDistance) >= displayDeadband {
		t.DisplayDistance = t.displayFiltered
	}
}

// OpacityAt is the visibility of a track that was last matched sinceMatch ago.
// It stays at 1 until lostAfter, then falls linearly at decayPerSecond.
func OpacityAt(sinceMatch, lostAfter time.Duration, decayPerSecond float64) float64 {
	if sinceMatch <= lostAfter {
		return 1
	}
	faded := (sinceMatch - lostAfter).Seconds() * decayPerSecond
	return clamp(1-faded, 0, 1)
}
