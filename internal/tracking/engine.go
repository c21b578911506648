package tracking

import (
	"image"
	"log/slog"
	"time"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/observability"
)

type CommandKind int

const (
	CmdSelect CommandKind = iota
	CmdScanProgress
	CmdConditions
	CmdFrame
)

// Command mutates engine state from outside the tick. Commands are queued and
// applied at the start of the next tick.
type Command struct {
	Kind       CommandKind
	TrackID    int
	Progress   *float64
	Conditions models.Conditions
	Frame      image.Image
}

// Frame is everything one tick produced.
type Frame struct {
	At       time.Time
	Objects  []models.TrackedObject
	Scene    *SceneChange
	Evicted  []EvictedTrack
	Created  int
	Rapid    bool
	Batches  int
	Dropped  int
	Tracking int
}

// Engine runs the tracking core for one session: detection batches and
// commands arrive over channels and are folded in at tick boundaries, so the
// registry only ever has one writer.
type Engine struct {
	sessionID string
	params    Params

	registry *Registry
	assoc    Associator
	life     Lifecycle
	smoother Smoother
	scene    *SceneDetector
	gate     *Gate
	cadence  *CadenceController
	motion   *MotionDetector
	labels   *LabelCache
	hands    map[string]bool

	inbox    chan models.DetectionBatch
	commands chan Command

	video       Size
	viewport    Size
	selected    int
	lastBatchAt time.Time
}

func NewEngine(sessionID string, p Params) *Engine {
	return NewEngineWithIDs(sessionID, p, NewIDSource())
}

// NewEngineWithIDs is NewEngine with track ids drawn from a shared source.
func NewEngineWithIDs(sessionID string, p Params, ids *IDSource) *Engine {
	gate := NewGate(p.RequestTimeout)
	e := &Engine{
		sessionID: sessionID,
		params:    p,
		registry:  NewRegistryWithIDs(ids),
		assoc:     Associator{ConfidenceFloor: p.ConfidenceFloor, Gate: p.AssociationGate},
		life: Lifecycle{
			LostAfter:      p.LostThreshold,
			DecayPerSecond: p.OpacityDecayPerSecond,
			EvictBelow:     p.EvictOpacity,
		},
		smoother: Smoother{Normal: p.SmoothingNormal, Fast: p.SmoothingFast, Display: p.DisplaySmoothing},
		scene:    NewSceneDetector(p.SceneDebounce),
		gate:     gate,
		cadence:  NewCadenceController(p.MotionCooldown, gate),
		motion:   NewMotionDetector(p.MotionPatchSize, p.MotionThreshold),
		labels:   NewLabelCache(),
		hands:    make(map[string]bool, len(p.HandClasses)),
		inbox:    make(chan models.DetectionBatch, max(1, p.InboxSize)),
		commands: make(chan Command, max(1, p.CommandSize)),
		video:    Size{W: float64(p.VideoWidth), H: float64(p.VideoHeight)},
		viewport: Size{W: float64(p.ViewportWidth), H: float64(p.ViewportHeight)},
	}
	for _, c := range p.HandClasses {
		e.hands[c] = true
	}

	e.registry.OnRelease(e.labels)
	e.registry.OnRelease(ReleaseFunc(func(id int) {
		if e.selected == id {
			e.selected = 0
		}
	}))
	return e
}

func (e *Engine) SessionID() string { return e.sessionID }

// Registry exposes the live track set. Only the goroutine calling Tick may use it.
func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) LastBatchAt() time.Time { return e.lastBatchAt }

// Submit queues a detection batch without blocking. It returns false and
// drops the batch when the inbox is full.
func (e *Engine) Submit(b models.DetectionBatch) bool {
	select {
	case e.inbox <- b:
		return true
	default:
		observability.BatchesDropped.WithLabelValues(e.sessionID).Inc()
		slog.Warn("detection inbox full, dropping batch", "session", e.sessionID, "request_id", b.RequestID)
		return false
	}
}

// Send queues a command without blocking.
func (e *Engine) Send(cmd Command) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		slog.Warn("command queue full, dropping command", "session", e.sessionID, "kind", cmd.Kind)
		return false
	}
}

// Select marks a track as selected; id 0 clears the selection.
func (e *Engine) Select(id int) bool {
	return e.Send(Command{Kind: CmdSelect, TrackID: id})
}

// SetScanProgress annotates a track with deep-analysis progress; nil clears it.
func (e *Engine) SetScanProgress(id int, progress *float64) bool {
	return e.Send(Command{Kind: CmdScanProgress, TrackID: id, Progress: progress})
}

func (e *Engine) SetConditions(c models.Conditions) bool {
	return e.Send(Command{Kind: CmdConditions, Conditions: c})
}

// ObserveFrame feeds a captured frame to the motion detector.
func (e *Engine) ObserveFrame(img image.Image) bool {
	return e.Send(Command{Kind: CmdFrame, Frame: img})
}

// Tick advances the session by one step:
// commands -> batches/association -> lifecycle -> scene -> smoothing/geometry.
func (e *Engine) Tick(now time.Time) Frame {
	start := time.Now()
	defer func() {
		observability.TickDuration.Observe(time.Since(start).Seconds())
	}()

	e.applyCommands(now)

	f := Frame{At: now}
	for _, b := range e.drainInbox() {
		created, dropped := e.integrate(b, now)
		f.Created += created
		f.Dropped += dropped
		f.Batches++
	}

	f.Evicted = e.advanceLifecycle(now)

	if f.Batches > 0 {
		if change, ok := e.scene.Evaluate(e.activeClasses(), now); ok {
			observability.SceneChanges.WithLabelValues(e.sessionID).Inc()
			f.Scene = &change
		}
	}

	f.Objects = e.render(now)
	f.Rapid = e.cadence.Rapid()
	f.Tracking = e.registry.Len()
	observability.ActiveTracks.WithLabelValues(e.sessionID).Set(float64(f.Tracking))
	return f
}

// Pending is the number of batches waiting for the next tick.
func (e *Engine) Pending() int {
	return len(e.inbox)
}

// NextRequest returns a detection request when the cadence allows one.
func (e *Engine) NextRequest(now time.Time) (models.DetectionRequest, bool) {
	id, plan, decision := e.cadence.Next(now)
	if decision != RequestTooSoon {
		observability.DetectionRequests.WithLabelValues(string(decision)).Inc()
	}
	if decision != RequestIssued {
		return models.DetectionRequest{}, false
	}
	return models.DetectionRequest{
		SessionID:     e.sessionID,
		RequestID:     id,
		IssuedAt:      now,
		CaptureWidth:  plan.CaptureWidth,
		CaptureHeight: plan.CaptureHeight,
		JPEGQuality:   plan.JPEGQuality,
	}, true
}

func (e *Engine) drainInbox() []models.DetectionBatch {
	var batches []models.DetectionBatch
	for {
		select {
		case b := <-e.inbox:
			batches = append(batches, b)
		default:
			return batches
		}
	}
}

func (e *Engine) applyCommands(now time.Time) {
	for {
		select {
		case cmd := <-e.commands:
			e.apply(cmd, now)
		default:
			return
		}
	}
}

func (e *Engine) apply(cmd Command, now time.Time) {
	switch cmd.Kind {
	case CmdSelect:
		if cmd.TrackID == 0 {
			e.selected = 0
			return
		}
		if _, err := e.registry.Lookup(cmd.TrackID); err != nil {
			slog.Debug("select ignored", "session", e.sessionID, "error", err)
			return
		}
		e.selected = cmd.TrackID

	case CmdScanProgress:
		t, err := e.registry.Lookup(cmd.TrackID)
		if err != nil {
			slog.Debug("scan progress ignored", "session", e.sessionID, "error", err)
			return
		}
		if cmd.Progress == nil {
			t.ScanProgress = nil
			return
		}
		p := clamp(*cmd.Progress, 0, 1)
		t.ScanProgress = &p

	case CmdConditions:
		e.cadence.SetConditions(cmd.Conditions)

	case CmdFrame:
		e.cadence.SetMotion(e.motion.Observe(cmd.Frame), now)
	}
}

// integrate associates one batch and returns (created, dropped) counts.
// Late batches answering an old request are integrated like any other.
func (e *Engine) integrate(b models.DetectionBatch, now time.Time) (int, int) {
	observability.BatchesReceived.WithLabelValues(e.sessionID).Inc()

	e.gate.Complete(b.RequestID)
	if b.VideoWidth > 0 && b.VideoHeight > 0 {
		e.video = Size{W: float64(b.VideoWidth), H: float64(b.VideoHeight)}
	}
	if b.RapidMotion != nil {
		e.cadence.SetMotion(*b.RapidMotion, now)
	}

	dets, dropped := e.assoc.Filter(b)
	droppedTotal := 0
	for reason, n := range dropped {
		observability.DetectionsDropped.WithLabelValues(string(reason)).Add(float64(n))
		droppedTotal += n
	}

	alpha := e.params.BoxAlpha
	if !e.lastBatchAt.IsZero() && now.Sub(e.lastBatchAt) > e.params.LowRateInterval {
		alpha = e.params.BoxAlphaLowRate
	}
	e.lastBatchAt = now

	p := e.assoc.Associate(e.registry.Tracks(), dets)
	for _, m := range p.Matches {
		ApplyMatch(m.Track, m.Detection, alpha, e.hands[m.Track.Class], now)
	}
	for _, t := range p.UnmatchedTracks {
		t.ConsecutiveMisses++
	}
	for _, d := range p.Unmatched {
		t := e.registry.Create(d.Class, d.Box, e.params.FarPlaceholderDepth, now)
		t.Confidence = d.Score
		if e.hands[d.Class] {
			t.Gesture = d.Gesture
		}
		slog.Debug("track created", "session", e.sessionID, "track", t.ID, "class", t.Class)
	}
	if n := len(p.Unmatched); n > 0 {
		observability.TracksCreated.WithLabelValues(e.sessionID).Add(float64(n))
	}
	return len(p.Unmatched), droppedTotal
}

func (e *Engine) advanceLifecycle(now time.Time) []EvictedTrack {
	var doomed []*Track
	e.registry.Each(func(t *Track) {
		if e.life.Advance(t, now) == StateEvicted {
			doomed = append(doomed, t)
		}
	})

	evicted := make([]EvictedTrack, 0, len(doomed))
	for _, t := range doomed {
		if !e.registry.Remove(t.ID) {
			continue
		}
		evicted = append(evicted, EvictedTrack{
			ID:        t.ID,
			Class:     t.Class,
			Hits:      t.Hits,
			CreatedAt: t.CreatedAt,
			LastSeen:  t.LastSeenAt,
			EvictedAt: now,
		})
		slog.Debug("track evicted", "session", e.sessionID, "track", t.ID, "class", t.Class)
	}
	if len(evicted) > 0 {
		observability.TracksEvicted.WithLabelValues(e.sessionID).Add(float64(len(evicted)))
	}
	return evicted
}

func (e *Engine) activeClasses() []string {
	var classes []string
	e.registry.Each(func(t *Track) {
		if t.State == StateActive {
			classes = append(classes, t.Class)
		}
	})
	return classes
}

func (e *Engine) render(now time.Time) []models.TrackedObject {
	mapping, err := Letterbox(e.video, e.viewport)
	if err != nil {
		mapping = LetterboxMapping{Scale: 1}
	}
	rapid := e.cadence.Rapid()

	objects := make([]models.TrackedObject, 0, e.registry.Len())
	e.registry.Each(func(t *Track) {
		target, source, err := EstimatePosition(t.BBox, t.Class, e.video, e.viewport, e.params.VerticalFOV, e.params.ReferenceHeights)
		switch {
		case err == nil:
			t.DepthSource = source
			e.smoother.Step(t, target, rapid, now)
		case t.Physics.estimated:
			e.smoother.Step(t, t.Physics.Target, rapid, now)
		default:
			slog.Debug("no position estimate", "session", e.sessionID, "track", t.ID, "error", err)
		}
		objects = append(objects, e.toObject(t, mapping))
	})
	return objects
}

func (e *Engine) toObject(t *Track, mapping LetterboxMapping) models.TrackedObject {
	cur := t.Physics.Current
	obj := models.TrackedObject{
		ID:          t.ID,
		Class:       t.Class,
		Confidence:  t.Confidence,
		BBox:        mapping.Apply(t.BBox).Array(),
		Position3D:  models.Vec3{X: cur.X, Y: cur.Y, Z: cur.Z},
		Distance:    t.DisplayDistance,
		LastSeen:    t.LastSeenAt.UnixMilli(),
		IsOccluded:  t.State == StateLost,
		IsSelected:  t.ID == e.selected,
		DepthSource: string(t.DepthSource),
		Opacity:     t.Opacity,
		Label:       e.labels.Label(t),
		Gesture:     t.Gesture,
	}
	if t.ScanProgress != nil {
		p := *t.ScanProgress
		obj.ScanProgress = &p
	}
	return obj
}
