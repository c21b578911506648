package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/storage"
	"github.com/your-org/scenetrack/internal/tracking"
)

// Runner drives one session's Engine on a fixed tick and ships its output.
type Runner struct {
	sessionID string
	engine    *tracking.Engine
	pub       Publisher
	snapshots SnapshotStore
	opts      Options
	cancel    context.CancelFunc
	// retire is asked before an idle runner exits; false keeps it running.
	retire func() bool

	startedAt     time.Time
	lastPublishAt time.Time
}

func newRunner(sessionID string, engine *tracking.Engine, pub Publisher, snapshots SnapshotStore, opts Options, cancel context.CancelFunc) *Runner {
	return &Runner{
		sessionID: sessionID,
		engine:    engine,
		pub:       pub,
		snapshots: snapshots,
		opts:      opts,
		cancel:    cancel,
	}
}

func (r *Runner) run(ctx context.Context) {
	defer r.cancel()

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	r.startedAt = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !r.step(ctx, now) && (r.retire == nil || r.retire()) {
				return
			}
		}
	}
}

// step runs one tick and reports whether the session should keep running.
func (r *Runner) step(ctx context.Context, now time.Time) bool {
	f := r.engine.Tick(now)

	if f.Scene != nil {
		r.emitScene(ctx, f)
	}
	for _, ev := range f.Evicted {
		r.emitEviction(ctx, ev)
	}

	if r.lastPublishAt.IsZero() || now.Sub(r.lastPublishAt) >= r.opts.PublishInterval || len(f.Evicted) > 0 {
		frame := models.ObjectFrame{
			SessionID:   r.sessionID,
			Timestamp:   now,
			RapidMotion: f.Rapid,
			Objects:     f.Objects,
		}
		if err := r.pub.PublishFrame(frame); err != nil {
			slog.Warn("publish frame", "session", r.sessionID, "error", err)
		}
		r.lastPublishAt = now
	}

	if req, ok := r.engine.NextRequest(now); ok {
		if err := r.pub.PublishRequest(req); err != nil {
			slog.Warn("publish detection request", "session", r.sessionID, "error", err)
		}
	}

	return !r.idle(now, f)
}

func (r *Runner) idle(now time.Time, f tracking.Frame) bool {
	if f.Tracking > 0 || r.opts.IdleTimeout <= 0 {
		return false
	}
	last := r.engine.LastBatchAt()
	if last.IsZero() {
		last = r.startedAt
	}
	return !last.IsZero() && now.Sub(last) > r.opts.IdleTimeout
}

func (r *Runner) emitScene(ctx context.Context, f tracking.Frame) {
	scene := models.SceneEvent{
		ID:         uuid.New(),
		SessionID:  r.sessionID,
		Signature:  f.Scene.Signature,
		Summary:    f.Scene.Summary,
		Counts:     f.Scene.Counts,
		OccurredAt: f.Scene.At,
	}

	if r.snapshots != nil {
		key := storage.SnapshotKey(r.sessionID, f.Scene.At)
		snap := models.SceneSnapshot{Scene: scene, Objects: f.Objects}
		if err := r.snapshots.PutJSON(ctx, key, snap); err != nil {
			slog.Warn("archive scene snapshot", "session", r.sessionID, "error", err)
		} else {
			scene.SnapshotKey = key
		}
	}

	slog.Info("scene changed", "session", r.sessionID, "summary", scene.Summary)
	if err := r.pub.PublishEvent(ctx, r.sessionID, models.Event{Type: models.EventSceneChanged, Scene: &scene}); err != nil {
		slog.Error("publish scene event", "session", r.sessionID, "error", err)
	}
}

func (r *Runner) emitEviction(ctx context.Context, ev tracking.EvictedTrack) {
	rec := models.TrackRecord{
		ID:        uuid.New(),
		SessionID: r.sessionID,
		TrackID:   ev.ID,
		Class:     ev.Class,
		Hits:      ev.Hits,
		FirstSeen: ev.CreatedAt,
		LastSeen:  ev.LastSeen,
		EvictedAt: ev.EvictedAt,
	}
	if err := r.pub.PublishEvent(ctx, r.sessionID, models.Event{Type: models.EventTrackEvicted, Track: &rec}); err != nil {
		slog.Error("publish eviction", "session", r.sessionID, "track", ev.ID, "error", err)
	}
}
