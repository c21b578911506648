package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/observability"
	"github.com/your-org/scenetrack/internal/tracking"
)

var ErrUnknownSession = errors.New("unknown session")

// Publisher is where runners send their output.
type Publisher interface {
	PublishFrame(frame models.ObjectFrame) error
	PublishRequest(req models.DetectionRequest) error
	PublishEvent(ctx context.Context, sessionID string, evt models.Event) error
}

// SnapshotStore archives scene snapshots. It may be nil.
type SnapshotStore interface {
	PutJSON(ctx context.Context, key string, v any) error
}

type Options struct {
	TickInterval    time.Duration
	PublishInterval time.Duration
	IdleTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		TickInterval:    16 * time.Millisecond,
		PublishInterval: 100 * time.Millisecond,
		IdleTimeout:     30 * time.Second,
	}
}

// Manager owns one Runner per live session. Runners start on the first
// detection batch for a session and stop themselves once idle. Track ids come
// from one source for the whole manager, so a session restarted after going
// idle never reuses an id.
type Manager struct {
	pub       Publisher
	snapshots SnapshotStore
	params    tracking.Params
	opts      Options
	ids       *tracking.IDSource

	// mu guards runners. Batches and commands are handed to a runner while
	// holding the read lock; a runner retires under the write lock, so
	// nothing is queued on an engine that will never tick again.
	mu      sync.RWMutex
	runners map[string]*Runner
	wg      sync.WaitGroup
}

func NewManager(pub Publisher, snapshots SnapshotStore, params tracking.Params, opts Options) *Manager {
	return &Manager{
		pub:       pub,
		snapshots: snapshots,
		params:    params,
		opts:      opts,
		ids:       tracking.NewIDSource(),
		runners:   make(map[string]*Runner),
	}
}

// Dispatch hands a detection batch to its session, starting the session if
// needed. ctx bounds the lifetime of a newly started runner.
func (m *Manager) Dispatch(ctx context.Context, b models.DetectionBatch) error {
	if b.SessionID == "" {
		return fmt.Errorf("dispatch batch: %w", ErrUnknownSession)
	}

	m.mu.RLock()
	r, ok := m.runners[b.SessionID]
	if ok {
		submitted := r.engine.Submit(b)
		m.mu.RUnlock()
		if !submitted {
			slog.Debug("batch dropped", "session", b.SessionID)
		}
		return nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok = m.runners[b.SessionID]
	if !ok {
		r = m.start(ctx, b.SessionID)
	}
	if !r.engine.Submit(b) {
		slog.Debug("batch dropped", "session", b.SessionID)
	}
	return nil
}

// start launches a runner for sessionID. m.mu must be held for writing.
func (m *Manager) start(ctx context.Context, sessionID string) *Runner {
	runCtx, cancel := context.WithCancel(ctx)
	engine := tracking.NewEngineWithIDs(sessionID, m.params, m.ids)
	r := newRunner(sessionID, engine, m.pub, m.snapshots, m.opts, cancel)
	r.retire = func() bool { return m.retire(r) }
	m.runners[sessionID] = r
	observability.ActiveSessions.Inc()
	slog.Info("session started", "session", sessionID, "next_track_id", m.ids.Peek())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			if m.runners[sessionID] == r {
				delete(m.runners, sessionID)
			}
			m.mu.Unlock()
			observability.ActiveSessions.Dec()
			observability.ActiveTracks.DeleteLabelValues(sessionID)
			slog.Info("session stopped", "session", sessionID)
		}()
		r.run(runCtx)
	}()
	return r
}

// retire removes an idle runner from the session map. It refuses when a
// batch was queued since the runner's last tick, so the runner keeps going.
func (m *Manager) retire(r *Runner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.engine.Pending() > 0 {
		return false
	}
	if m.runners[r.sessionID] == r {
		delete(m.runners, r.sessionID)
	}
	return true
}

// Control routes an API command to the session that owns it.
func (m *Manager) Control(cmd models.ControlCommand) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[cmd.SessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", cmd.SessionID, ErrUnknownSession)
	}

	var sent bool
	switch cmd.Action {
	case models.ControlSelect:
		sent = r.engine.Select(cmd.TrackID)
	case models.ControlScan:
		sent = r.engine.SetScanProgress(cmd.TrackID, cmd.Progress)
	case models.ControlConditions:
		if cmd.Conditions == nil {
			return fmt.Errorf("conditions command without conditions")
		}
		sent = r.engine.SetConditions(*cmd.Conditions)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
	if !sent {
		return fmt.Errorf("session %s: command queue full", cmd.SessionID)
	}
	return nil
}

// Sessions returns the ids of running sessions, sorted.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ActiveCount returns the number of running sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}

// StopAll stops every runner and waits for them to exit.
func (m *Manager) StopAll() {
	m.mu.RLock()
	for _, r := range m.runners {
		r.cancel()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}
