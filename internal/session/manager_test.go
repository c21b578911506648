package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/tracking"
)

type fakePublisher struct {
	mu       sync.Mutex
	frames   []models.ObjectFrame
	requests []models.DetectionRequest
	events   []models.Event
}

func (p *fakePublisher) PublishFrame(f models.ObjectFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return nil
}

func (p *fakePublisher) PublishRequest(r models.DetectionRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, r)
	return nil
}

func (p *fakePublisher) PublishEvent(_ context.Context, _ string, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) counts() (frames, requests, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames), len(p.requests), len(p.events)
}

type fakeSnapshots struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeSnapshots) PutJSON(_ context.Context, key string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func personBatch(session string) models.DetectionBatch {
	return models.DetectionBatch{
		SessionID:   session,
		VideoWidth:  1280,
		VideoHeight: 720,
		Detections: []models.Detection{
			{Class: "person", Score: 0.9, BBox: [4]float64{540, 180, 200, 360}},
		},
	}
}

func newTestRunner(pub Publisher, snaps SnapshotStore) *Runner {
	return newRunner("s1", tracking.NewEngine("s1", tracking.DefaultParams()), pub, snaps, DefaultOptions(), func() {})
}

func TestRunnerStepEmitsSceneAndSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	snaps := &fakeSnapshots{}
	r := newTestRunner(pub, snaps)
	now := time.Unix(1000, 0)

	require.True(t, r.engine.Submit(personBatch("s1")))
	require.True(t, r.step(context.Background(), now))

	require.Len(t, pub.frames, 1)
	assert.Len(t, pub.frames[0].Objects, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventSceneChanged, pub.events[0].Type)
	assert.Equal(t, "1 person", pub.events[0].Scene.Summary)
	require.Len(t, snaps.keys, 1)
	assert.Equal(t, snaps.keys[0], pub.events[0].Scene.SnapshotKey)
	assert.Len(t, pub.requests, 1, "first request issued immediately")
}

func TestRunnerThrottlesFrames(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(pub, nil)
	now := time.Unix(1000, 0)

	r.engine.Submit(personBatch("s1"))
	for i := 0; i < 10; i++ {
		r.step(context.Background(), now.Add(time.Duration(i)*16*time.Millisecond))
	}
	// ticks at 0..144ms; publish at 0 and at 112ms
	assert.Len(t, pub.frames, 2)
}

func TestRunnerEmitsEvictions(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(pub, nil)
	now := time.Unix(1000, 0)

	r.engine.Submit(personBatch("s1"))
	r.step(context.Background(), now)
	r.step(context.Background(), now.Add(2*time.Second))

	require.Len(t, pub.events, 2)
	evicted := pub.events[1]
	assert.Equal(t, models.EventTrackEvicted, evicted.Type)
	require.NotNil(t, evicted.Track)
	assert.Equal(t, 1, evicted.Track.TrackID)
	assert.Equal(t, "person", evicted.Track.Class)
	assert.Empty(t, pub.frames[len(pub.frames)-1].Objects)
}

func TestRunnerIdle(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(pub, nil)
	r.opts.IdleTimeout = time.Second
	now := time.Unix(1000, 0)
	r.startedAt = now

	assert.True(t, r.step(context.Background(), now.Add(500*time.Millisecond)))
	assert.False(t, r.step(context.Background(), now.Add(2*time.Second)))
}

func TestManagerLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	m := NewManager(pub, nil, tracking.DefaultParams(), Options{
		TickInterval:    5 * time.Millisecond,
		PublishInterval: 10 * time.Millisecond,
		IdleTimeout:     time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Dispatch(ctx, personBatch("cam1")))
	require.NoError(t, m.Dispatch(ctx, personBatch("cam2")))
	assert.Equal(t, []string{"cam1", "cam2"}, m.Sessions())

	require.Eventually(t, func() bool {
		frames, _, _ := pub.counts()
		return frames > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Control(models.ControlCommand{Action: models.ControlSelect, SessionID: "cam1", TrackID: 1}))
	require.NoError(t, m.Control(models.ControlCommand{
		Action:     models.ControlConditions,
		SessionID:  "cam1",
		Conditions: &models.Conditions{DownlinkMbps: 20, RTTMillis: 30},
	}))
	assert.ErrorIs(t, m.Control(models.ControlCommand{Action: models.ControlSelect, SessionID: "nope"}), ErrUnknownSession)
	assert.Error(t, m.Control(models.ControlCommand{Action: "dance", SessionID: "cam1"}))
	assert.Error(t, m.Control(models.ControlCommand{Action: models.ControlConditions, SessionID: "cam1"}))

	m.StopAll()
	assert.Zero(t, m.ActiveCount())
}

func TestManagerIdleSessionStops(t *testing.T) {
	pub := &fakePublisher{}
	m := NewManager(pub, nil, tracking.DefaultParams(), Options{
		TickInterval:    5 * time.Millisecond,
		PublishInterval: 10 * time.Millisecond,
		IdleTimeout:     50 * time.Millisecond,
	})

	require.NoError(t, m.Dispatch(context.Background(), models.DetectionBatch{SessionID: "empty"}))
	require.Eventually(t, func() bool { return m.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerRejectsMissingSession(t *testing.T) {
	m := NewManager(&fakePublisher{}, nil, tracking.DefaultParams(), DefaultOptions())
	assert.ErrorIs(t, m.Dispatch(context.Background(), models.DetectionBatch{}), ErrUnknownSession)
}

func objectIDs(p *fakePublisher) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []int
	seen := make(map[int]bool)
	for _, f := range p.frames {
		for _, o := range f.Objects {
			if !seen[o.ID] {
				seen[o.ID] = true
				ids = append(ids, o.ID)
			}
		}
	}
	return ids
}

func TestManagerRestartAfterIdleKeepsTrackIDs(t *testing.T) {
	pub := &fakePublisher{}
	m := NewManager(pub, nil, tracking.DefaultParams(), Options{
		TickInterval:    5 * time.Millisecond,
		PublishInterval: 10 * time.Millisecond,
		IdleTimeout:     50 * time.Millisecond,
	})
	defer m.StopAll()

	require.NoError(t, m.Dispatch(context.Background(), personBatch("cam1")))
	require.Eventually(t, func() bool { return len(objectIDs(pub)) == 1 }, time.Second, 5*time.Millisecond)

	// The track fades out, then the session goes idle and stops.
	require.Eventually(t, func() bool { return m.ActiveCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Dispatch(context.Background(), personBatch("cam1")))
	require.Eventually(t, func() bool { return len(objectIDs(pub)) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int{1, 2}, objectIDs(pub))
}

func TestManagerRetireRefusesPendingBatch(t *testing.T) {
	m := NewManager(&fakePublisher{}, nil, tracking.DefaultParams(), DefaultOptions())
	r := newRunner("cam1", tracking.NewEngine("cam1", tracking.DefaultParams()), m.pub, nil, m.opts, func() {})
	m.runners["cam1"] = r

	// A batch queued after the idle decision keeps the runner alive.
	require.NoError(t, m.Dispatch(context.Background(), personBatch("cam1")))
	assert.False(t, m.retire(r))
	assert.Equal(t, 1, m.ActiveCount())

	r.step(context.Background(), time.Unix(1000, 0))
	assert.True(t, m.retire(r))
	assert.Zero(t, m.ActiveCount())

	// The next batch starts a fresh runner instead of feeding the retired one.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Dispatch(ctx, personBatch("cam1")))
	m.mu.RLock()
	fresh := m.runners["cam1"]
	m.mu.RUnlock()
	require.NotNil(t, fresh)
	assert.NotSame(t, r, fresh)
	assert.Zero(t, r.engine.Pending())
	cancel()
	m.StopAll()
}
