package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/scenetrack/internal/models"
)

const tick = 16 * time.Millisecond

func batch(dets ...models.Detection) models.DetectionBatch {
	return models.DetectionBatch{SessionID: "s1", VideoWidth: 1280, VideoHeight: 720, Detections: dets}
}

func det(class string, x, y float64) models.Detection {
	return models.Detection{Class: class, Score: 0.9, BBox: [4]float64{x, y, 100, 200}}
}

func TestEngineIdentityStable(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	require.True(t, e.Submit(batch(det("person", 100, 100))))
	f := e.Tick(now)
	require.Len(t, f.Objects, 1)
	assert.Equal(t, 1, f.Created)
	id := f.Objects[0].ID

	for i := 1; i <= 20; i++ {
		now = now.Add(100 * time.Millisecond)
		e.Submit(batch(det("person", 100+float64(i)*10, 100)))
		f = e.Tick(now)
		require.Len(t, f.Objects, 1)
		assert.Equal(t, id, f.Objects[0].ID)
		assert.Zero(t, f.Created)
	}
	tr, ok := e.Registry().Get(id)
	require.True(t, ok)
	assert.Equal(t, 21, tr.Hits)
	assert.Equal(t, "person", tr.Class)
}

func TestEngineEvictionTiming(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	start := time.Unix(1000, 0)

	e.Submit(batch(det("cup", 100, 100)))
	e.Tick(start)

	var (
		evictedAt time.Time
		lostSeen  bool
	)
	for now := start.Add(tick); now.Before(start.Add(2 * time.Second)); now = now.Add(tick) {
		f := e.Tick(now)
		if len(f.Objects) == 1 && f.Objects[0].IsOccluded {
			lostSeen = true
			assert.Less(t, f.Objects[0].Opacity, 1.0)
		}
		if len(f.Evicted) > 0 {
			evictedAt = now
			assert.Equal(t, 1, f.Evicted[0].ID)
			assert.Empty(t, f.Objects)
			break
		}
	}

	require.False(t, evictedAt.IsZero(), "track never evicted")
	assert.True(t, lostSeen)
	delay := evictedAt.Sub(start)
	assert.GreaterOrEqual(t, delay, 1200*time.Millisecond)
	assert.LessOrEqual(t, delay, 1300*time.Millisecond)
	assert.Zero(t, e.Registry().Len())
	assert.Zero(t, e.labels.Len(), "labels released with the track")
}

func TestEngineReacquireBeforeEviction(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	e.Submit(batch(det("cup", 100, 100)))
	e.Tick(now)

	now = now.Add(900 * time.Millisecond)
	f := e.Tick(now)
	require.Len(t, f.Objects, 1)
	assert.True(t, f.Objects[0].IsOccluded)

	e.Submit(batch(det("cup", 120, 100)))
	f = e.Tick(now.Add(tick))
	require.Len(t, f.Objects, 1)
	assert.Equal(t, 1, f.Objects[0].ID)
	assert.False(t, f.Objects[0].IsOccluded)
	assert.Equal(t, 1.0, f.Objects[0].Opacity)
}

func TestEngineClassNeverChanges(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	e.Submit(batch(det("cup", 100, 100)))
	e.Tick(now)
	e.Submit(batch(det("bottle", 100, 100)))
	f := e.Tick(now.Add(100 * time.Millisecond))

	require.Len(t, f.Objects, 2)
	assert.Equal(t, "cup", f.Objects[0].Class)
	assert.Equal(t, "bottle", f.Objects[1].Class)
	assert.Equal(t, 2, f.Objects[1].ID)
}

func TestEngineSceneChange(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	e.Submit(batch(det("person", 100, 100)))
	f := e.Tick(now)
	require.NotNil(t, f.Scene)
	assert.Equal(t, "1 person", f.Scene.Summary)

	e.Submit(batch(det("person", 100, 100), det("cup", 600, 300)))
	f = e.Tick(now.Add(time.Second))
	assert.Nil(t, f.Scene, "debounced")

	f = e.Tick(now.Add(3 * time.Second))
	assert.Nil(t, f.Scene, "no batch integrated this tick")

	e.Submit(batch(det("person", 100, 100), det("cup", 600, 300)))
	f = e.Tick(now.Add(3*time.Second + tick))
	require.NotNil(t, f.Scene)
	assert.Equal(t, "cup,person", f.Scene.Signature)
}

func TestEngineSelectionAndScan(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	e.Submit(batch(det("person", 100, 100)))
	e.Tick(now)

	progress := 1.4
	e.Select(1)
	e.SetScanProgress(1, &progress)
	f := e.Tick(now.Add(tick))
	require.Len(t, f.Objects, 1)
	assert.True(t, f.Objects[0].IsSelected)
	require.NotNil(t, f.Objects[0].ScanProgress)
	assert.Equal(t, 1.0, *f.Objects[0].ScanProgress)

	e.Select(42)
	f = e.Tick(now.Add(2 * tick))
	assert.True(t, f.Objects[0].IsSelected, "unknown id leaves selection alone")

	e.Registry().Remove(1)
	assert.Zero(t, e.selected, "selection cleared on release")
}

func TestEngineGeometry(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	e.Submit(batch(
		models.Detection{Class: "person", Score: 0.9, BBox: [4]float64{540, 0, 200, 720}},
		models.Detection{Class: "person", Score: 0.9, BBox: [4]float64{590, 180, 100, 360}},
	))
	f := e.Tick(now)
	require.Len(t, f.Objects, 2)

	near, far := f.Objects[0], f.Objects[1]
	assert.Less(t, near.Distance, far.Distance)
	assert.InDelta(t, 1.5, near.Distance, 1e-9)
	assert.InDelta(t, 2.944, far.Distance, 0.001)
	assert.Less(t, near.Position3D.Z, 0.0)
	assert.Equal(t, string(DepthFromReference), near.DepthSource)
	assert.Equal(t, "person 1.5m", near.Label)
}

func TestEngineBoxAlphaFollowsBatchRate(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	e := NewEngine("s1", p)
	start := time.Unix(1000, 0)

	e.Submit(batch(det("person", 100, 100)))
	e.Tick(start)

	boxX := func() float64 {
		tr, ok := e.Registry().Get(1)
		require.True(t, ok)
		return tr.BBox.X
	}

	// 400ms gap: sparse batches use the low-rate factor.
	e.Submit(batch(det("person", 200, 100)))
	e.Tick(start.Add(400 * time.Millisecond))
	assert.InDelta(t, 100+p.BoxAlphaLowRate*100, boxX(), 1e-9)
	assert.InDelta(t, 170, boxX(), 1e-9)

	// 100ms gap: back to the normal factor.
	e.Submit(batch(det("person", 270, 100)))
	e.Tick(start.Add(500 * time.Millisecond))
	assert.InDelta(t, 170+p.BoxAlpha*100, boxX(), 1e-9)
	assert.InDelta(t, 205, boxX(), 1e-9)

	// Exactly at the interval is not sparse.
	e.Submit(batch(det("person", 305, 100)))
	e.Tick(start.Add(500*time.Millisecond + p.LowRateInterval))
	assert.InDelta(t, 205+p.BoxAlpha*100, boxX(), 1e-9)
}

func TestEngineInboxDropsWhenFull(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	p.InboxSize = 2
	e := NewEngine("s1", p)

	assert.True(t, e.Submit(batch()))
	assert.True(t, e.Submit(batch()))
	assert.False(t, e.Submit(batch()))

	f := e.Tick(time.Unix(1000, 0))
	assert.Equal(t, 2, f.Batches)
}

func TestEngineNextRequest(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	req, ok := e.NextRequest(now)
	require.True(t, ok)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, 480, req.CaptureWidth)

	_, ok = e.NextRequest(now.Add(400 * time.Millisecond))
	assert.False(t, ok, "still in flight")

	b := batch()
	b.RequestID = req.RequestID
	e.Submit(b)
	e.Tick(now.Add(400 * time.Millisecond))

	_, ok = e.NextRequest(now.Add(400 * time.Millisecond))
	assert.True(t, ok)
}

func TestEngineRapidMotionFromBatch(t *testing.T) {
	t.Parallel()
	e := NewEngine("s1", DefaultParams())
	now := time.Unix(1000, 0)

	rapid := true
	b := batch()
	b.RapidMotion = &rapid
	e.Submit(b)
	f := e.Tick(now)
	assert.True(t, f.Rapid)

	_, ok := e.NextRequest(now.Add(100 * time.Millisecond))
	assert.False(t, ok, "requests suppressed during cooldown")

	e.Submit(batch())
	f = e.Tick(now.Add(tick))
	assert.True(t, f.Rapid, "unmeasured batch leaves the flag alone")
}
