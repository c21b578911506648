package replay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/scenetrack/internal/models"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches []models.DetectionBatch
}

func (p *fakePublisher) PublishBatch(_ context.Context, b models.DetectionBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	return nil
}

const recording = `{"session_id":"cam1","request_id":"r1","captured_at":"2024-05-01T10:00:00Z","video_width":1280,"video_height":720,"detections":[{"class":"person","score":0.9,"bbox":[10,10,50,100]}]}
{"session_id":"cam1","captured_at":"2024-05-01T10:00:00.300Z","video_width":1280,"video_height":720,"detections":[]}

{"session_id":"cam1","captured_at":"2024-05-01T10:00:20Z","video_width":1280,"video_height":720,"detections":[]}
`

func load(t *testing.T) []models.DetectionBatch {
	t.Helper()
	batches, err := Load(strings.NewReader(recording))
	require.NoError(t, err)
	require.Len(t, batches, 3)
	return batches
}

func TestLoad(t *testing.T) {
	batches := load(t)
	assert.Equal(t, "person", batches[0].Detections[0].Class)
	assert.Equal(t, 1280, batches[2].VideoWidth)

	_, err := Load(strings.NewReader("  \n"))
	assert.ErrorIs(t, err, ErrEmptyRecording)

	_, err = Load(strings.NewReader(`{"session_id":"cam1"}` + "\n{oops"))
	assert.ErrorContains(t, err, "decode batch 2")
}

func TestGap(t *testing.T) {
	opts := DefaultOptions()
	p := NewPlayer(&fakePublisher{}, load(t), opts)
	assert.Equal(t, time.Duration(0), p.Gap(0))
	assert.Equal(t, 300*time.Millisecond, p.Gap(1))
	assert.Equal(t, 5*time.Second, p.Gap(2), "long pauses are capped")

	opts.Speed = 2
	p = NewPlayer(&fakePublisher{}, load(t), opts)
	assert.Equal(t, 150*time.Millisecond, p.Gap(1))
}

func TestRunPublishesAtRecordedPace(t *testing.T) {
	pub := &fakePublisher{}
	opts := DefaultOptions()
	opts.SessionID = "lobby"
	p := NewPlayer(pub, load(t), opts)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	n, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []time.Duration{0, 300 * time.Millisecond, 5 * time.Second}, slept)

	require.Len(t, pub.batches, 3)
	for _, b := range pub.batches {
		assert.Equal(t, "lobby", b.SessionID)
		assert.Empty(t, b.RequestID)
	}
	assert.Equal(t, now, pub.batches[2].CapturedAt)
}

func TestRunStopsOnCancel(t *testing.T) {
	opts := DefaultOptions()
	opts.Loop = true
	p := NewPlayer(&fakePublisher{}, load(t), opts)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		calls++
		if calls == 5 {
			cancel()
		}
		return ctx.Err()
	}

	n, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, n, "loops past the end of the recording")
}

func TestAnswer(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPlayer(pub, load(t), DefaultOptions())
	req := models.DetectionRequest{SessionID: "cam9", RequestID: "req-1"}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Answer(context.Background(), req))
	}
	assert.ErrorIs(t, p.Answer(context.Background(), req), ErrExhausted)

	require.Len(t, pub.batches, 3)
	assert.Equal(t, "cam9", pub.batches[0].SessionID)
	assert.Equal(t, "req-1", pub.batches[0].RequestID)
}

func TestAnswerLoops(t *testing.T) {
	pub := &fakePublisher{}
	opts := DefaultOptions()
	opts.Loop = true
	p := NewPlayer(pub, load(t), opts)
	req := models.DetectionRequest{SessionID: "cam1", RequestID: "r"}

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Answer(context.Background(), req))
	}
	assert.Equal(t, "person", pub.batches[3].Detections[0].Class)
}
