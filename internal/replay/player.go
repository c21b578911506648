// Package replay plays recorded detection batches back onto the queue. It
// stands in for the capture/detection collaborator when exercising a
// deployment.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/scenetrack/internal/models"
)

var (
	ErrEmptyRecording = errors.New("recording has no batches")
	ErrExhausted      = errors.New("recording exhausted")
)

// Publisher is the queue side of the player.
type Publisher interface {
	PublishBatch(ctx context.Context, b models.DetectionBatch) error
}

// Load reads a recording: a stream of JSON detection batches, usually one
// per line.
func Load(r io.Reader) ([]models.DetectionBatch, error) {
	dec := json.NewDecoder(r)
	var out []models.DetectionBatch
	for {
		var b models.DetectionBatch
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode batch %d: %w", len(out)+1, err)
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, ErrEmptyRecording
	}
	return out, nil
}

type Options struct {
	// Speed scales the recorded pace; 2 plays twice as fast.
	Speed float64
	Loop  bool
	// SessionID overrides the recorded session of every batch.
	SessionID string
	// MaxGap caps the pause between two batches.
	MaxGap time.Duration
}

func DefaultOptions() Options {
	return Options{Speed: 1, MaxGap: 5 * time.Second}
}

// Player publishes a recording either at its recorded pace (Run) or one batch
// per detection request (Answer).
type Player struct {
	pub     Publisher
	batches []models.DetectionBatch
	opts    Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	cursor int
}

func NewPlayer(pub Publisher, batches []models.DetectionBatch, opts Options) *Player {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	return &Player{
		pub:     pub,
		batches: batches,
		opts:    opts,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Gap is the pause before batch i, derived from the recorded capture times.
func (p *Player) Gap(i int) time.Duration {
	if i <= 0 || i >= len(p.batches) {
		return 0
	}
	prev, cur := p.batches[i-1].CapturedAt, p.batches[i].CapturedAt
	if prev.IsZero() || cur.IsZero() || !cur.After(prev) {
		return 0
	}
	d := time.Duration(float64(cur.Sub(prev)) / p.opts.Speed)
	if p.opts.MaxGap > 0 && d > p.opts.MaxGap {
		d = p.opts.MaxGap
	}
	return d
}

// Run publishes the recording at its recorded pace until it ends (or ctx is
// done when looping). It returns the number of batches published.
func (p *Player) Run(ctx context.Context) (int, error) {
	sent := 0
	for {
		for i := range p.batches {
			if err := p.sleep(ctx, p.Gap(i)); err != nil {
				return sent, err
			}
			// Recorded request ids would never match the tracker's in-flight request.
			if err := p.publish(ctx, p.batches[i], ""); err != nil {
				return sent, err
			}
			sent++
		}
		if !p.opts.Loop {
			return sent, nil
		}
		slog.Debug("recording looped", "published", sent)
	}
}

// Answer publishes the next batch of the recording in reply to req.
func (p *Player) Answer(ctx context.Context, req models.DetectionRequest) error {
	p.mu.Lock()
	if p.cursor >= len(p.batches) {
		if !p.opts.Loop {
			p.mu.Unlock()
			return ErrExhausted
		}
		p.cursor = 0
	}
	b := p.batches[p.cursor]
	p.cursor++
	p.mu.Unlock()

	if p.opts.SessionID == "" {
		b.SessionID = req.SessionID
	}
	return p.publish(ctx, b, req.RequestID)
}

func (p *Player) publish(ctx context.Context, b models.DetectionBatch, requestID string) error {
	if p.opts.SessionID != "" {
		b.SessionID = p.opts.SessionID
	}
	if b.SessionID == "" {
		return fmt.Errorf("publish batch: missing session id")
	}
	b.RequestID = requestID
	b.CapturedAt = p.now()
	if err := p.pub.PublishBatch(ctx, b); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}
