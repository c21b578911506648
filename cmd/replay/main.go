package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/your-org/scenetrack/internal/config"
	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/observability"
	"github.com/your-org/scenetrack/internal/queue"
	"github.com/your-org/scenetrack/internal/replay"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment when empty)")
	file := flag.String("file", "", "recording of detection batches, one JSON object per line (- for stdin)")
	speed := flag.Float64("speed", 1, "playback speed multiplier")
	loop := flag.Bool("loop", false, "restart the recording when it ends")
	sessionID := flag.String("session", "", "override the recorded session id")
	answer := flag.Bool("answer", false, "publish one batch per detection request instead of at recorded pace")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	batches, err := loadRecording(*file)
	if err != nil {
		slog.Error("load recording", "file", *file, "error", err)
		os.Exit(1)
	}

	opts := replay.DefaultOptions()
	opts.Speed = *speed
	opts.Loop = *loop
	opts.SessionID = *sessionID

	slog.Info("starting scenetrack replay", "batches", len(batches), "speed", opts.Speed, "loop", opts.Loop, "answer", *answer)

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	player := replay.NewPlayer(producer, batches, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*answer {
		n, err := player.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("replay", "published", n, "error", err)
			os.Exit(1)
		}
		slog.Info("replay finished", "published", n)
		return
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.SubscribeRequests(func(req models.DetectionRequest) {
		if *sessionID != "" && req.SessionID != *sessionID {
			return
		}
		if err := player.Answer(ctx, req); err != nil {
			if errors.Is(err, replay.ErrExhausted) {
				slog.Info("recording exhausted, ignoring request", "session", req.SessionID, "request", req.RequestID)
				return
			}
			slog.Error("answer detection request", "session", req.SessionID, "request", req.RequestID, "error", err)
		}
	})
	if err != nil {
		slog.Error("subscribe to detection requests", "error", err)
		os.Exit(1)
	}

	// Requests only flow once the tracker has a session, so prime it.
	if err := primeSession(ctx, player, batches[0], opts); err != nil {
		slog.Warn("prime session", "error", err)
	}

	<-ctx.Done()
	slog.Info("replay stopped")
}

func loadRecording(path string) ([]models.DetectionBatch, error) {
	if path == "" || path == "-" {
		return replay.Load(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return replay.Load(f)
}

// primeSession answers a synthetic request so the tracker starts the session.
func primeSession(ctx context.Context, player *replay.Player, first models.DetectionBatch, opts replay.Options) error {
	session := opts.SessionID
	if session == "" {
		session = first.SessionID
	}
	return player.Answer(ctx, models.DetectionRequest{SessionID: session})
}
