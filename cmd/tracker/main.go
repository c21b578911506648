package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/scenetrack/internal/config"
	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/observability"
	"github.com/your-org/scenetrack/internal/queue"
	"github.com/your-org/scenetrack/internal/session"
	"github.com/your-org/scenetrack/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment when empty)")
	workers := flag.Int("workers", runtime.NumCPU(), "detection batch consumer goroutines")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting scenetrack tracker",
		"workers", *workers,
		"tick", cfg.Session.TickInterval,
		"publish", cfg.Session.PublishInterval,
	)

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Scene snapshots are optional: without MinIO, scene events carry no snapshot key.
	var snapshots session.SnapshotStore
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Warn("minio unavailable, scene snapshots disabled", "error", err)
	} else if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket, scene snapshots disabled", "error", err)
	} else {
		snapshots = minioStore
	}

	manager := session.NewManager(producer, snapshots, cfg.Tracking.Params(), session.Options{
		TickInterval:    cfg.Session.TickInterval,
		PublishInterval: cfg.Session.PublishInterval,
		IdleTimeout:     cfg.Session.IdleTimeout,
	})

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeBatches(ctx, "tracker", func(ctx context.Context, msg jetstream.Msg) error {
		batch, err := queue.DecodeBatch(msg.Subject(), msg.Data())
		if err != nil {
			return fmt.Errorf("decode batch: %w", err)
		}
		return manager.Dispatch(ctx, batch)
	}, *workers)
	if err != nil {
		slog.Error("start batch consumer", "error", err)
		os.Exit(1)
	}

	err = consumer.SubscribeControl(func(cmd models.ControlCommand) {
		if err := manager.Control(cmd); err != nil {
			slog.Debug("control command not applied", "action", cmd.Action, "session", cmd.SessionID, "error", err)
		}
	})
	if err != nil {
		slog.Error("subscribe to control", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := producer.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, `{"status":"unavailable","sessions":%d}`, manager.ActiveCount())
				return
			}
			_, _ = fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, manager.ActiveCount())
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("tracker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down tracker...", "sessions", manager.ActiveCount())
	cancel()
	manager.StopAll()
	slog.Info("tracker stopped")
}
