package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/scenetrack/internal/api"
	"github.com/your-org/scenetrack/internal/api/handlers"
	"github.com/your-org/scenetrack/internal/api/ws"
	"github.com/your-org/scenetrack/internal/config"
	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/observability"
	"github.com/your-org/scenetrack/internal/queue"
	"github.com/your-org/scenetrack/internal/storage"
	"github.com/your-org/scenetrack/pkg/dto"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting scenetrack API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

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

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live object frames go straight to the hub; they are never persisted.
	err = consumer.SubscribeFrames(func(subject string, data []byte) {
		var frame models.ObjectFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid object frame", "subject", subject, "error", err)
			return
		}
		hub.PublishFrame(frame)
	})
	if err != nil {
		slog.Error("subscribe to object frames", "error", err)
		os.Exit(1)
	}

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		evt, err := queue.DecodeEvent(msg.Data())
		if err != nil {
			slog.Warn("drop invalid event", "subject", msg.Subject(), "error", err)
			return nil
		}
		return handleEvent(ctx, db, hub, evt)
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Snapshot retention and stale live frames
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if cfg.MinIO.SnapshotRetention > 0 {
					n, err := minioStore.SweepSnapshots(ctx, cfg.MinIO.SnapshotRetention, now)
					if err != nil {
						slog.Warn("sweep scene snapshots", "error", err)
					} else if n > 0 {
						slog.Info("swept scene snapshots", "deleted", n)
					}
				}
				for _, f := range hub.Frames() {
					if now.Sub(f.Timestamp) > cfg.Session.IdleTimeout {
						hub.Forget(f.SessionID)
					}
				}
			}
		}
	}()

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Scenes:  db,
		Blobs:   minioStore,
		Control: producer,
		Hub:     hub,
		Checks: map[string]handlers.Check{
			"postgres": db.Ping,
			"minio":    minioStore.Ping,
			"nats":     func(context.Context) error { return producer.Ping() },
		},
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// handleEvent persists a tracker event and forwards it to WebSocket clients.
func handleEvent(ctx context.Context, db *storage.PostgresStore, hub *ws.Hub, evt models.Event) error {
	switch {
	case evt.Scene != nil:
		if err := db.CreateSceneEvent(ctx, evt.Scene); err != nil {
			return err
		}
		scene := dto.NewSceneResponse(*evt.Scene)
		hub.Broadcast(&dto.WSMessage{Type: string(evt.Type), SessionID: evt.Scene.SessionID, Scene: &scene})
	case evt.Track != nil:
		if err := db.RecordTrackHistory(ctx, evt.Track); err != nil {
			return err
		}
		track := dto.NewTrackResponse(*evt.Track)
		hub.Broadcast(&dto.WSMessage{Type: string(evt.Type), SessionID: evt.Track.SessionID, Track: &track})
	default:
		slog.Warn("event without payload", "type", evt.Type)
	}
	return nil
}
