package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "batches_received_total",
		Help:      "Total number of detection batches integrated",
	}, []string{"session_id"})

	BatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "batches_dropped_total",
		Help:      "Detection batches dropped because the session inbox was full",
	}, []string{"session_id"})

	DetectionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "detections_dropped_total",
		Help:      "Detections discarded before association",
	}, []string{"reason"})

	TracksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "tracks_created_total",
		Help:      "Total number of tracks created",
	}, []string{"session_id"})

	TracksEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "tracks_evicted_total",
		Help:      "Total number of tracks evicted after fading out",
	}, []string{"session_id"})

	ActiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scenetrack",
		Name:      "tracks",
		Help:      "Number of live tracks per session",
	}, []string{"session_id"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scenetrack",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one tracker tick",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	SceneChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "scene_changes_total",
		Help:      "Debounced scene changes emitted",
	}, []string{"session_id"})

	DetectionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenetrack",
		Name:      "detection_requests_total",
		Help:      "Detection request decisions by outcome",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scenetrack",
		Name:      "detections_queue_depth",
		Help:      "Pending messages in the DETECTIONS stream",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scenetrack",
		Name:      "active_sessions",
		Help:      "Number of sessions with a running tracker",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scenetrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scenetrack",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
