package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/scenetrack/internal/tracking"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Tracking TrackingConfig `yaml:"tracking"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	APIKey      string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	AccessKey         string        `yaml:"access_key"`
	SecretKey         string        `yaml:"secret_key"`
	Bucket            string        `yaml:"bucket"`
	UseSSL            bool          `yaml:"use_ssl"`
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`
}

// TrackingConfig mirrors tracking.Params in file-friendly units
// (milliseconds, degrees).
type TrackingConfig struct {
	ConfidenceFloor       float64            `yaml:"confidence_floor"`
	AssociationGate       float64            `yaml:"association_gate"`
	BoxAlpha              float64            `yaml:"box_alpha"`
	BoxAlphaLowRate       float64            `yaml:"box_alpha_low_rate"`
	LowRateIntervalMS     int                `yaml:"low_rate_interval_ms"`
	LostThresholdMS       int                `yaml:"lost_threshold_ms"`
	OpacityDecayPerSecond float64            `yaml:"opacity_decay_per_second"`
	EvictOpacity          float64            `yaml:"evict_opacity"`
	SmoothingNormal       float64            `yaml:"smoothing_normal"`
	SmoothingFast         float64            `yaml:"smoothing_fast"`
	DisplaySmoothing      float64            `yaml:"display_smoothing"`
	FarPlaceholderDepth   float64            `yaml:"far_placeholder_depth"`
	VerticalFOVDegrees    float64            `yaml:"vertical_fov_degrees"`
	ViewportWidth         int                `yaml:"viewport_width"`
	ViewportHeight        int                `yaml:"viewport_height"`
	VideoWidth            int                `yaml:"video_width"`
	VideoHeight           int                `yaml:"video_height"`
	ReferenceHeights      map[string]float64 `yaml:"reference_heights"`
	HandClasses           []string           `yaml:"hand_classes"`
	SceneDebounceMS       int                `yaml:"scene_debounce_ms"`
	MotionCooldownMS      int                `yaml:"motion_cooldown_ms"`
	MotionPatchSize       int                `yaml:"motion_patch_size"`
	MotionThreshold       float64            `yaml:"motion_threshold"`
	RequestTimeoutMS      int                `yaml:"request_timeout_ms"`
	InboxSize             int                `yaml:"inbox_size"`
	CommandSize           int                `yaml:"command_size"`
}

// Params converts the file form into tracking.Params. Reference heights from
// the file are merged over the built-in table.
func (t TrackingConfig) Params() tracking.Params {
	heights := tracking.DefaultReferenceHeights()
	for class, h := range t.ReferenceHeights {
		heights[class] = h
	}
	return tracking.Params{
		ConfidenceFloor:       t.ConfidenceFloor,
		AssociationGate:       t.AssociationGate,
		BoxAlpha:              t.BoxAlpha,
		BoxAlphaLowRate:       t.BoxAlphaLowRate,
		LowRateInterval:       ms(t.LowRateIntervalMS),
		LostThreshold:         ms(t.LostThresholdMS),
		OpacityDecayPerSecond: t.OpacityDecayPerSecond,
		EvictOpacity:          t.EvictOpacity,
		SmoothingNormal:       t.SmoothingNormal,
		SmoothingFast:         t.SmoothingFast,
		DisplaySmoothing:      t.DisplaySmoothing,
		FarPlaceholderDepth:   t.FarPlaceholderDepth,
		VerticalFOV:           tracking.Radians(t.VerticalFOVDegrees),
		ViewportWidth:         t.ViewportWidth,
		ViewportHeight:        t.ViewportHeight,
		VideoWidth:            t.VideoWidth,
		VideoHeight:           t.VideoHeight,
		ReferenceHeights:      heights,
		HandClasses:           t.HandClasses,
		SceneDebounce:         ms(t.SceneDebounceMS),
		MotionCooldown:        ms(t.MotionCooldownMS),
		MotionPatchSize:       t.MotionPatchSize,
		MotionThreshold:       t.MotionThreshold,
		RequestTimeout:        ms(t.RequestTimeoutMS),
		InboxSize:             t.InboxSize,
		CommandSize:           t.CommandSize,
	}
}

type SessionConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// An empty path skips the file and yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "scenetrack"
	}
	if cfg.MinIO.SnapshotRetention == 0 {
		cfg.MinIO.SnapshotRetention = 7 * 24 * time.Hour
	}
	setTrackingDefaults(&cfg.Tracking)
	if cfg.Session.TickInterval == 0 {
		cfg.Session.TickInterval = 16 * time.Millisecond
	}
	if cfg.Session.PublishInterval == 0 {
		cfg.Session.PublishInterval = 100 * time.Millisecond
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func setTrackingDefaults(t *TrackingConfig) {
	d := tracking.DefaultParams()

	if t.ConfidenceFloor == 0 {
		t.ConfidenceFloor = d.ConfidenceFloor
	}
	if t.AssociationGate == 0 {
		t.AssociationGate = d.AssociationGate
	}
	if t.BoxAlpha == 0 {
		t.BoxAlpha = d.BoxAlpha
	}
	if t.BoxAlphaLowRate == 0 {
		t.BoxAlphaLowRate = d.BoxAlphaLowRate
	}
	if t.LowRateIntervalMS == 0 {
		t.LowRateIntervalMS = int(d.LowRateInterval.Milliseconds())
	}
	if t.LostThresholdMS == 0 {
		t.LostThresholdMS = int(d.LostThreshold.Milliseconds())
	}
	if t.OpacityDecayPerSecond == 0 {
		t.OpacityDecayPerSecond = d.OpacityDecayPerSecond
	}
	if t.EvictOpacity == 0 {
		t.EvictOpacity = d.EvictOpacity
	}
	if t.SmoothingNormal == 0 {
		t.SmoothingNormal = d.SmoothingNormal
	}
	if t.SmoothingFast == 0 {
		t.SmoothingFast = d.SmoothingFast
	}
	if t.DisplaySmoothing == 0 {
		t.DisplaySmoothing = d.DisplaySmoothing
	}
	if t.FarPlaceholderDepth == 0 {
		t.FarPlaceholderDepth = d.FarPlaceholderDepth
	}
	if t.VerticalFOVDegrees == 0 {
		t.VerticalFOVDegrees = 60
	}
	if t.ViewportWidth == 0 {
		t.ViewportWidth = d.ViewportWidth
	}
	if t.ViewportHeight == 0 {
		t.ViewportHeight = d.ViewportHeight
	}
	if t.VideoWidth == 0 {
		t.VideoWidth = d.VideoWidth
	}
	if t.VideoHeight == 0 {
		t.VideoHeight = d.VideoHeight
	}
	if len(t.HandClasses) == 0 {
		t.HandClasses = d.HandClasses
	}
	if t.SceneDebounceMS == 0 {
		t.SceneDebounceMS = int(d.SceneDebounce.Milliseconds())
	}
	if t.MotionCooldownMS == 0 {
		t.MotionCooldownMS = int(d.MotionCooldown.Milliseconds())
	}
	if t.MotionPatchSize == 0 {
		t.MotionPatchSize = d.MotionPatchSize
	}
	if t.MotionThreshold == 0 {
		t.MotionThreshold = d.MotionThreshold
	}
	if t.RequestTimeoutMS == 0 {
		t.RequestTimeoutMS = int(d.RequestTimeout.Milliseconds())
	}
	if t.InboxSize == 0 {
		t.InboxSize = d.InboxSize
	}
	if t.CommandSize == 0 {
		t.CommandSize = d.CommandSize
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCENETRACK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SCENETRACK_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = port
		}
	}
	if v := os.Getenv("SCENETRACK_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SCENETRACK_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SCENETRACK_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SCENETRACK_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SCENETRACK_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SCENETRACK_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SCENETRACK_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SCENETRACK_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SCENETRACK_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SCENETRACK_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SCENETRACK_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SCENETRACK_CONFIDENCE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracking.ConfidenceFloor = f
		}
	}
	if v := os.Getenv("SCENETRACK_ASSOCIATION_GATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracking.AssociationGate = f
		}
	}
	if v := os.Getenv("SCENETRACK_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.TickInterval = d
		}
	}
	if v := os.Getenv("SCENETRACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCENETRACK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
