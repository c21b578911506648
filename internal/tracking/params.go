package tracking

import "time"

// Params holds every tunable of the tracking core.
type Params struct {
	// Association
	ConfidenceFloor float64       // Detections scoring below this are discarded
	AssociationGate float64       // Max top-left corner distance (source-video px) for a match
	BoxAlpha        float64       // Box smoothing factor at normal detection rate
	BoxAlphaLowRate float64       // Box smoothing factor when batches arrive sparsely
	LowRateInterval time.Duration // Batch gap above which BoxAlphaLowRate applies

	// Lifecycle
	LostThreshold         time.Duration // Unmatched longer than this => Lost
	OpacityDecayPerSecond float64       // Opacity lost per second while Lost
	EvictOpacity          float64       // Lost tracks below this opacity are evicted

	// Smoothing
	SmoothingNormal     float64 // Position convergence per tick
	SmoothingFast       float64 // Position convergence per tick under rapid motion
	DisplaySmoothing    float64 // Independent filter for the displayed distance
	FarPlaceholderDepth float64 // Placeholder depth (m) for a track with no estimate yet

	// Geometry
	VerticalFOV      float64 // Radians
	ViewportWidth    int
	ViewportHeight   int
	VideoWidth       int // Used when a batch does not report its video size
	VideoHeight      int
	ReferenceHeights ReferenceHeights
	HandClasses      []string

	// Scene summary
	SceneDebounce time.Duration

	// Cadence
	MotionCooldown  time.Duration // Detection requests suppressed after motion turns rapid
	MotionPatchSize int           // Side of the central patch compared between frames (px)
	MotionThreshold float64       // Mean abs luma difference (0-255) that counts as rapid
	RequestTimeout  time.Duration // An unanswered detection request is abandoned after this

	// Inbox sizes
	InboxSize   int
	CommandSize int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		ConfidenceFloor: 0.2,
		AssociationGate: 200,
		BoxAlpha:        0.35,
		BoxAlphaLowRate: 0.7,
		LowRateInterval: 250 * time.Millisecond,

		LostThreshold:         500 * time.Millisecond,
		OpacityDecayPerSecond: 1.25, // ~0.02 per 60Hz tick
		EvictOpacity:          0.05,

		SmoothingNormal:     0.12,
		SmoothingFast:       0.35,
		DisplaySmoothing:    0.06,
		FarPlaceholderDepth: 50,

		VerticalFOV:      Radians(60),
		ViewportWidth:    1280,
		ViewportHeight:   720,
		VideoWidth:       1280,
		VideoHeight:      720,
		ReferenceHeights: DefaultReferenceHeights(),
		HandClasses:      []string{"hand", "left_hand", "right_hand"},

		SceneDebounce: 2 * time.Second,

		MotionCooldown:  350 * time.Millisecond,
		MotionPatchSize: 48,
		MotionThreshold: 18,
		RequestTimeout:  time.Second,

		InboxSize:   8,
		CommandSize: 32,
	}
}
