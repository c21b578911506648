package tracking

import (
	"errors"
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

var (
	ErrDegenerateBox     = errors.New("degenerate bounding box")
	ErrInvalidFOV        = errors.New("vertical field of view must be in (0, pi)")
	ErrInvalidDimensions = errors.New("video and viewport dimensions must be positive")
)

const (
	MinDepth               = 1.5  // metres
	MaxDepth               = 50.0 // metres
	DefaultReferenceHeight = 0.5  // metres, for classes missing from the table
)

// DepthSource tells consumers how a track's depth was derived.
type DepthSource string

const (
	DepthFromReference DepthSource = "bbox_reference"
	DepthFromDefault   DepthSource = "bbox_default"
)

// Size is a width/height pair in pixels.
type Size struct {
	W, H float64
}

func (s Size) valid() bool {
	return s.W > 0 && s.H > 0 && finite(s.W) && finite(s.H)
}

// Box is an axis-aligned box: top-left corner plus width and height.
type Box struct {
	X, Y, W, H float64
}

// BoxFromSlice converts the wire [x, y, w, h] form.
func BoxFromSlice(b [4]float64) Box {
	return Box{X: b[0], Y: b[1], W: b[2], H: b[3]}
}

func (b Box) Array() [4]float64 {
	return [4]float64{b.X, b.Y, b.W, b.H}
}

// Valid reports whether the box is finite with positive area.
func (b Box) Valid() bool {
	return finite(b.X) && finite(b.Y) && finite(b.W) && finite(b.H) && b.W > 0 && b.H > 0
}

func (b Box) Scale(f float64) Box {
	return Box{X: b.X * f, Y: b.Y * f, W: b.W * f, H: b.H * f}
}

func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// CornerDistance is the Euclidean distance between top-left corners.
func (b Box) CornerDistance(o Box) float64 {
	return math.Hypot(b.X-o.X, b.Y-o.Y)
}

// Toward moves every component of b a fraction alpha of the way to target.
func (b Box) Toward(target Box, alpha float64) Box {
	return Box{
		X: Converge(b.X, target.X, alpha),
		Y: Converge(b.Y, target.Y, alpha),
		W: Converge(b.W, target.W, alpha),
		H: Converge(b.H, target.H, alpha),
	}
}

// ReferenceHeights maps a class label to its typical real-world height in metres.
type ReferenceHeights map[string]float64

// DefaultReferenceHeights covers the classes the perception model commonly emits.
func DefaultReferenceHeights() ReferenceHeights {
	return ReferenceHeights{
		"person":       1.70,
		"face":         0.24,
		"hand":         0.19,
		"left_hand":    0.19,
		"right_hand":   0.19,
		"cup":          0.12,
		"bottle":       0.25,
		"wine glass":   0.20,
		"cell phone":   0.15,
		"laptop":       0.25,
		"keyboard":     0.05,
		"mouse":        0.04,
		"book":         0.23,
		"chair":        0.90,
		"couch":        0.85,
		"dining table": 0.75,
		"tv":           0.60,
		"potted plant": 0.45,
		"backpack":     0.50,
		"dog":          0.60,
		"cat":          0.30,
		"bicycle":      1.00,
		"car":          1.50,
	}
}

// Lookup returns the height for class, falling back to DefaultReferenceHeight.
func (r ReferenceHeights) Lookup(class string) (float64, DepthSource) {
	if h, ok := r[strings.ToLower(strings.TrimSpace(class))]; ok && h > 0 {
		return h, DepthFromReference
	}
	return DefaultReferenceHeight, DepthFromDefault
}

// LetterboxMapping maps source-video pixels onto viewport pixels while
// preserving aspect ratio, centering the scaled video.
type LetterboxMapping struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

func Letterbox(video, viewport Size) (LetterboxMapping, error) {
	if !video.valid() || !viewport.valid() {
		return LetterboxMapping{}, ErrInvalidDimensions
	}
	scale := math.Min(viewport.W/video.W, viewport.H/video.H)
	return LetterboxMapping{
		Scale:   scale,
		OffsetX: (viewport.W - video.W*scale) / 2,
		OffsetY: (viewport.H - video.H*scale) / 2,
	}, nil
}

// Apply converts a box from video pixels to viewport pixels.
func (m LetterboxMapping) Apply(b Box) Box {
	return Box{
		X: b.X*m.Scale + m.OffsetX,
		Y: b.Y*m.Scale + m.OffsetY,
		W: b.W * m.Scale,
		H: b.H * m.Scale,
	}
}

// EstimateDepth applies the pinhole relation
//
//	z = realHeight / heightFraction / (2 * tan(fov/2))
//
// and clamps the result to [MinDepth, MaxDepth].
func EstimateDepth(heightFraction, realHeight, fov float64) float64 {
	z := realHeight / heightFraction / (2 * math.Tan(fov/2))
	if math.IsNaN(z) {
		return MaxDepth
	}
	return clamp(z, MinDepth, MaxDepth)
}

// EstimatePosition back-projects a video-space box to scene-space metres
// for a camera with the given vertical field of view. The camera looks
// down -Z with +Y up, so the returned Z is negative.
func EstimatePosition(box Box, class string, video, viewport Size, fov float64, heights ReferenceHeights) (r3.Vector, DepthSource, error) {
	if !box.Valid() {
		return r3.Vector{}, "", ErrDegenerateBox
	}
	if !(fov > 0 && fov < math.Pi) {
		return r3.Vector{}, "", ErrInvalidFOV
	}
	mapping, err := Letterbox(video, viewport)
	if err != nil {
		return r3.Vector{}, "", err
	}

	view := mapping.Apply(box)
	cx, cy := view.Center()
	ndcX := cx/viewport.W*2 - 1
	ndcY := -(cy/viewport.H*2 - 1)

	realHeight, source := heights.Lookup(class)
	z := EstimateDepth(view.H/viewport.H, realHeight, fov)

	halfH := z * math.Tan(fov/2)
	halfW := halfH * viewport.W / viewport.H

	return r3.Vector{X: ndcX * halfW, Y: ndcY * halfH, Z: -z}, source, nil
}

// Radians converts a field of view given in degrees.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
