package tracking

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MotionDetector flags rapid camera motion by comparing a small central patch
// of consecutive frames.
type MotionDetector struct {
	PatchSize int
	Threshold float64 // mean absolute luma difference, 0-255

	prev []float64
}

func NewMotionDetector(patchSize int, threshold float64) *MotionDetector {
	return &MotionDetector{PatchSize: patchSize, Threshold: threshold}
}

// Observe takes the next frame and reports whether motion is rapid. The first
// frame, and any frame whose patch size differs from the previous one, only
// primes the detector.
func (m *MotionDetector) Observe(frame image.Image) bool {
	patch := centralPatch(frame, m.PatchSize)
	prev := m.prev
	m.prev = patch

	if len(patch) == 0 || len(prev) != len(patch) {
		return false
	}
	return MeanAbsDiff(prev, patch) > m.Threshold
}

func (m *MotionDetector) Reset() {
	m.prev = nil
}

// MeanAbsDiff is the mean absolute difference of two equal-length samples.
func MeanAbsDiff(a, b []float64) float64 {
	diffs := make([]float64, len(a))
	for i := range a {
		diffs[i] = math.Abs(a[i] - b[i])
	}
	return stat.Mean(diffs, nil)
}

// centralPatch extracts the luma of a size x size square centered in img,
// shrunk to fit small images.
func centralPatch(img image.Image, size int) []float64 {
	if img == nil || size <= 0 {
		return nil
	}
	b := img.Bounds()
	w := min(size, b.Dx())
	h := min(size, b.Dy())
	if w <= 0 || h <= 0 {
		return nil
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2

	out := make([]float64, 0, w*h)
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			out = append(out, float64(g.Y))
		}
	}
	return out
}
