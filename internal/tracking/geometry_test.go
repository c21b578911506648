package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hd = Size{W: 1280, H: 720}

func TestEstimateDepth(t *testing.T) {
	t.Parallel()
	fov := 60 * math.Pi / 180

	t.Run("half height person", func(t *testing.T) {
		z := EstimateDepth(0.5, 1.70, fov)
		assert.InDelta(t, 2.944, z, 0.001)
	})

	t.Run("clamped near", func(t *testing.T) {
		assert.Equal(t, MinDepth, EstimateDepth(1.0, 1.70, fov))
	})

	t.Run("clamped far", func(t *testing.T) {
		assert.Equal(t, MaxDepth, EstimateDepth(0.001, 1.70, fov))
	})

	t.Run("zero fraction", func(t *testing.T) {
		assert.Equal(t, MaxDepth, EstimateDepth(0, 1.70, fov))
	})

	t.Run("monotonic in box height", func(t *testing.T) {
		prev := 0.0
		for _, frac := range []float64{0.9, 0.5, 0.25, 0.1, 0.05} {
			z := EstimateDepth(frac, 1.70, fov)
			assert.GreaterOrEqual(t, z, prev, "fraction %v", frac)
			prev = z
		}
	})
}

func TestEstimatePosition(t *testing.T) {
	t.Parallel()
	fov := 60 * math.Pi / 180
	heights := DefaultReferenceHeights()

	t.Run("centered box is on axis", func(t *testing.T) {
		box := Box{X: 590, Y: 180, W: 100, H: 360}
		pos, source, err := EstimatePosition(box, "person", hd, hd, fov, heights)
		require.NoError(t, err)
		assert.Equal(t, DepthFromReference, source)
		assert.InDelta(t, 0, pos.X, 1e-9)
		assert.InDelta(t, 0, pos.Y, 1e-9)
		assert.InDelta(t, -2.944, pos.Z, 0.001)
		assert.InDelta(t, 2.944, pos.Norm(), 0.001)
	})

	t.Run("left and up of center", func(t *testing.T) {
		box := Box{X: 0, Y: 0, W: 100, H: 100}
		pos, _, err := EstimatePosition(box, "cup", hd, hd, fov, heights)
		require.NoError(t, err)
		assert.Less(t, pos.X, 0.0)
		assert.Greater(t, pos.Y, 0.0)
		assert.Less(t, pos.Z, 0.0)
	})

	t.Run("unknown class uses default height", func(t *testing.T) {
		box := Box{X: 590, Y: 310, W: 100, H: 100}
		_, source, err := EstimatePosition(box, "spaceship", hd, hd, fov, heights)
		require.NoError(t, err)
		assert.Equal(t, DepthFromDefault, source)
	})

	t.Run("degenerate box", func(t *testing.T) {
		_, _, err := EstimatePosition(Box{X: 1, Y: 1, W: 0, H: 10}, "cup", hd, hd, fov, heights)
		assert.ErrorIs(t, err, ErrDegenerateBox)
	})

	t.Run("invalid fov", func(t *testing.T) {
		_, _, err := EstimatePosition(Box{W: 10, H: 10}, "cup", hd, hd, 0, heights)
		assert.ErrorIs(t, err, ErrInvalidFOV)
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		_, _, err := EstimatePosition(Box{W: 10, H: 10}, "cup", Size{}, hd, fov, heights)
		assert.ErrorIs(t, err, ErrInvalidDimensions)
	})
}

func TestLetterbox(t *testing.T) {
	t.Parallel()

	m, err := Letterbox(Size{W: 640, H: 480}, hd)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, m.Scale, 1e-9)
	assert.InDelta(t, 160, m.OffsetX, 1e-9)
	assert.InDelta(t, 0, m.OffsetY, 1e-9)

	got := m.Apply(Box{X: 0, Y: 0, W: 640, H: 480})
	assert.Equal(t, Box{X: 160, Y: 0, W: 960, H: 720}, got)
}

func TestBox(t *testing.T) {
	t.Parallel()

	assert.True(t, Box{W: 1, H: 1}.Valid())
	assert.False(t, Box{W: -1, H: 1}.Valid())
	assert.False(t, Box{W: math.NaN(), H: 1}.Valid())
	assert.False(t, Box{X: math.Inf(1), W: 1, H: 1}.Valid())

	assert.InDelta(t, 5, Box{}.CornerDistance(Box{X: 3, Y: 4}), 1e-9)

	moved := Box{X: 0, Y: 0, W: 10, H: 10}.Toward(Box{X: 100, Y: 100, W: 20, H: 20}, 0.35)
	assert.InDelta(t, 35, moved.X, 1e-9)
	assert.InDelta(t, 13.5, moved.W, 1e-9)
}

func TestReferenceHeightsLookup(t *testing.T) {
	t.Parallel()
	h := DefaultReferenceHeights()

	got, src := h.Lookup("  Person ")
	assert.Equal(t, 1.70, got)
	assert.Equal(t, DepthFromReference, src)

	got, src = h.Lookup("unicorn")
	assert.Equal(t, DefaultReferenceHeight, got)
	assert.Equal(t, DepthFromDefault, src)
}
