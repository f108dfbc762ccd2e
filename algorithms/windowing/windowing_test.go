package windowing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHannPeriodic(t *testing.T) {
	h := NewHann(8, false)
	c := h.GetCoefficients()

	require.Len(t, c, 8)
	assert.InDelta(t, 0.0, c[0], 1e-12)
	assert.InDelta(t, 1.0, c[4], 1e-12)
	// periodic: mirrored around size/2, last sample is not zero
	assert.InDelta(t, c[1], c[7], 1e-12)
	assert.Greater(t, c[7], 0.0)
}

func TestHannSymmetric(t *testing.T) {
	c := NewHann(9, true).GetCoefficients()
	assert.InDelta(t, 0.0, c[8], 1e-12)
	assert.InDelta(t, 1.0, c[4], 1e-12)
}

func TestHannApplyInPlaceLengthMismatch(t *testing.T) {
	h := NewHann(4, false)
	assert.Error(t, h.ApplyInPlace(make([]float64, 3)))

	sig := []float64{1, 1, 1, 1}
	require.NoError(t, h.ApplyInPlace(sig))
	assert.Equal(t, h.GetCoefficients(), sig)
}

func TestKaiser(t *testing.T) {
	k := NewKaiser(11, 8.6, true)
	c := k.GetCoefficients()

	assert.InDelta(t, 1.0, c[5], 1e-12)
	assert.InDelta(t, c[0], c[10], 1e-12)
	assert.Less(t, c[0], 0.01)

	assert.InDelta(t, 1.0, k.At(0), 1e-12)
	assert.Equal(t, 0.0, k.At(1.5))
}

func TestBesselI0(t *testing.T) {
	assert.InDelta(t, 1.0, BesselI0(0), 1e-12)
	assert.InDelta(t, 1.2660658777520082, BesselI0(1), 1e-9)
	assert.InDelta(t, 2815.716628466254, BesselI0(10), 1e-4)
}

func TestKaiserBeta(t *testing.T) {
	assert.Equal(t, 0.0, KaiserBeta(10))
	assert.InDelta(t, 0.1102*(80-8.7), KaiserBeta(80), 1e-12)
	assert.False(t, math.IsNaN(KaiserBeta(30)))
}
