package temporal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShortTimeEnergy(t *testing.T) {
	e := NewEnergy(4, 2, 8)

	energies := e.ComputeShortTimeEnergy([]float64{1, 1, 1, 1, 0, 0, 0, 0})
	assert.Equal(t, []float64{1, math.Sqrt(0.5), 0}, energies)

	// shorter than one frame
	assert.Equal(t, []float64{1}, e.ComputeShortTimeEnergy([]float64{1, -1}))
	assert.Empty(t, e.ComputeShortTimeEnergy(nil))

	logE := e.ComputeLogEnergy([]float64{1, 1, 1, 1, 0, 0, 0, 0}, 1e-5)
	assert.InDelta(t, 0.0, logE[0], 1e-12)
	assert.InDelta(t, -100.0, logE[2], 1e-9)
}

func TestSilenceRatioAndStats(t *testing.T) {
	const sr = 22050
	sig := make([]float64, sr) // 1 s
	for i := 0; i < sr/2; i++ {
		sig[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/sr)
	}

	sd := NewSilenceDetection(0)
	ratio := sd.ComputeSilenceRatio(sig, sr)
	assert.InDelta(t, 0.5, ratio, 0.05)

	stats := sd.Stats(sig, sr)
	assert.Equal(t, time.Second, stats.Duration)
	assert.Equal(t, sr, stats.Samples)
	assert.InDelta(t, -6.02, stats.PeakDB, 0.05)
	assert.Less(t, stats.RMSDB, stats.PeakDB)

	empty := sd.Stats(nil, sr)
	assert.Equal(t, -120.0, empty.RMSDB)
	assert.Zero(t, empty.SilenceRatio)
}
