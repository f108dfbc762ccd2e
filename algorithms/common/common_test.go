package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndRMS(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)

	assert.Equal(t, 0.0, RMS(nil))
	assert.InDelta(t, 1.0, RMS([]float64{1, -1, 1, -1}), 1e-12)
}

func TestAmplitudeToDB(t *testing.T) {
	assert.InDelta(t, 0.0, AmplitudeToDB(1, -120), 1e-12)
	assert.InDelta(t, -6.0206, AmplitudeToDB(0.5, -120), 1e-3)
	assert.Equal(t, -120.0, AmplitudeToDB(0, -120))
	assert.Equal(t, -120.0, AmplitudeToDB(1e-9, -120))
}

func TestDownmix(t *testing.T) {
	stereo := []float64{1, 0, 0.5, 0.5, -1, 1}
	assert.Equal(t, []float64{0.5, 0.5, 0}, Downmix(stereo, 2))

	mono := []float64{0.1, 0.2}
	out := Downmix(mono, 1)
	assert.Equal(t, mono, out)
	out[0] = 9
	assert.Equal(t, 0.1, mono[0])
}

func TestResampledLength(t *testing.T) {
	assert.Equal(t, 22050, ResampledLength(44100, 44100, 22050))
	assert.Equal(t, 22050, ResampledLength(16000, 16000, 22050))
	assert.Equal(t, 1, ResampledLength(1, 48000, 22050))
	assert.Equal(t, 0, ResampledLength(0, 48000, 22050))
}

func TestResampleSincPreservesTone(t *testing.T) {
	const from, to = 44100, 22050
	in := make([]float64, from/2)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 440 * float64(i) / from)
	}

	r := NewResampler(ResampleSinc)
	out, err := r.Resample(in, from, to)
	require.NoError(t, err)
	require.Len(t, out, to/2)

	// away from the edges the output tracks the ideal tone
	for i := 200; i < len(out)-200; i += 37 {
		want := math.Sin(2 * math.Pi * 440 * float64(i) / to)
		assert.InDelta(t, want, out[i], 0.02, "sample %d", i)
	}
}

func TestResampleSincRemovesAliases(t *testing.T) {
	const from, to = 44100, 22050
	// 15 kHz is above the 11.025 kHz output Nyquist
	in := make([]float64, from/2)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 15000 * float64(i) / from)
	}

	out, err := NewResampler(ResampleSinc).Resample(in, from, to)
	require.NoError(t, err)
	assert.Less(t, RMS(out[500:len(out)-500]), 0.01)
}

func TestResampleLinearAndIdentity(t *testing.T) {
	r := NewResampler(ResampleLinear)

	out, err := r.Resample([]float64{0, 1, 2, 3}, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3}, out)

	same, err := r.Resample([]float64{1, 2}, 22050, 22050)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, same)

	_, err = r.Resample([]float64{1}, 0, 22050)
	assert.Error(t, err)
}

func TestParseResampleQuality(t *testing.T) {
	q, err := ParseResampleQuality("fast")
	require.NoError(t, err)
	assert.Equal(t, ResampleLinear, q)

	q, err = ParseResampleQuality("SINC")
	require.NoError(t, err)
	assert.Equal(t, ResampleSinc, q)

	_, err = ParseResampleQuality("soxr")
	assert.Error(t, err)
}
