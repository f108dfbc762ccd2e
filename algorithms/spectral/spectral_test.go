package spectral

import (
	"math"
	"testing"

	"github.com/RyanBlaney/magictales/algorithms/windowing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestFrameCountCentered(t *testing.T) {
	params := STFTParams{WindowSize: 2048, HopSize: 512, Center: true}

	assert.Equal(t, 87, FrameCount(44100, params))
	assert.Equal(t, 5, FrameCount(2205, params))
	assert.Equal(t, 1, FrameCount(10, params))

	params.Center = false
	assert.Equal(t, 0, FrameCount(100, params))
	assert.Equal(t, 2, FrameCount(2560, params))
}

func TestPadCenter(t *testing.T) {
	sig := []float64{1, 2, 3, 4}

	assert.Equal(t, []float64{3, 2, 1, 2, 3, 4, 3, 2}, PadCenter(sig, 2, PadReflect))
	assert.Equal(t, []float64{0, 0, 1, 2, 3, 4, 0, 0}, PadCenter(sig, 2, PadConstant))
	// too short to reflect
	assert.Equal(t, []float64{0, 0, 0, 1, 0, 0, 0}, PadCenter([]float64{1}, 3, PadReflect))
}

func TestParsePadMode(t *testing.T) {
	mode, err := ParsePadMode("reflect")
	require.NoError(t, err)
	assert.Equal(t, PadReflect, mode)

	mode, err = ParsePadMode("")
	require.NoError(t, err)
	assert.Equal(t, PadConstant, mode)

	mode, err = ParsePadMode(" Reflect ")
	require.NoError(t, err)
	assert.Equal(t, PadReflect, mode)

	_, err = ParsePadMode("edge")
	assert.Error(t, err)
}

func TestSTFTPowerPeakBin(t *testing.T) {
	const sr = 22050
	// 1000 Hz lands between bins; check the nearest bin dominates
	sig := sine(1000, sr, sr)

	params := STFTParams{WindowSize: 2048, HopSize: 512, Center: true, PadMode: PadConstant}
	res, err := NewSTFT().Power(sig, sr, params, windowing.NewHann(2048, false))
	require.NoError(t, err)

	assert.Equal(t, 44, res.TimeFrames)
	assert.Equal(t, 1025, res.FreqBins)

	mid := res.Power[res.TimeFrames/2]
	peak := 0
	for k := range mid {
		if mid[k] > mid[peak] {
			peak = k
		}
	}
	assert.Equal(t, int(math.Round(1000/res.FreqResolution)), peak)
}

func TestSTFTRejectsBadParams(t *testing.T) {
	s := NewSTFT()
	_, err := s.Power(nil, 22050, STFTParams{WindowSize: 4, HopSize: 2}, nil)
	assert.Error(t, err)

	_, err = s.Power([]float64{1, 2}, 22050, STFTParams{WindowSize: 0, HopSize: 2}, nil)
	assert.Error(t, err)

	_, err = s.Power([]float64{1, 2}, 22050, STFTParams{WindowSize: 4, HopSize: 2}, windowing.NewHann(8, false))
	assert.Error(t, err)
}

func TestSlaneyMelRoundTrip(t *testing.T) {
	ms := NewMelScale()

	assert.InDelta(t, 15.0, ms.HzToMel(1000), 1e-9)
	assert.InDelta(t, 3.0, ms.HzToMel(200), 1e-9)
	for _, hz := range []float64{0, 300, 999, 1000, 4000, 11025} {
		assert.InDelta(t, hz, ms.MelToHz(ms.HzToMel(hz)), 1e-6)
	}

	htk := NewHTKMelScale()
	assert.InDelta(t, 1000.0, htk.HzToMel(1000), 0.1)
}

func TestMelFilterBankShapeAndNorm(t *testing.T) {
	ms := NewMelScale()
	fb := ms.CreateMelFilterBank(128, 2048, 22050, 0, 11025)

	require.Len(t, fb, 128)
	for m, row := range fb {
		require.Len(t, row, 1025)
		nonZero := false
		for _, w := range row {
			assert.GreaterOrEqual(t, w, 0.0)
			if w > 0 {
				nonZero = true
			}
		}
		assert.True(t, nonZero, "filter %d empty", m)
	}
}

func TestPowerToDB(t *testing.T) {
	in := [][]float64{{1, 0.1, 0}, {1e-12, 100, 1e-9}}
	out := PowerToDB(in, DefaultDBParams())

	assert.InDelta(t, 0.0, out[0][0], 1e-9)
	assert.InDelta(t, -10.0, out[0][1], 1e-9)
	assert.InDelta(t, 20.0, out[1][1], 1e-9)
	// everything below peak-80 is clamped
	assert.InDelta(t, -60.0, out[0][2], 1e-9)
	assert.InDelta(t, -60.0, out[1][0], 1e-9)

	noClamp := PowerToDB(in, DBParams{Ref: 1, Amin: 1e-10})
	assert.InDelta(t, -100.0, noClamp[0][2], 1e-9)
}

func TestMFCCShapeAndOrthonormalDCT(t *testing.T) {
	const sr = 22050
	m := NewMFCC(sr, 40)
	require.NoError(t, m.Initialize(2048))

	// rows of an orthonormal basis have unit norm
	for k, row := range m.dctMatrix {
		sum := 0.0
		for _, v := range row {
			sum += v * v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", k)
	}

	params := STFTParams{WindowSize: 2048, HopSize: 512, Center: true}
	res, err := NewSTFT().Power(sine(440, sr, sr/2), sr, params, windowing.NewHann(2048, false))
	require.NoError(t, err)

	coeffs, err := m.Compute(res.Power)
	require.NoError(t, err)
	require.Len(t, coeffs, 40)
	for _, row := range coeffs {
		assert.Len(t, row, res.TimeFrames)
	}
}

func TestMFCCConstantSpectrumOnlyC0(t *testing.T) {
	m := NewMFCCWithParams(22050, MFCCParams{NumCoefficients: 13, NumMelFilters: 26, DB: DBParams{Ref: 1, Amin: 1e-10}})
	require.NoError(t, m.Initialize(512))

	// a flat log-mel vector projects onto c0 only
	flat := make([]float64, 26)
	for i := range flat {
		flat[i] = -20
	}
	c := m.applyDCT(flat)
	assert.InDelta(t, -20*math.Sqrt(26), c[0], 1e-9)
	for k := 1; k < len(c); k++ {
		assert.InDelta(t, 0.0, c[k], 1e-9)
	}
}

func TestMFCCRejectsTooManyCoefficients(t *testing.T) {
	m := NewMFCCWithParams(22050, MFCCParams{NumCoefficients: 40, NumMelFilters: 20})
	assert.Error(t, m.Initialize(2048))
}
