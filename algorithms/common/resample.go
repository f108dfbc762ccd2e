package common

import (
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/magictales/algorithms/windowing"
)

// ResampleQuality picks the interpolation kernel.
type ResampleQuality int

const (
	// ResampleSinc is a Kaiser-windowed sinc, band-limited to the lower Nyquist.
	ResampleSinc ResampleQuality = iota
	// ResampleLinear interpolates between neighbours without filtering.
	ResampleLinear
)

// ParseResampleQuality accepts "sinc"/"high" and "linear"/"fast", in any case.
func ParseResampleQuality(s string) (ResampleQuality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sinc", "high":
		return ResampleSinc, nil
	case "linear", "fast":
		return ResampleLinear, nil
	default:
		return ResampleSinc, fmt.Errorf("unknown resample quality %q", s)
	}
}

const (
	sincZeroCrossings = 16
	sincPrecision     = 256
	sincRolloff       = 0.945
	sincAttenuationDB = 90.0
)

// Resampler converts mono signals between sample rates.
// It holds only read-only tables after construction and is safe for concurrent use.
type Resampler struct {
	quality ResampleQuality
	kernel  []float64 // sinc*kaiser sampled on [0, zeroCrossings] at sincPrecision per unit
}

// NewResampler builds the interpolation table for the given quality.
func NewResampler(quality ResampleQuality) *Resampler {
	r := &Resampler{quality: quality}
	if quality == ResampleSinc {
		r.kernel = buildSincTable()
	}
	return r
}

func buildSincTable() []float64 {
	half := sincZeroCrossings * sincPrecision
	beta := windowing.KaiserBeta(sincAttenuationDB)
	// symmetric window of 2*half+1 points; index half is x=0
	window := windowing.NewKaiser(2*half+1, beta, true).GetCoefficients()

	table := make([]float64, half+1)
	for i := range table {
		x := float64(i) / sincPrecision
		table[i] = sinc(x) * window[half+i]
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// ResampledLength is ceil(n * to / from).
func ResampledLength(n, from, to int) int {
	if n == 0 || from <= 0 || to <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * float64(to) / float64(from)))
}

// Resample converts signal from one rate to another. Equal rates return a copy.
func (r *Resampler) Resample(signal []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if len(signal) == 0 {
		return []float64{}, nil
	}
	if from == to {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out, nil
	}

	n := ResampledLength(len(signal), from, to)
	out := make([]float64, n)
	ratio := float64(from) / float64(to)

	if r.quality == ResampleLinear {
		for i := range out {
			out[i] = linearAt(signal, float64(i)*ratio)
		}
		return out, nil
	}

	// scale the cutoff below the lower of the two Nyquist rates
	cutoff := sincRolloff * math.Min(1, float64(to)/float64(from))
	reach := float64(sincZeroCrossings) / cutoff

	for i := range out {
		t := float64(i) * ratio
		lo := int(math.Ceil(t - reach))
		hi := int(math.Floor(t + reach))

		sum := 0.0
		for j := max(lo, 0); j <= hi && j < len(signal); j++ {
			sum += signal[j] * r.kernelAt(math.Abs(t-float64(j))*cutoff)
		}
		out[i] = sum * cutoff
	}

	return out, nil
}

// kernelAt linearly interpolates the sinc table at x >= 0 (in zero-crossing units)
func (r *Resampler) kernelAt(x float64) float64 {
	pos := x * sincPrecision
	i := int(pos)
	if i >= len(r.kernel)-1 {
		return 0
	}
	frac := pos - float64(i)
	return r.kernel[i] + frac*(r.kernel[i+1]-r.kernel[i])
}

func linearAt(data []float64, index float64) float64 {
	if index <= 0 {
		return data[0]
	}
	if index >= float64(len(data)-1) {
		return data[len(data)-1]
	}

	i := int(index)
	frac := index - float64(i)
	return data[i] + frac*(data[i+1]-data[i])
}
