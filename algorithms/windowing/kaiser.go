package windowing

import (
	"fmt"
	"math"
)

// Kaiser is the window used to taper the sinc kernel of the resampler.
type Kaiser struct {
	size         int
	beta         float64
	symmetric    bool
	coefficients []float64
}

// NewKaiser creates a new Kaiser window
func NewKaiser(size int, beta float64, symmetric bool) *Kaiser {
	k := &Kaiser{
		size:      size,
		beta:      beta,
		symmetric: symmetric,
	}
	k.generate()
	return k
}

// KaiserBeta returns the shape parameter for a stopband attenuation in dB
// (Kaiser's empirical design formula).
func KaiserBeta(attenuationDB float64) float64 {
	switch {
	case attenuationDB > 50:
		return 0.1102 * (attenuationDB - 8.7)
	case attenuationDB >= 21:
		return 0.5842*math.Pow(attenuationDB-21, 0.4) + 0.07886*(attenuationDB-21)
	default:
		return 0
	}
}

func (k *Kaiser) generate() {
	k.coefficients = make([]float64, k.size)
	if k.size == 1 {
		k.coefficients[0] = 1
		return
	}

	denominator := float64(k.size)
	if k.symmetric {
		denominator = float64(k.size - 1)
	}

	i0Beta := BesselI0(k.beta)

	for i := range k.size {
		arg := 2.0*float64(i)/denominator - 1.0
		k.coefficients[i] = BesselI0(k.beta*math.Sqrt(math.Max(0, 1-arg*arg))) / i0Beta
	}
}

// At evaluates the continuous window at x in [-1, 1]; zero outside.
func (k *Kaiser) At(x float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	return BesselI0(k.beta*math.Sqrt(1-x*x)) / BesselI0(k.beta)
}

// BesselI0 computes the zero-order modified Bessel function of the first kind
// by its power series.
func BesselI0(x float64) float64 {
	sum := 1.0
	term := 1.0

	for i := 1; i < 50; i++ {
		half := x / (2.0 * float64(i))
		term *= half * half
		sum += term

		if term < 1e-12*sum {
			break
		}
	}

	return sum
}

// ApplyInPlace applies the window to a signal in-place
func (k *Kaiser) ApplyInPlace(signal []float64) error {
	if len(signal) != k.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), k.size)
	}

	for i, c := range k.coefficients {
		signal[i] *= c
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (k *Kaiser) GetCoefficients() []float64 {
	coeffs := make([]float64, len(k.coefficients))
	copy(coeffs, k.coefficients)
	return coeffs
}

// GetBeta returns the Kaiser beta parameter
func (k *Kaiser) GetBeta() float64 {
	return k.beta
}
