package spectral

import (
	"math"
)

// MelScale converts between Hz and mel and builds triangular filter banks.
//
// The Slaney variant is linear below 1 kHz and logarithmic above, and its
// filters are area-normalized. The HTK variant uses 2595*log10(1+f/700) with
// unit-peak filters.
type MelScale struct {
	htk bool
}

// NewMelScale creates a Slaney-style mel scale.
func NewMelScale() *MelScale {
	return &MelScale{}
}

// NewHTKMelScale creates an HTK-style mel scale.
func NewHTKMelScale() *MelScale {
	return &MelScale{htk: true}
}

const (
	slaneyFSP       = 200.0 / 3.0
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSP
)

var slaneyLogStep = math.Log(6.4) / 27.0

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if ms.htk {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}
	if hz >= slaneyMinLogHz {
		return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
	}
	return hz / slaneyFSP
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if ms.htk {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}
	if mel >= slaneyMinLogMel {
		return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
	}
	return slaneyFSP * mel
}

// CreateMelFilterBank returns numFilters rows of fftSize/2+1 weights.
//
// Triangles are evaluated at the exact bin frequencies instead of snapping
// edges to bins, so narrow low-frequency filters never collapse to zero.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 {
		return nil
	}

	numBins := fftSize/2 + 1
	binFreqs := make([]float64, numBins)
	for k := range binFreqs {
		binFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)

	hzPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range hzPoints {
		hzPoints[i] = ms.MelToHz(lowMel + float64(i)*melStep)
	}

	filterBank := make([][]float64, numFilters)
	for m := range filterBank {
		filterBank[m] = make([]float64, numBins)

		left, center, right := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		lowerWidth := center - left
		upperWidth := right - center

		for k, f := range binFreqs {
			lower := (f - left) / lowerWidth
			upper := (right - f) / upperWidth
			filterBank[m][k] = math.Max(0, math.Min(lower, upper))
		}

		if !ms.htk {
			enorm := 2.0 / (right - left)
			for k := range filterBank[m] {
				filterBank[m][k] *= enorm
			}
		}
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}
