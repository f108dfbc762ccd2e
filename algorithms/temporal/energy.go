package temporal

import (
	"math"
)

// Energy computes frame-level RMS energy over a mono signal.
type Energy struct {
	frameSize  int
	hopSize    int
	sampleRate int
}

// NewEnergy creates a new energy calculator
func NewEnergy(frameSize, hopSize, sampleRate int) *Energy {
	return &Energy{
		frameSize:  frameSize,
		hopSize:    hopSize,
		sampleRate: sampleRate,
	}
}

// NewEnergyForDuration uses 25 ms frames with 50% overlap.
func NewEnergyForDuration(sampleRate int) *Energy {
	frameSize := max(1, int(0.025*float64(sampleRate)))
	return NewEnergy(frameSize, max(1, frameSize/2), sampleRate)
}

// ComputeShortTimeEnergy returns the RMS of each full frame.
// A signal shorter than one frame is treated as a single frame.
func (e *Energy) ComputeShortTimeEnergy(signal []float64) []float64 {
	if len(signal) == 0 || e.hopSize <= 0 || e.frameSize <= 0 {
		return []float64{}
	}

	if len(signal) < e.frameSize {
		return []float64{rms(signal)}
	}

	numFrames := (len(signal)-e.frameSize)/e.hopSize + 1
	energies := make([]float64, numFrames)

	for i := range numFrames {
		start := i * e.hopSize
		energies[i] = rms(signal[start : start+e.frameSize])
	}

	return energies
}

// ComputeLogEnergy calculates frame energy in dB, floored at floor (linear)
func (e *Energy) ComputeLogEnergy(signal []float64, floor float64) []float64 {
	energies := e.ComputeShortTimeEnergy(signal)
	logEnergies := make([]float64, len(energies))

	for i, energy := range energies {
		if energy < floor {
			energy = floor
		}
		logEnergies[i] = 20.0 * math.Log10(energy)
	}

	return logEnergies
}

func rms(frame []float64) float64 {
	sumSquares := 0.0
	for _, v := range frame {
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(frame)))
}
