package spectral

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/RyanBlaney/magictales/logging"
)

// PadMode selects how a centered STFT extends the signal by half a window on each side.
type PadMode int

const (
	// PadConstant pads with zeros.
	PadConstant PadMode = iota
	// PadReflect mirrors the signal without repeating the edge sample.
	PadReflect
)

// ParsePadMode accepts "constant" (or "zeros") and "reflect", in any case.
func ParsePadMode(s string) (PadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "constant", "zeros":
		return PadConstant, nil
	case "reflect":
		return PadReflect, nil
	default:
		return PadConstant, fmt.Errorf("unknown pad mode %q", s)
	}
}

// STFTParams configures framing for Power.
type STFTParams struct {
	WindowSize int     `json:"window_size"`
	HopSize    int     `json:"hop_size"`
	Center     bool    `json:"center"`
	PadMode    PadMode `json:"pad_mode"`
}

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft    *FFT
	logger logging.Logger
}

// STFTResult holds a power spectrogram, indexed [frame][bin].
type STFTResult struct {
	Power          [][]float64 `json:"power"`
	TimeFrames     int         `json:"time_frames"`
	FreqBins       int         `json:"freq_bins"`
	SampleRate     int         `json:"sample_rate"`
	WindowSize     int         `json:"window_size"`
	HopSize        int         `json:"hop_size"`
	FreqResolution float64     `json:"freq_resolution"` // Hz per bin
	TimeResolution float64     `json:"time_resolution"` // seconds per frame
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
		logger: logging.WithFields(logging.Fields{
			"component": "stft",
		}),
	}
}

// FrameCount returns the number of frames Power produces for n samples.
func FrameCount(n int, params STFTParams) int {
	if params.Center {
		return 1 + n/params.HopSize
	}
	if n < params.WindowSize {
		return 0
	}
	return (n-params.WindowSize)/params.HopSize + 1
}

// Power computes |X|^2 for every frame, fanning frames out to a worker pool.
// Each worker writes only its own frame rows, so the result does not depend
// on scheduling.
func (s *STFT) Power(signal []float64, sampleRate int, params STFTParams, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if params.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if params.HopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	padded := signal
	if params.Center {
		padded = PadCenter(signal, params.WindowSize/2, params.PadMode)
	}

	numFrames := FrameCount(len(signal), params)
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	freqBins := params.WindowSize/2 + 1
	power := make([][]float64, numFrames)
	for i := range numFrames {
		power[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			frameBuffer := make([]float64, params.WindowSize)

			for frameIdx := range jobs {
				start := frameIdx * params.HopSize
				end := start + params.WindowSize

				// with an odd window the last centered frame overruns by one sample
				for i := range frameBuffer {
					frameBuffer[i] = 0
				}
				if start < len(padded) {
					copy(frameBuffer, padded[start:min(end, len(padded))])
				}

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errOnce.Do(func() { firstErr = err })
						continue
					}
				}

				spectrum := s.fft.Compute(frameBuffer)
				row := power[frameIdx]
				for k := range freqBins {
					re, im := real(spectrum[k]), imag(spectrum[k])
					row[k] = re*re + im*im
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		s.logger.Error(firstErr, "Window application failed", logging.Fields{
			"window_size": params.WindowSize,
		})
		return nil, fmt.Errorf("failed to apply window: %w", firstErr)
	}

	return &STFTResult{
		Power:          power,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     params.WindowSize,
		HopSize:        params.HopSize,
		FreqResolution: float64(sampleRate) / float64(params.WindowSize),
		TimeResolution: float64(params.HopSize) / float64(sampleRate),
	}, nil
}

// PadCenter extends signal by pad samples on both sides.
// Reflection needs at least pad+1 samples; shorter signals fall back to zeros.
func PadCenter(signal []float64, pad int, mode PadMode) []float64 {
	out := make([]float64, len(signal)+2*pad)
	copy(out[pad:], signal)

	if mode != PadReflect || len(signal) <= pad {
		return out
	}

	for i := 0; i < pad; i++ {
		out[pad-1-i] = signal[i+1]
		out[pad+len(signal)+i] = signal[len(signal)-2-i]
	}
	return out
}

// getOptimalWorkerCount sizes the pool to the workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// small clips are cheaper to run inline than to fan out
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
