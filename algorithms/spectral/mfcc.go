package spectral

import (
	"fmt"
	"math"
)

// MFCC computes Mel-Frequency Cepstral Coefficients from power spectrograms.
//
// Pipeline per clip: mel filter bank -> power_to_db (clamped against the clip
// peak) -> orthonormal DCT-II -> first N coefficients -> optional liftering.
type MFCC struct {
	numCoefficients int
	numMelFilters   int
	sampleRate      int
	lowFreq         float64
	highFreq        float64
	lifter          float64
	db              DBParams

	melScale    *MelScale
	fftSize     int
	filterBank  [][]float64
	dctMatrix   [][]float64
	initialized bool
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int      `json:"num_coefficients"` // default 40
	NumMelFilters   int      `json:"num_mel_filters"`  // default 128
	LowFreq         float64  `json:"low_freq"`         // default 0
	HighFreq        float64  `json:"high_freq"`        // default sampleRate/2
	Lifter          float64  `json:"lifter"`           // 0 disables liftering
	DB              DBParams `json:"db"`
	HTK             bool     `json:"htk"` // HTK mel formula instead of Slaney
}

// DefaultMFCCParams returns 40 coefficients over 128 Slaney mel bands with an 80 dB range.
func DefaultMFCCParams(sampleRate int) MFCCParams {
	return MFCCParams{
		NumCoefficients: 40,
		NumMelFilters:   128,
		LowFreq:         0.0,
		HighFreq:        float64(sampleRate) / 2.0,
		DB:              DefaultDBParams(),
	}
}

// NewMFCC creates a new MFCC computer with default parameters
func NewMFCC(sampleRate, numCoefficients int) *MFCC {
	params := DefaultMFCCParams(sampleRate)
	params.NumCoefficients = numCoefficients
	return NewMFCCWithParams(sampleRate, params)
}

// NewMFCCWithParams creates a new MFCC computer with custom parameters
func NewMFCCWithParams(sampleRate int, params MFCCParams) *MFCC {
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 40
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 128
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}

	melScale := NewMelScale()
	if params.HTK {
		melScale = NewHTKMelScale()
	}

	return &MFCC{
		numCoefficients: params.NumCoefficients,
		numMelFilters:   params.NumMelFilters,
		sampleRate:      sampleRate,
		lowFreq:         params.LowFreq,
		highFreq:        params.HighFreq,
		lifter:          params.Lifter,
		db:              params.DB,
		melScale:        melScale,
	}
}

// Initialize prepares the filter bank and DCT basis for the given FFT size
func (mfcc *MFCC) Initialize(fftSize int) error {
	if fftSize <= 0 {
		return fmt.Errorf("invalid FFT size: %d", fftSize)
	}
	if mfcc.numCoefficients > mfcc.numMelFilters {
		return fmt.Errorf("cannot keep %d coefficients from %d mel bands", mfcc.numCoefficients, mfcc.numMelFilters)
	}

	mfcc.filterBank = mfcc.melScale.CreateMelFilterBank(
		mfcc.numMelFilters,
		fftSize,
		mfcc.sampleRate,
		mfcc.lowFreq,
		mfcc.highFreq,
	)

	if len(mfcc.filterBank) == 0 {
		return fmt.Errorf("failed to create mel filter bank")
	}

	mfcc.createDCTMatrix()

	mfcc.fftSize = fftSize
	mfcc.initialized = true
	return nil
}

// Compute turns a [frame][bin] power spectrogram into a [coefficient][frame] matrix.
func (mfcc *MFCC) Compute(power [][]float64) ([][]float64, error) {
	if len(power) == 0 {
		return nil, fmt.Errorf("empty spectrogram")
	}

	fftSize := (len(power[0]) - 1) * 2
	if !mfcc.initialized || mfcc.fftSize != fftSize {
		if err := mfcc.Initialize(fftSize); err != nil {
			return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
		}
	}

	melFrames := make([][]float64, len(power))
	for t, frame := range power {
		if len(frame) != fftSize/2+1 {
			return nil, fmt.Errorf("frame %d has %d bins, want %d", t, len(frame), fftSize/2+1)
		}
		melFrames[t] = mfcc.melScale.ApplyFilterBank(frame, mfcc.filterBank)
	}

	logMel := PowerToDB(melFrames, mfcc.db)

	coeffs := make([][]float64, mfcc.numCoefficients)
	for k := range coeffs {
		coeffs[k] = make([]float64, len(power))
	}

	for t, frame := range logMel {
		c := mfcc.applyDCT(frame)
		if mfcc.lifter > 0 {
			c = mfcc.applyLiftering(c)
		}
		for k, v := range c {
			coeffs[k][t] = v
		}
	}

	return coeffs, nil
}

// createDCTMatrix builds the orthonormal DCT-II basis, truncated to numCoefficients rows
func (mfcc *MFCC) createDCTMatrix() {
	mfcc.dctMatrix = make([][]float64, mfcc.numCoefficients)
	n := float64(mfcc.numMelFilters)

	for k := 0; k < mfcc.numCoefficients; k++ {
		mfcc.dctMatrix[k] = make([]float64, mfcc.numMelFilters)

		scale := math.Sqrt(2.0 / n)
		if k == 0 {
			scale = math.Sqrt(1.0 / n)
		}

		for i := 0; i < mfcc.numMelFilters; i++ {
			mfcc.dctMatrix[k][i] = scale * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/n)
		}
	}
}

func (mfcc *MFCC) applyDCT(logMelSpectrum []float64) []float64 {
	out := make([]float64, mfcc.numCoefficients)

	for k, basis := range mfcc.dctMatrix {
		sum := 0.0
		for i, v := range logMelSpectrum {
			sum += v * basis[i]
		}
		out[k] = sum
	}

	return out
}

// applyLiftering scales coefficient n by 1 + (L/2)*sin(pi*(n+1)/L)
func (mfcc *MFCC) applyLiftering(coeffs []float64) []float64 {
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = c * (1.0 + (mfcc.lifter/2.0)*math.Sin(math.Pi*float64(i+1)/mfcc.lifter))
	}
	return out
}

// GetFilterBank returns the mel filter bank
func (mfcc *MFCC) GetFilterBank() [][]float64 {
	return mfcc.filterBank
}

// GetParams returns the current MFCC parameters
func (mfcc *MFCC) GetParams() MFCCParams {
	return MFCCParams{
		NumCoefficients: mfcc.numCoefficients,
		NumMelFilters:   mfcc.numMelFilters,
		LowFreq:         mfcc.lowFreq,
		HighFreq:        mfcc.highFreq,
		Lifter:          mfcc.lifter,
		DB:              mfcc.db,
		HTK:             mfcc.melScale.htk,
	}
}
