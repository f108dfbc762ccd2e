package emotion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/magictales/algorithms/common"
	"github.com/RyanBlaney/magictales/algorithms/spectral"
	"github.com/RyanBlaney/magictales/algorithms/temporal"
	"github.com/RyanBlaney/magictales/algorithms/windowing"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/RyanBlaney/magictales/transcode"
	"gonum.org/v1/gonum/stat"
)

const (
	// SampleRate is the rate every clip is resampled to before analysis.
	SampleRate = 22050
	// NumCoefficients is the number of cepstral coefficients per frame.
	NumCoefficients = 40
	// NumFrames is the fixed time length of every feature matrix.
	NumFrames = 174
)

// FeatureMatrix is a [coefficient][frame] cepstral matrix.
type FeatureMatrix [][]float64

// NewFeatureMatrix allocates a zero matrix of the given shape.
func NewFeatureMatrix(coefficients, frames int) FeatureMatrix {
	m := make(FeatureMatrix, coefficients)
	for i := range m {
		m[i] = make([]float64, frames)
	}
	return m
}

// Shape returns (coefficients, frames). A ragged matrix reports frames of row 0.
func (m FeatureMatrix) Shape() (int, int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// Validate checks for the NumCoefficients x NumFrames shape.
func (m FeatureMatrix) Validate() error {
	if len(m) != NumCoefficients {
		return fmt.Errorf("%w: %d coefficients, want %d", ErrShapeMismatch, len(m), NumCoefficients)
	}
	for i, row := range m {
		if len(row) != NumFrames {
			return fmt.Errorf("%w: coefficient %d has %d frames, want %d", ErrShapeMismatch, i, len(row), NumFrames)
		}
	}
	return nil
}

// Mean is the arithmetic mean over every element.
func (m FeatureMatrix) Mean() float64 {
	c, f := m.Shape()
	if c*f == 0 {
		return 0
	}
	flat := make([]float64, 0, c*f)
	for _, row := range m {
		flat = append(flat, row...)
	}
	return stat.Mean(flat, nil)
}

// FitFrames right-pads every row with zeros, or truncates it, to exactly frames columns.
func FitFrames(m [][]float64, frames int) FeatureMatrix {
	out := make(FeatureMatrix, len(m))
	for i, row := range m {
		out[i] = make([]float64, frames)
		copy(out[i], row)
	}
	return out
}

// ExtractorConfig sets the analysis parameters.
type ExtractorConfig struct {
	SampleRate      int                    `json:"sample_rate"`
	NumCoefficients int                    `json:"num_coefficients"`
	NumFrames       int                    `json:"num_frames"`
	FFTSize         int                    `json:"fft_size"`
	HopSize         int                    `json:"hop_size"`
	NumMelFilters   int                    `json:"num_mel_filters"`
	TopDB           float64                `json:"top_db"`
	PadMode         spectral.PadMode       `json:"pad_mode"`
	Resample        common.ResampleQuality `json:"resample"`
	SilenceFloor    float64                `json:"silence_floor"`
}

// DefaultExtractorConfig returns 40 MFCCs x 174 frames at 22050 Hz over
// 2048-point frames with a 512-sample hop and 128 mel bands.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		SampleRate:      SampleRate,
		NumCoefficients: NumCoefficients,
		NumFrames:       NumFrames,
		FFTSize:         2048,
		HopSize:         512,
		NumMelFilters:   128,
		TopDB:           80,
		PadMode:         spectral.PadConstant,
		Resample:        common.ResampleSinc,
		SilenceFloor:    temporal.DefaultSilenceThreshold,
	}
}

// Clip is the result of extracting one file.
type Clip struct {
	Features FeatureMatrix      `json:"-"`
	Stats    temporal.ClipStats `json:"stats"`
	Format   string             `json:"format"`
	// Frames is the number of analysis frames before padding or truncation.
	Frames    int  `json:"frames"`
	Converted bool `json:"converted"`
}

// Extractor turns audio files into fixed-size feature matrices.
// All DSP state is built once and only read afterwards, so one Extractor
// serves concurrent requests.
type Extractor struct {
	config     ExtractorConfig
	normalizer *transcode.Normalizer
	stft       *spectral.STFT
	window     *windowing.Hann
	mfcc       *spectral.MFCC
	resampler  *common.Resampler
	silence    *temporal.SilenceDetection
	logger     logging.Logger
}

// NewExtractor builds the filter bank, DCT basis, window and resampling table.
func NewExtractor(config ExtractorConfig, normalizer *transcode.Normalizer) (*Extractor, error) {
	if config.SampleRate <= 0 || config.FFTSize <= 0 || config.HopSize <= 0 {
		return nil, fmt.Errorf("invalid extractor config: sample_rate=%d fft_size=%d hop_size=%d",
			config.SampleRate, config.FFTSize, config.HopSize)
	}
	if config.NumCoefficients <= 0 || config.NumFrames <= 0 {
		return nil, fmt.Errorf("invalid feature shape %dx%d", config.NumCoefficients, config.NumFrames)
	}
	if normalizer == nil {
		normalizer = transcode.NewNormalizer(nil)
	}

	params := spectral.DefaultMFCCParams(config.SampleRate)
	params.NumCoefficients = config.NumCoefficients
	if config.NumMelFilters > 0 {
		params.NumMelFilters = config.NumMelFilters
	}
	if config.TopDB > 0 {
		params.DB.TopDB = config.TopDB
	}

	mfcc := spectral.NewMFCCWithParams(config.SampleRate, params)
	if err := mfcc.Initialize(config.FFTSize); err != nil {
		return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
	}

	return &Extractor{
		config:     config,
		normalizer: normalizer,
		stft:       spectral.NewSTFT(),
		window:     windowing.NewHann(config.FFTSize, false),
		mfcc:       mfcc,
		resampler:  common.NewResampler(config.Resample),
		silence:    temporal.NewSilenceDetection(config.SilenceFloor),
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}, nil
}

// Config returns the analysis parameters.
func (e *Extractor) Config() ExtractorConfig {
	return e.config
}

// Extract returns the feature matrix of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (FeatureMatrix, error) {
	clip, err := e.ExtractClip(ctx, path)
	if err != nil {
		return nil, err
	}
	return clip.Features, nil
}

// ExtractClip normalizes, decodes and analyzes the file at path. Any
// intermediate file written by the normalizer is removed before returning.
func (e *Extractor) ExtractClip(ctx context.Context, path string) (*Clip, error) {
	ext := transcode.Extension(path)

	src, err := e.normalizer.Normalize(ctx, path, ext)
	if err != nil {
		return nil, NewAnalysisError(StageNormalize, path, "failed to normalize audio", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			e.logger.Warn("Failed to remove intermediate file", logging.Fields{
				"path":  src.Path,
				"error": cerr.Error(),
			})
		}
	}()

	samples, err := e.Load(ctx, src)
	if err != nil {
		return nil, err
	}

	features, frames, err := e.features(samples)
	if err != nil {
		return nil, NewAnalysisError(StageExtract, path, "failed to extract features", err)
	}

	return &Clip{
		Features:  features,
		Stats:     e.silence.Stats(samples, e.config.SampleRate),
		Format:    ext,
		Frames:    frames,
		Converted: src.Converted,
	}, nil
}

// Load decodes src to mono at the analysis sample rate.
func (e *Extractor) Load(ctx context.Context, src *transcode.Source) ([]float64, error) {
	start := time.Now()

	data, err := src.Decode(ctx)
	if err != nil {
		return nil, NewAnalysisError(StageDecode, src.Original, "failed to decode audio", err)
	}
	if data.Frames() == 0 {
		return nil, NewAnalysisError(StageDecode, src.Original, "decoded no samples", ErrEmptyAudio)
	}

	mono := common.Downmix(data.PCM, data.Channels)
	resampled, err := e.resampler.Resample(mono, data.SampleRate, e.config.SampleRate)
	if err != nil {
		return nil, NewAnalysisError(StageDecode, src.Original, "failed to resample audio", err)
	}

	e.logger.Debug("Loaded audio", logging.Fields{
		"function":    "Load",
		"path":        src.Path,
		"codec":       data.Codec,
		"sample_rate": data.SampleRate,
		"channels":    data.Channels,
		"samples":     len(resampled),
		"load_time":   time.Since(start).Seconds(),
	})

	return resampled, nil
}

// FromSamples extracts features from a mono signal at sampleRate.
func (e *Extractor) FromSamples(samples []float64, sampleRate int) (FeatureMatrix, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	resampled, err := e.resampler.Resample(samples, sampleRate, e.config.SampleRate)
	if err != nil {
		return nil, err
	}

	features, _, err := e.features(resampled)
	return features, err
}

func (e *Extractor) features(samples []float64) (FeatureMatrix, int, error) {
	if len(samples) == 0 {
		return nil, 0, ErrEmptyAudio
	}
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, fmt.Errorf("signal contains non-finite samples")
		}
	}

	spec, err := e.stft.Power(samples, e.config.SampleRate, spectral.STFTParams{
		WindowSize: e.config.FFTSize,
		HopSize:    e.config.HopSize,
		Center:     true,
		PadMode:    e.config.PadMode,
	}, e.window)
	if err != nil {
		return nil, 0, fmt.Errorf("STFT failed: %w", err)
	}

	coeffs, err := e.mfcc.Compute(spec.Power)
	if err != nil {
		return nil, 0, fmt.Errorf("MFCC failed: %w", err)
	}

	features := FitFrames(coeffs, e.config.NumFrames)
	if e.config.NumCoefficients == NumCoefficients && e.config.NumFrames == NumFrames {
		if err := features.Validate(); err != nil {
			return nil, 0, err
		}
	}

	return features, spec.TimeFrames, nil
}
