package temporal

import (
	"math"
	"time"

	"github.com/RyanBlaney/magictales/algorithms/common"
)

// DefaultSilenceThreshold is the frame RMS below which a frame counts as silent (about -60 dBFS).
const DefaultSilenceThreshold = 0.001

// ClipStats summarises a decoded clip for logs and the analyze command.
type ClipStats struct {
	Duration     time.Duration `json:"duration"`
	Samples      int           `json:"samples"`
	SampleRate   int           `json:"sample_rate"`
	RMSDB        float64       `json:"rms_db"`
	PeakDB       float64       `json:"peak_db"`
	SilenceRatio float64       `json:"silence_ratio"`
}

// SilenceDetection measures how much of a clip is silent.
type SilenceDetection struct {
	threshold float64
}

// NewSilenceDetection creates a detector; threshold <= 0 selects DefaultSilenceThreshold.
func NewSilenceDetection(threshold float64) *SilenceDetection {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	return &SilenceDetection{threshold: threshold}
}

// ComputeSilenceRatio calculates the ratio of silent frames
func (sd *SilenceDetection) ComputeSilenceRatio(signal []float64, sampleRate int) float64 {
	energies := NewEnergyForDuration(sampleRate).ComputeShortTimeEnergy(signal)
	if len(energies) == 0 {
		return 0.0
	}

	silentFrames := 0
	for _, energy := range energies {
		if energy < sd.threshold {
			silentFrames++
		}
	}

	return float64(silentFrames) / float64(len(energies))
}

// Stats computes duration, level and silence ratio of a mono clip.
func (sd *SilenceDetection) Stats(signal []float64, sampleRate int) ClipStats {
	stats := ClipStats{
		Samples:    len(signal),
		SampleRate: sampleRate,
		RMSDB:      -120,
		PeakDB:     -120,
	}
	if len(signal) == 0 || sampleRate <= 0 {
		return stats
	}

	peak := 0.0
	for _, v := range signal {
		peak = math.Max(peak, math.Abs(v))
	}

	stats.Duration = time.Duration(len(signal)) * time.Second / time.Duration(sampleRate)
	stats.RMSDB = common.AmplitudeToDB(common.RMS(signal), -120)
	stats.PeakDB = common.AmplitudeToDB(peak, -120)
	stats.SilenceRatio = sd.ComputeSilenceRatio(signal, sampleRate)
	return stats
}
