package emotion

import (
	"errors"

	"github.com/RyanBlaney/magictales/transcode"
)

var (
	// ErrDecodeUnavailable means the clip needs a transcoder that is not installed.
	ErrDecodeUnavailable = transcode.ErrDecodeUnavailable

	// ErrUnsupportedFormat is returned for extensions outside transcode.SupportedExtensions.
	ErrUnsupportedFormat = transcode.ErrUnsupportedFormat

	// ErrEmptyAudio means decoding produced zero samples.
	ErrEmptyAudio = errors.New("audio file is empty or could not be loaded")

	// ErrShapeMismatch means a feature matrix is not NumCoefficients x NumFrames.
	ErrShapeMismatch = errors.New("feature matrix has unexpected shape")

	// ErrModelLoad means the model artifact is missing or unusable.
	ErrModelLoad = errors.New("failed to load emotion model")

	// ErrAnalyticsWrite means the analytics counter could not be persisted.
	ErrAnalyticsWrite = errors.New("failed to record analytics")
)

// Analysis stages, used in AnalysisError and the error metric.
const (
	StageNormalize = "normalize"
	StageDecode    = "decode"
	StageExtract   = "extract"
	StageClassify  = "classify"
	StageRecord    = "record"
	StageModelLoad = "model_load"
)

// AnalysisError wraps a failure in one stage of the analysis pipeline.
type AnalysisError struct {
	Stage   string `json:"stage"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// NewAnalysisError creates a new analysis error
func NewAnalysisError(stage, path, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Stage:   stage,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// StageOf returns the stage of the first AnalysisError in err's chain, or "unknown".
func StageOf(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Stage
	}
	return "unknown"
}
