package emotion

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/magictales/algorithms/temporal"
	"github.com/RyanBlaney/magictales/logging"
)

// Recorder persists one classification.
type Recorder interface {
	Record(label string) error
}

// Observer receives the outcome of every analysis, for metrics.
type Observer interface {
	ObserveAnalysis(a *Analysis)
	ObserveError(stage string)
}

// Analysis is the result of one Analyze call.
type Analysis struct {
	Label    Label              `json:"label"`
	Display  string             `json:"display"`
	Variant  string             `json:"variant"`
	Format   string             `json:"format"`
	Clip     temporal.ClipStats `json:"clip"`
	Frames   int                `json:"frames"`
	Elapsed  time.Duration      `json:"elapsed"`
	Recorded bool               `json:"recorded"`
}

// Analyzer runs normalize, extract, classify and record for one file.
type Analyzer struct {
	extractor  *Extractor
	classifier Classifier
	recorder   Recorder
	observers  []Observer
	logger     logging.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRecorder counts every classification in r.
func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(a *Analyzer) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// NewAnalyzer wires the pipeline. A nil classifier selects the fallback.
func NewAnalyzer(extractor *Extractor, classifier Classifier, opts ...Option) *Analyzer {
	if classifier == nil {
		classifier = NewFallback()
	}
	a := &Analyzer{
		extractor:  extractor,
		classifier: classifier,
		logger: logging.WithFields(logging.Fields{
			"component": "emotion_analyzer",
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classifier returns the classifier chosen at startup.
func (a *Analyzer) Classifier() Classifier {
	return a.classifier
}

// Analyze classifies the clip at path. Decode and extraction failures are
// returned; a failed analytics write is logged and leaves Recorded false.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*Analysis, error) {
	logger := a.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Analyze",
		"path":     path,
	})
	start := time.Now()

	clip, err := a.extractor.ExtractClip(ctx, path)
	if err != nil {
		a.fail(logger, err, "Feature extraction failed")
		return nil, err
	}

	label, err := a.classifier.Classify(clip.Features)
	if err != nil {
		err = NewAnalysisError(StageClassify, path, "failed to classify features", err)
		a.fail(logger, err, "Classification failed")
		return nil, err
	}

	analysis := &Analysis{
		Label:   label,
		Display: label.Display(),
		Variant: a.classifier.Variant(),
		Format:  clip.Format,
		Clip:    clip.Stats,
		Frames:  clip.Frames,
	}

	if a.recorder != nil {
		if err := a.recorder.Record(string(label)); err != nil {
			err = NewAnalysisError(StageRecord, path, "analytics counter not updated", fmt.Errorf("%w: %w", ErrAnalyticsWrite, err))
			a.fail(logger, err, "Analytics write failed, continuing")
		} else {
			analysis.Recorded = true
		}
	}

	analysis.Elapsed = time.Since(start)

	logger.Info("Emotion detected", logging.Fields{
		"label":         label,
		"variant":       analysis.Variant,
		"format":        analysis.Format,
		"duration":      clip.Stats.Duration.Seconds(),
		"silence_ratio": clip.Stats.SilenceRatio,
		"elapsed_ms":    analysis.Elapsed.Milliseconds(),
	})

	for _, o := range a.observers {
		o.ObserveAnalysis(analysis)
	}
	return analysis, nil
}

func (a *Analyzer) fail(logger logging.Logger, err error, msg string) {
	stage := StageOf(err)
	logger.Error(err, msg, logging.Fields{"stage": stage})
	for _, o := range a.observers {
		o.ObserveError(stage)
	}
}
