package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/RyanBlaney/magictales/algorithms/common"
	"github.com/RyanBlaney/magictales/algorithms/spectral"
	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/emotion"
	"github.com/RyanBlaney/magictales/internal/mail"
	"github.com/RyanBlaney/magictales/internal/report"
	"github.com/RyanBlaney/magictales/internal/server"
	"github.com/RyanBlaney/magictales/internal/store"
	"github.com/RyanBlaney/magictales/internal/story"
	"github.com/RyanBlaney/magictales/internal/telemetry"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/RyanBlaney/magictales/transcode"
)

// App owns the long-lived services built from one configuration.
type App struct {
	Config     *configs.Config
	Store      *store.Store
	Extractor  *emotion.Extractor
	Classifier emotion.Classifier
	// ModelErr is why the trained model was not used, or nil.
	ModelErr error
	Metrics  *telemetry.Metrics

	observers []emotion.Observer
	logger    logging.Logger
}

// New opens the stores and builds the analysis pipeline. A missing or broken
// model artifact is not an error: the fallback classifier is used and the
// reason kept in ModelErr.
func New(cfg *configs.Config) (*App, error) {
	if err := configs.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "app",
	})

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	extractor, err := NewExtractor(cfg.Audio)
	if err != nil {
		return nil, err
	}

	classifier, modelErr := emotion.LoadClassifier(cfg.Model.Path)

	a := &App{
		Config:     cfg,
		Store:      st,
		Extractor:  extractor,
		Classifier: classifier,
		ModelErr:   modelErr,
		Metrics:    telemetry.NewMetrics(),
		logger:     logger,
	}
	a.observers = append(a.observers, a.Metrics)
	if cfg.Telemetry.Enabled {
		a.observers = append(a.observers, telemetry.NewCollector(cfg.Telemetry))
	}

	logger.Info("Application initialized", logging.Fields{
		"data_dir":   cfg.Storage.DataDir,
		"classifier": classifier.Variant(),
		"telemetry":  cfg.Telemetry.Enabled,
	})
	return a, nil
}

// NewExtractor maps the audio section onto the decoder, normalizer and extractor.
func NewExtractor(cfg configs.AudioConfig) (*emotion.Extractor, error) {
	decoderCfg := transcode.DefaultDecoderConfig()
	decoderCfg.TargetSampleRate = emotion.SampleRate
	if cfg.FFmpegPath != "" {
		decoderCfg.FFmpegPath = cfg.FFmpegPath
	}
	decoderCfg.FFprobePath = cfg.FFprobePath
	if cfg.Timeout > 0 {
		decoderCfg.Timeout = cfg.Timeout
	}
	decoderCfg.MaxDuration = cfg.MaxDuration

	padMode, err := spectral.ParsePadMode(cfg.PadMode)
	if err != nil {
		return nil, err
	}
	quality, err := common.ParseResampleQuality(cfg.Resample)
	if err != nil {
		return nil, err
	}

	ec := emotion.DefaultExtractorConfig()
	ec.PadMode = padMode
	ec.Resample = quality
	if cfg.FFTSize > 0 {
		ec.FFTSize = cfg.FFTSize
	}
	if cfg.HopSize > 0 {
		ec.HopSize = cfg.HopSize
	}
	if cfg.MelBins > 0 {
		ec.NumMelFilters = cfg.MelBins
	}
	if cfg.TopDB > 0 {
		ec.TopDB = cfg.TopDB
	}
	if cfg.SilenceFloor > 0 {
		ec.SilenceFloor = cfg.SilenceFloor
	}

	return emotion.NewExtractor(ec, transcode.NewNormalizer(transcode.NewDecoder(decoderCfg)))
}

// Analyzer returns a pipeline over the shared classifier. With record set,
// every label is counted in the emotion analytics store.
func (a *App) Analyzer(record bool) *emotion.Analyzer {
	opts := make([]emotion.Option, 0, len(a.observers)+1)
	if record {
		opts = append(opts, emotion.WithRecorder(a.Store.Emotions))
	}
	for _, o := range a.observers {
		opts = append(opts, emotion.WithObserver(o))
	}
	return emotion.NewAnalyzer(a.Extractor, a.Classifier, opts...)
}

// Server builds the web application.
func (a *App) Server() (*server.Server, error) {
	stories, err := story.NewService(a.Config.Story)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.Config.Storage.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return server.New(server.Deps{
		Config:       a.Config,
		Store:        a.Store,
		Analyzer:     a.Analyzer(true),
		Stories:      stories,
		Reporter:     report.New(a.Store.Users, a.Store.Emotions, a.Store.Stories),
		Mailer:       mail.NewResetMailer(a.Config.Mail, a.Config.Storage.DataDir),
		SessionStore: server.NewSessionStore(a.Config.Auth),
		Registry:     a.Metrics.Registry,
	})
}

// Serve runs the web application until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return err
	}
	if a.ModelErr != nil && !errors.Is(a.ModelErr, os.ErrNotExist) {
		a.logger.Warn("Serving with fallback classifier", logging.Fields{"reason": a.ModelErr.Error()})
	}
	return srv.Run(ctx)
}
