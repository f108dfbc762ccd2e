package emotion

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/RyanBlaney/magictales/logging"
)

// Classifier variant names.
const (
	VariantModel    = "model"
	VariantFallback = "fallback"
)

// Classifier maps a feature matrix to one label.
type Classifier interface {
	Classify(features FeatureMatrix) (Label, error)
	Variant() string
}

// Fallback is a deterministic placeholder used when no trained model is
// available. It is not an emotion classifier: the label index is
// floor(|mean*100|) mod 8.
type Fallback struct{}

// NewFallback returns the fallback classifier.
func NewFallback() *Fallback {
	return &Fallback{}
}

func (f *Fallback) Classify(features FeatureMatrix) (Label, error) {
	if err := features.Validate(); err != nil {
		return "", err
	}

	mean := features.Mean()
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return "", fmt.Errorf("feature mean is not finite: %v", mean)
	}

	index := int(math.Mod(math.Floor(math.Abs(mean*100)), NumLabels))
	return Labels[index], nil
}

func (f *Fallback) Variant() string {
	return VariantFallback
}

// Model classifies with a trained network by arg-max over its scores.
type Model struct {
	network *Network
}

// NewModel wraps a compiled network.
func NewModel(network *Network) *Model {
	return &Model{network: network}
}

// Classify runs the matrix as a batch of one and returns the highest-scoring label.
// Ties resolve to the lowest index.
func (m *Model) Classify(features FeatureMatrix) (Label, error) {
	scores, err := m.Scores(features)
	if err != nil {
		return "", err
	}
	return Labels[argmax(scores)], nil
}

// Scores returns the raw network output for one matrix.
func (m *Model) Scores(features FeatureMatrix) ([]float64, error) {
	out, err := m.network.Forward([]FeatureMatrix{features})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *Model) Variant() string {
	return VariantModel
}

// Network exposes the compiled network.
func (m *Model) Network() *Network {
	return m.network
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// LoadModel reads and compiles the artifact at path.
func LoadModel(path string) (*Model, error) {
	mf, err := ReadModelFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	network, err := NewNetwork(mf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return NewModel(network), nil
}

// LoadClassifier returns the model variant when the artifact at path loads,
// otherwise the fallback variant together with the reason wrapped in
// ErrModelLoad. The returned classifier is never nil.
func LoadClassifier(path string) (Classifier, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "emotion_classifier",
		"function":  "LoadClassifier",
		"path":      path,
	})

	if path == "" {
		return NewFallback(), fmt.Errorf("%w: no model path configured", ErrModelLoad)
	}

	model, err := LoadModel(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("No model artifact found, using fallback classifier")
		} else {
			logger.Warn("Model artifact unusable, using fallback classifier", logging.Fields{
				"error": err.Error(),
			})
		}
		return NewFallback(), err
	}

	info := model.Network().Info()
	logger.Info("Loaded emotion model", logging.Fields{
		"name":       info.Name,
		"layers":     len(info.Layers),
		"parameters": info.Parameters,
	})
	return model, nil
}
