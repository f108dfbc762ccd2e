package story

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/logging"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Story sources.
const (
	SourceGroq     = "groq"
	SourceTemplate = "template"
)

// Story is one generated narrative.
type Story struct {
	Emotion string `json:"emotion"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	Source  string `json:"source"`
}

// Generator produces a story themed on an emotion.
type Generator interface {
	Generate(ctx context.Context, emotion string) (*Story, error)
}

type templateSpec struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

type templateFile struct {
	Default  templateSpec            `yaml:"default"`
	Emotions map[string]templateSpec `yaml:"emotions"`
}

type compiled struct {
	title *template.Template
	body  *template.Template
}

// Templates renders offline stories from a YAML template set.
type Templates struct {
	fallback compiled
	emotions map[string]compiled
}

// DefaultTemplates parses the embedded template set.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
}

// ParseTemplates parses a YAML template set. A default entry is required.
func ParseTemplates(data []byte) (*Templates, error) {
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse story templates: %w", err)
	}
	if strings.TrimSpace(tf.Default.Body) == "" {
		return nil, fmt.Errorf("story templates have no default body")
	}

	fallback, err := compile("default", tf.Default)
	if err != nil {
		return nil, err
	}

	t := &Templates{fallback: fallback, emotions: make(map[string]compiled, len(tf.Emotions))}
	for emotion, spec := range tf.Emotions {
		c, err := compile(emotion, spec)
		if err != nil {
			return nil, err
		}
		t.emotions[strings.ToLower(emotion)] = c
	}
	return t, nil
}

func compile(name string, spec templateSpec) (compiled, error) {
	title, err := template.New(name + ".title").Option("missingkey=error").Parse(spec.Title)
	if err != nil {
		return compiled{}, fmt.Errorf("story template %s title: %w", name, err)
	}
	body, err := template.New(name + ".body").Option("missingkey=error").Parse(spec.Body)
	if err != nil {
		return compiled{}, fmt.Errorf("story template %s body: %w", name, err)
	}
	return compiled{title: title, body: body}, nil
}

// Generate renders the template for emotion, or the default template.
func (t *Templates) Generate(_ context.Context, emotion string) (*Story, error) {
	emotion = strings.ToLower(strings.TrimSpace(emotion))
	if emotion == "" {
		return nil, fmt.Errorf("no emotion to write about")
	}

	c, ok := t.emotions[emotion]
	if !ok {
		c = t.fallback
	}

	data := map[string]string{"Emotion": emotion, "Display": cases.Title(language.English).String(emotion)}

	var title, body bytes.Buffer
	if err := c.title.Execute(&title, data); err != nil {
		return nil, err
	}
	if err := c.body.Execute(&body, data); err != nil {
		return nil, err
	}

	return &Story{
		Emotion: emotion,
		Title:   title.String(),
		Text:    strings.TrimSpace(body.String()),
		Source:  SourceTemplate,
	}, nil
}

// Service prefers Groq and falls back to the offline templates.
type Service struct {
	remote    Generator
	templates *Templates
	logger    logging.Logger
}

// NewService builds the generator chain for cfg. Groq is used only when an API key is set.
func NewService(cfg configs.StoryConfig) (*Service, error) {
	templates, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}

	var remote Generator
	if cfg.GroqAPIKey != "" {
		remote = NewGroqClient(cfg)
	}
	return NewServiceWith(remote, templates), nil
}

// NewServiceWith wires explicit generators; remote may be nil.
func NewServiceWith(remote Generator, templates *Templates) *Service {
	return &Service{
		remote:    remote,
		templates: templates,
		logger: logging.WithFields(logging.Fields{
			"component": "story_generator",
		}),
	}
}

// Generate returns a remote story when possible, otherwise a template story.
func (s *Service) Generate(ctx context.Context, emotion string) (*Story, error) {
	if s.remote != nil {
		story, err := s.remote.Generate(ctx, emotion)
		if err == nil {
			return story, nil
		}
		s.logger.Warn("Remote story generation failed, using template", logging.Fields{
			"function": "Generate",
			"emotion":  emotion,
			"error":    err.Error(),
		})
	}
	return s.templates.Generate(ctx, emotion)
}
