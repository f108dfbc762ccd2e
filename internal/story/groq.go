package story

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/RyanBlaney/magictales/configs"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a gentle storyteller for the MagicTales app. Write vivid, kind, family-friendly short stories."

// GroqClient calls Groq's OpenAI-compatible chat completions endpoint.
type GroqClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewGroqClient creates a client from cfg.
func NewGroqClient(cfg configs.StoryConfig) *GroqClient {
	oc := openai.DefaultConfig(cfg.GroqAPIKey)
	if cfg.GroqBaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.GroqBaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &GroqClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.GroqModel,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

// Prompt is the user message sent for emotion.
func Prompt(emotion string) string {
	return fmt.Sprintf("Write an original fairy tale of at least 15 sentences for a listener who is feeling %s. "+
		"Set it in the enchanted land of Magictales, let the main character feel %s, "+
		"and end on a hopeful note. Start with a short title on its own line.", emotion, emotion)
}

func (g *GroqClient) Generate(ctx context.Context, emotion string) (*Story, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(emotion)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("groq %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("groq: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, errors.New("groq returned no story")
	}

	title, text := splitTitle(resp.Choices[0].Message.Content)
	return &Story{Emotion: emotion, Title: title, Text: text, Source: SourceGroq}, nil
}

// splitTitle separates a leading title line ("Title: ..." or "# ...") from the story.
func splitTitle(content string) (string, string) {
	content = strings.TrimSpace(content)
	first, rest, found := strings.Cut(content, "\n")
	if !found {
		return "", content
	}

	title := strings.TrimSpace(first)
	title = strings.TrimLeft(title, "#* ")
	title = strings.TrimPrefix(title, "Title:")
	title = strings.Trim(strings.TrimSpace(title), `*"`)
	if title == "" || len(title) > 120 {
		return "", content
	}
	return title, strings.TrimSpace(rest)
}
