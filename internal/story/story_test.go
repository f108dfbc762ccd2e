package story

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/magictales/configs"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesDefault(t *testing.T) {
	templates, err := DefaultTemplates()
	require.NoError(t, err)

	story, err := templates.Generate(context.Background(), "Calm")
	require.NoError(t, err)

	assert.Equal(t, "calm", story.Emotion)
	assert.Equal(t, SourceTemplate, story.Source)
	assert.Equal(t, "The Calm Traveler of Magictales", story.Title)
	assert.Contains(t, story.Text, "there lived a calm traveler")
	assert.NotContains(t, story.Text, "{{")
	assert.Greater(t, strings.Count(story.Text, ". "), 10)
}

func TestTemplatesPerEmotion(t *testing.T) {
	templates, err := DefaultTemplates()
	require.NoError(t, err)

	for _, emotion := range []string{"happy", "sad", "fear"} {
		story, err := templates.Generate(context.Background(), emotion)
		require.NoError(t, err)
		assert.NotContains(t, story.Title, "Traveler", emotion)
		assert.NotEmpty(t, story.Text)
	}
}

func TestTemplatesRejectEmpty(t *testing.T) {
	templates, err := DefaultTemplates()
	require.NoError(t, err)

	_, err = templates.Generate(context.Background(), "  ")
	assert.Error(t, err)
}

func TestParseTemplatesRequiresDefault(t *testing.T) {
	_, err := ParseTemplates([]byte("emotions:\n  happy:\n    body: hi\n"))
	assert.Error(t, err)

	_, err = ParseTemplates([]byte("default:\n  body: \"{{.Emotion\"\n"))
	assert.Error(t, err)
}

func TestSplitTitle(t *testing.T) {
	title, text := splitTitle("# The Brave Fox\n\nOnce upon a time.")
	assert.Equal(t, "The Brave Fox", title)
	assert.Equal(t, "Once upon a time.", text)

	title, text = splitTitle("Title: **Moonlight**\nThe end.")
	assert.Equal(t, "Moonlight", title)
	assert.Equal(t, "The end.", text)

	title, text = splitTitle("Only one line.")
	assert.Empty(t, title)
	assert.Equal(t, "Only one line.", text)
}

func groqConfig(url string) configs.StoryConfig {
	return configs.StoryConfig{
		GroqAPIKey:  "test-key",
		GroqBaseURL: url,
		GroqModel:   "llama-test",
		Temperature: 0.5,
		MaxTokens:   256,
		Timeout:     2 * time.Second,
	}
}

func TestGroqClient(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The Quiet Lake\nA story about a sad heron."}}]}`))
	}))
	defer srv.Close()

	story, err := NewGroqClient(groqConfig(srv.URL)).Generate(context.Background(), "sad")
	require.NoError(t, err)

	assert.Equal(t, SourceGroq, story.Source)
	assert.Equal(t, "The Quiet Lake", story.Title)
	assert.Equal(t, "A story about a sad heron.", story.Text)

	assert.Equal(t, "llama-test", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "feeling sad")
}

func TestGroqClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/unauthorized"):
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
		case strings.HasPrefix(r.URL.Path, "/empty"):
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	_, err := NewGroqClient(groqConfig(srv.URL+"/unauthorized")).Generate(context.Background(), "angry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Contains(t, err.Error(), "401")

	_, err = NewGroqClient(groqConfig(srv.URL+"/empty")).Generate(context.Background(), "angry")
	assert.Error(t, err)

	_, err = NewGroqClient(groqConfig(srv.URL+"/garbage")).Generate(context.Background(), "angry")
	assert.Error(t, err)
}

func TestServiceFallsBackToTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, err := NewService(groqConfig(srv.URL))
	require.NoError(t, err)

	story, err := svc.Generate(context.Background(), "disgust")
	require.NoError(t, err)
	assert.Equal(t, SourceTemplate, story.Source)
	assert.Contains(t, story.Text, "disgust traveler")
}

func TestServiceWithoutKeyUsesTemplate(t *testing.T) {
	svc, err := NewService(configs.StoryConfig{})
	require.NoError(t, err)
	assert.Nil(t, svc.remote)

	story, err := svc.Generate(context.Background(), "happy")
	require.NoError(t, err)
	assert.Equal(t, SourceTemplate, story.Source)
}
