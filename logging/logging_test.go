package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLoggerLevelsAndFields(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewWriterLogger(&stdout, &stderr, false)

	child := logger.WithFields(Fields{"component": "analyzer"})
	child.Debug("hidden")
	child.Info("classified", Fields{"label": "happy"})
	child.Error(errors.New("disk full"), "analytics write failed")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "[INFO] classified component=analyzer label=happy")
	assert.Contains(t, stderr.String(), "[ERROR] analytics write failed: disk full component=analyzer")

	// level is shared with children
	logger.SetLevel(DebugLevel)
	child.Debug("visible now")
	assert.Contains(t, stdout.String(), "[DEBUG] visible now")
}

func TestWithContextFields(t *testing.T) {
	var stdout bytes.Buffer
	logger := NewWriterLogger(&stdout, &stdout, false)

	ctx := ContextWithFields(context.Background(), Fields{"request_id": "r-1"})
	ctx = ContextWithFields(ctx, Fields{"user": "alice"})

	logger.WithContext(ctx).Info("upload received")
	assert.Contains(t, stdout.String(), "request_id=r-1 user=alice")

	_, ok := FieldsFromContext(context.Background())
	assert.False(t, ok)
}
