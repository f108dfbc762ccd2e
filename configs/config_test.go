package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "models/ser_model.json", cfg.Model.Path)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, 2048, cfg.Audio.FFTSize)
	assert.Equal(t, 512, cfg.Audio.HopSize)
	assert.Equal(t, 30*time.Second, cfg.Audio.Timeout)
	assert.False(t, cfg.Mail.Enabled())
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magictales.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
server:
  addr: ":8080"
  base_url: https://tales.example.com
audio:
  timeout: 5s
  pad_mode: Reflect
  resample: LINEAR
mail:
  smtp_host: smtp.example.com
  smtp_user: tales@example.com
  smtp_pass: secret
`), 0o644))

	t.Setenv("MAGICTALES_STORY_GROQ_API_KEY", "gsk_test")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	BindEnv(v)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Audio.Timeout)
	assert.Equal(t, "Reflect", cfg.Audio.PadMode)
	assert.Equal(t, "LINEAR", cfg.Audio.Resample)
	assert.Equal(t, "gsk_test", cfg.Story.GroqAPIKey)
	assert.True(t, cfg.Mail.Enabled())
	assert.Equal(t, "tales@example.com", cfg.Mail.Sender())
	// untouched keys keep defaults
	assert.Equal(t, 512, cfg.Audio.HopSize)
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"no timeout", func(c *Config) { c.Audio.Timeout = 0 }},
		{"bad pad mode", func(c *Config) { c.Audio.PadMode = "edge" }},
		{"bad resample", func(c *Config) { c.Audio.Resample = "soxr" }},
		{"smtp without base url", func(c *Config) {
			c.Mail.SMTPHost = "smtp.example.com"
			c.Mail.SMTPUser = "tales@example.com"
			c.Mail.SMTPPass = "secret"
		}},
		{"no admin password", func(c *Config) { c.Auth.AdminPassword = "" }},
		{"hot temperature", func(c *Config) { c.Story.Temperature = 3 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestValidateConfigAcceptsMixedCaseAudioModes(t *testing.T) {
	cfg := Default()
	cfg.Audio.PadMode = "Reflect"
	cfg.Audio.Resample = "Linear"
	assert.NoError(t, ValidateConfig(cfg))
}
