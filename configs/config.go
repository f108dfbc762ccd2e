package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/RyanBlaney/magictales/algorithms/common"
	"github.com/RyanBlaney/magictales/algorithms/spectral"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MAGICTALES_SERVER_ADDR.
const EnvPrefix = "MAGICTALES"

var envReplacer = strings.NewReplacer("-", "_", ".", "_")

// BindEnv makes v read MAGICTALES_* environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
}

// Config represents the application configuration
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Model     ModelConfig     `mapstructure:"model"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Story     StoryConfig     `mapstructure:"story"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	// BaseURL overrides the scheme and host used in password reset links.
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig contains on-disk locations
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"`
}

// AudioConfig contains audio decoding and feature settings
type AudioConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	// FFprobePath defaults to the ffprobe next to FFmpegPath.
	FFprobePath  string        `mapstructure:"ffprobe_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	Resample     string        `mapstructure:"resample"`
	PadMode      string        `mapstructure:"pad_mode"`
	FFTSize      int           `mapstructure:"fft_size"`
	HopSize      int           `mapstructure:"hop_size"`
	MelBins      int           `mapstructure:"mel_bins"`
	TopDB        float64       `mapstructure:"top_db"`
	SilenceFloor float64       `mapstructure:"silence_floor"`
}

// ModelConfig points at the classifier artifact
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig contains admin credentials and token lifetimes
type AuthConfig struct {
	AdminUsername string        `mapstructure:"admin_username"`
	AdminPassword string        `mapstructure:"admin_password"`
	ResetTokenTTL time.Duration `mapstructure:"reset_token_ttl"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	// SessionSecret signs session ids; empty means a random key per process.
	SessionSecret string `mapstructure:"session_secret"`
}

// MailConfig contains SMTP settings; an empty host disables sending
type MailConfig struct {
	SMTPHost string        `mapstructure:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port"`
	SMTPUser string        `mapstructure:"smtp_user"`
	SMTPPass string        `mapstructure:"smtp_pass"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether every SMTP field needed to send is present.
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != "" && m.SMTPPort > 0 && m.SMTPUser != "" && m.SMTPPass != "" && m.Sender() != ""
}

// Sender is From, or the SMTP user when From is empty.
func (m MailConfig) Sender() string {
	if m.From != "" {
		return m.From
	}
	return m.SMTPUser
}

// StoryConfig contains story generation settings
type StoryConfig struct {
	GroqAPIKey string `mapstructure:"groq_api_key"`
	// GroqBaseURL is the OpenAI-compatible API root; /chat/completions is appended.
	GroqBaseURL string        `mapstructure:"groq_base_url"`
	GroqModel   string        `mapstructure:"groq_model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig controls statsd-style metrics
type TelemetryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	LogFile string   `mapstructure:"log_file"`
	Tags    []string `mapstructure:"tags"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("server.base_url", "")

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.upload_dir", "uploads")

	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("audio.ffprobe_path", "")
	v.SetDefault("audio.timeout", 30*time.Second)
	v.SetDefault("audio.max_duration", time.Duration(0))
	v.SetDefault("audio.resample", "sinc")
	v.SetDefault("audio.pad_mode", "constant")
	v.SetDefault("audio.fft_size", 2048)
	v.SetDefault("audio.hop_size", 512)
	v.SetDefault("audio.mel_bins", 128)
	v.SetDefault("audio.top_db", 80.0)
	v.SetDefault("audio.silence_floor", 0.001)

	v.SetDefault("model.path", "models/ser_model.json")

	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("auth.reset_token_ttl", time.Hour)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.session_secret", "")

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.smtp_user", "")
	v.SetDefault("mail.smtp_pass", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.timeout", 15*time.Second)

	v.SetDefault("story.groq_api_key", "")
	v.SetDefault("story.groq_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("story.groq_model", "llama-3.1-8b-instant")
	v.SetDefault("story.temperature", 0.8)
	v.SetDefault("story.max_tokens", 700)
	v.SetDefault("story.timeout", 20*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.log_file", "/tmp/magictales-metrics.log")
	v.SetDefault("telemetry.tags", []string{"service:magictales"})
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	config := &Config{}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	config := &Config{}
	_ = v.Unmarshal(config)
	return config
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return err
	}

	if config.Server.Addr == "" {
		return fmt.Errorf("server address must not be empty")
	}

	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	if config.Storage.DataDir == "" || config.Storage.UploadDir == "" {
		return fmt.Errorf("data and upload directories must be set")
	}

	if config.Audio.Timeout <= 0 {
		return fmt.Errorf("audio timeout must be positive")
	}

	if config.Audio.FFTSize <= 0 || config.Audio.HopSize <= 0 {
		return fmt.Errorf("fft size and hop size must be positive")
	}

	if _, err := spectral.ParsePadMode(config.Audio.PadMode); err != nil {
		return fmt.Errorf("invalid audio.pad_mode: %w", err)
	}

	if _, err := common.ParseResampleQuality(config.Audio.Resample); err != nil {
		return fmt.Errorf("invalid audio.resample: %w", err)
	}

	if config.Auth.AdminUsername == "" || config.Auth.AdminPassword == "" {
		return fmt.Errorf("admin credentials must be set")
	}

	if config.Mail.Enabled() && config.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url must be set when mail.smtp_host is configured")
	}

	if config.Auth.ResetTokenTTL < 0 {
		return fmt.Errorf("reset token ttl cannot be negative")
	}

	if config.Story.Temperature < 0 || config.Story.Temperature > 2 {
		return fmt.Errorf("story temperature must be between 0 and 2")
	}

	return nil
}
