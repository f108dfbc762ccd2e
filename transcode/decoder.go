package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/magictales/logging"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64      `json:"-"` // interleaved samples in [-1, 1]
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Duration   time.Duration  `json:"duration"`
	Timestamp  time.Time      `json:"timestamp"`
	Codec      string         `json:"codec"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// Frames returns the number of samples per channel.
func (a *AudioData) Frames() int {
	if a == nil || a.Channels <= 0 {
		return 0
	}
	return len(a.PCM) / a.Channels
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path"` // empty: ffprobe next to FFmpegPath
	Timeout          time.Duration `json:"timeout"`      // per ffmpeg/ffprobe invocation
}

// DefaultDecoderConfig returns mono 22050 Hz output with a 30 s ffmpeg timeout.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 22050,
		TargetChannels:   1,
		MaxDuration:      0, // no limit
		FFmpegPath:       "ffmpeg",
		Timeout:          30 * time.Second,
	}
}

// Decoder runs ffmpeg and ffprobe as subprocesses.
type Decoder struct {
	config *DecoderConfig
}

// AudioMetadata holds detected audio properties from ffprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// Config returns the decoder configuration.
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// FFprobePath is the configured ffprobe, or the ffprobe that sits in the same
// directory as FFmpegPath. A bare ffmpeg name maps to a bare "ffprobe".
func (d *Decoder) FFprobePath() string {
	if d.config.FFprobePath != "" {
		return d.config.FFprobePath
	}
	dir, base := filepath.Split(d.config.FFmpegPath)
	name := "ffprobe" + filepath.Ext(base)
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Available reports whether the configured ffmpeg binary can be found.
func (d *Decoder) Available() bool {
	_, err := exec.LookPath(d.config.FFmpegPath)
	return err == nil
}

// DecodeFile pipes any ffmpeg-readable file through ffmpeg as float64 PCM at
// the target rate and channel count.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	if !d.Available() {
		return nil, fmt.Errorf("%w: %s not found", ErrDecodeUnavailable, d.config.FFmpegPath)
	}

	metadata, err := d.Probe(ctx, filename)
	if err != nil {
		logger.Warn("Probe failed, decoding without metadata", logging.Fields{"error": err.Error()})
		metadata = &AudioMetadata{}
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args := append([]string{"-v", "error", "-i", filename}, d.buildFFmpegArgs()...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	start := time.Now()
	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	frames := len(samples) / d.config.TargetChannels

	logger.Debug("ffmpeg decode completed", logging.Fields{
		"input_codec":       metadata.Codec,
		"input_sample_rate": metadata.SampleRate,
		"output_samples":    len(samples),
		"decode_time":       time.Since(start).Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   d.config.TargetChannels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(d.config.TargetSampleRate),
		Timestamp:  time.Now(),
		Codec:      metadata.Codec,
		Metadata:   metadata,
	}, nil
}

// ConvertToWAV re-encodes the first audio stream of src into a 16-bit PCM WAV
// at dst, using the target rate and channel count.
func (d *Decoder) ConvertToWAV(ctx context.Context, src, dst string) error {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "ConvertToWAV",
		"src":       src,
		"dst":       dst,
	})

	if !d.Available() {
		return fmt.Errorf("%w: %s not found", ErrDecodeUnavailable, d.config.FFmpegPath)
	}

	kwargs := ffmpeg.KwArgs{
		"map":    "0:a:0",
		"acodec": "pcm_s16le",
		"ac":     d.config.TargetChannels,
		"ar":     d.config.TargetSampleRate,
		"f":      "wav",
	}
	if d.config.MaxDuration > 0 {
		kwargs["t"] = fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds())
	}

	args := ffmpeg.Input(src).Output(dst, kwargs).OverWriteOutput().GetArgs()
	args = append([]string{"-v", "error"}, args...)

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	logger.Debug("Running ffmpeg conversion", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := exec.CommandContext(ctx, d.config.FFmpegPath, args...).CombinedOutput()
	if err != nil {
		logger.Error(err, "ffmpeg conversion failed", logging.Fields{
			"output": string(output),
		})
		return fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

// Probe reads the first audio stream's properties with ffprobe.
func (d *Decoder) Probe(ctx context.Context, filename string) (*AudioMetadata, error) {
	ffprobe := d.FFprobePath()
	if _, err := exec.LookPath(ffprobe); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrDecodeUnavailable, ffprobe)
	}

	timeout := d.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("ffprobe skipped: %w", context.DeadlineExceeded)
	}

	args := ffmpeg.ConvertKwargsToCmdLineArgs(ffmpeg.KwArgs{
		"v":              "error",
		"show_format":    "",
		"show_streams":   "",
		"of":             "json",
		"select_streams": "a:0",
	})
	args = append(args, filename)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobe, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseFFprobeOutput(stdout.Bytes())
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

type probeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	Duration      string `json:"duration"`
	BitRate       string `json:"bit_rate"`
	CodecLongName string `json:"codec_long_name"`
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []probeStream `json:"streams"`
		Format  struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var stream *probeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "audio" {
			stream = &probe.Streams[i]
			break
		}
	}
	if stream == nil {
		return nil, fmt.Errorf("no audio streams found")
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	sampleRate, _ := strconv.Atoi(stream.SampleRate)
	bitrate, _ := strconv.Atoi(stream.BitRate)

	// webm and mp4 often carry the duration only at container level
	durationStr := stream.Duration
	if durationStr == "" || durationStr == "N/A" {
		durationStr = probe.Format.Duration
	}
	duration, _ := strconv.ParseFloat(durationStr, 64)

	format := probe.Format.FormatName
	if format == "" {
		format = stream.CodecLongName
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     format,
	}, nil
}

// buildFFmpegArgs builds the raw-PCM output arguments
func (d *Decoder) buildFFmpegArgs() []string {
	args := []string{
		"-map", "0:a:0",
		"-vn",
		"-f", "f64le",
		"-ac", strconv.Itoa(d.config.TargetChannels),
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return args
}

// bytesToFloat64 converts raw little-endian float64 bytes to samples
func bytesToFloat64(data []byte) []float64 {
	data = data[:len(data)-(len(data)%8)]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	if d.config.TargetChannels <= 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 1 and 8: %d", d.config.TargetChannels)
	}

	if d.config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %v", d.config.Timeout)
	}

	if d.config.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg path must not be empty")
	}

	return nil
}
