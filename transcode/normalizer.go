package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/RyanBlaney/magictales/logging"
)

// SupportedExtensions lists every upload extension the pipeline accepts.
var SupportedExtensions = []string{"wav", "mp3", "ogg", "flac", "webm", "m4a", "mp4"}

// containerExtensions always go through ffmpeg; the rest decode natively.
var containerExtensions = []string{"webm", "m4a", "mp4"}

// ConvertedSuffix is appended to the base name of re-encoded intermediates.
const ConvertedSuffix = "_converted.wav"

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsSupported reports whether filename has an accepted extension.
func IsSupported(filename string) bool {
	return slices.Contains(SupportedExtensions, Extension(filename))
}

// Source is a decodable waveform produced by Normalize.
// Close must be called on every path; it removes the intermediate file if one was written.
type Source struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Original  string `json:"original"`
	Converted bool   `json:"converted"`

	decoder *Decoder
}

// Decode reads the source into interleaved PCM at its native rate.
// Native decoder failures retry through ffmpeg when it is installed.
func (s *Source) Decode(ctx context.Context) (*AudioData, error) {
	data, err := DecodeNative(s.Path, s.Format)
	if err == nil {
		return data, nil
	}

	if s.decoder == nil || !s.decoder.Available() {
		return nil, err
	}

	logging.WithFields(logging.Fields{
		"component": "audio_normalizer",
		"function":  "Decode",
		"path":      s.Path,
	}).Warn("Native decode failed, retrying with ffmpeg", logging.Fields{"error": err.Error()})

	return s.decoder.DecodeFile(ctx, s.Path)
}

// Close removes the intermediate file, if any. Safe to call more than once.
func (s *Source) Close() error {
	if s == nil || !s.Converted {
		return nil
	}
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove intermediate file: %w", err)
	}

	logging.WithFields(logging.Fields{
		"component": "audio_normalizer",
		"function":  "Close",
	}).Debug("Removed intermediate file", logging.Fields{"path": s.Path})
	return nil
}

// Normalizer maps uploads onto something the native decoders can read.
type Normalizer struct {
	decoder *Decoder
}

// NewNormalizer creates a normalizer that converts through decoder.
func NewNormalizer(decoder *Decoder) *Normalizer {
	if decoder == nil {
		decoder = NewDecoder(nil)
	}
	return &Normalizer{decoder: decoder}
}

// Decoder returns the ffmpeg decoder used for conversion.
func (n *Normalizer) Decoder() *Decoder {
	return n.decoder
}

// Normalize inspects path by its declared extension and returns a decodable source.
// wav, mp3 and flac pass through. ogg passes through when it holds Vorbis.
// webm, m4a, mp4 and non-Vorbis ogg are re-encoded to <base>_converted.wav next
// to the original; without ffmpeg that fails with ErrDecodeUnavailable.
func (n *Normalizer) Normalize(ctx context.Context, path, ext string) (*Source, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_normalizer",
		"function":  "Normalize",
		"path":      path,
		"extension": ext,
	})

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !slices.Contains(SupportedExtensions, ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	needsConversion := slices.Contains(containerExtensions, ext) || (ext == "ogg" && !IsVorbis(path))
	if !needsConversion {
		logger.Debug("Passing through natively decodable file")
		return &Source{Path: path, Format: ext, Original: path, decoder: n.decoder}, nil
	}

	converted := strings.TrimSuffix(path, filepath.Ext(path)) + ConvertedSuffix
	if err := n.decoder.ConvertToWAV(ctx, path, converted); err != nil {
		// ffmpeg may leave a partial file behind
		_ = os.Remove(converted)
		return nil, err
	}

	logger.Debug("Converted to intermediate WAV", logging.Fields{"converted": converted})

	return &Source{
		Path:      converted,
		Format:    "wav",
		Original:  path,
		Converted: true,
		decoder:   n.decoder,
	}, nil
}
