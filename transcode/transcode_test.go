package transcode

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTone(t *testing.T, path string, sr, channels int, seconds float64) []float64 {
	t.Helper()
	n := int(float64(sr) * seconds)
	samples := make([]float64, n*channels)
	for i := 0; i < n; i++ {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sr))
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}
	require.NoError(t, WriteWAV(path, samples, sr, channels))
	return samples
}

func missingFFmpeg() *Decoder {
	cfg := DefaultDecoderConfig()
	cfg.FFmpegPath = "/nonexistent/ffmpeg-binary"
	return NewDecoder(cfg)
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	want := writeTone(t, path, 22050, 2, 0.5)

	data, err := DecodeNative(path, "wav")
	require.NoError(t, err)

	assert.Equal(t, 22050, data.SampleRate)
	assert.Equal(t, 2, data.Channels)
	assert.Equal(t, "wav", data.Codec)
	require.Len(t, data.PCM, len(want))
	assert.Equal(t, len(want)/2, data.Frames())

	for i := range want {
		assert.InDelta(t, want[i], data.PCM[i], 1.0/16384)
	}
}

func TestDecodeNativeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF"), 0o644))

	_, err := DecodeNative(path, "wav")
	assert.Error(t, err)

	_, err = DecodeNative(path, "webm")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseFFprobeOutput(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "vp9"},
			{"codec_type": "audio", "codec_name": "opus", "sample_rate": "48000", "channels": 1, "duration": "N/A"}
		],
		"format": {"format_name": "matroska,webm", "duration": "3.240000"}
	}`)

	meta, err := parseFFprobeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "opus", meta.Codec)
	assert.Equal(t, 48000, meta.SampleRate)
	assert.Equal(t, 1, meta.Channels)
	assert.InDelta(t, 3.24, meta.Duration, 1e-9)
	assert.Equal(t, "matroska,webm", meta.Format)

	_, err = parseFFprobeOutput([]byte(`{"streams": [{"codec_type": "video"}]}`))
	assert.Error(t, err)

	_, err = parseFFprobeOutput([]byte(`not json`))
	assert.Error(t, err)
}

func TestBytesToFloat64(t *testing.T) {
	buf := make([]byte, 8*3+5)
	for i, v := range []float64{0.25, -1, 0.5} {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}

	assert.Equal(t, []float64{0.25, -1, 0.5}, bytesToFloat64(buf))
	assert.Nil(t, bytesToFloat64([]byte{1, 2, 3}))
}

func TestBuildFFmpegArgs(t *testing.T) {
	d := NewDecoder(nil)
	assert.Equal(t, []string{"-map", "0:a:0", "-vn", "-f", "f64le", "-ac", "1", "-ar", "22050"}, d.buildFFmpegArgs())
	assert.NoError(t, d.ValidateConfig())

	bad := NewDecoder(&DecoderConfig{TargetSampleRate: 0, TargetChannels: 1, Timeout: 1, FFmpegPath: "ffmpeg"})
	assert.Error(t, bad.ValidateConfig())
}

func TestSupportedExtensions(t *testing.T) {
	for _, name := range []string{"a.wav", "b.MP3", "c.ogg", "d.flac", "e.webm", "f.m4a", "g.mp4"} {
		assert.True(t, IsSupported(name), name)
	}
	for _, name := range []string{"a.txt", "b", "c.aiff", "d.wav.exe"} {
		assert.False(t, IsSupported(name), name)
	}
	assert.Equal(t, "mp3", Extension("/tmp/Voice.MP3"))
}

func TestNormalizePassThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTone(t, path, 16000, 1, 0.25)

	n := NewNormalizer(missingFFmpeg())
	src, err := n.Normalize(context.Background(), path, "WAV")
	require.NoError(t, err)
	assert.False(t, src.Converted)
	assert.Equal(t, path, src.Path)

	data, err := src.Decode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16000, data.SampleRate)

	require.NoError(t, src.Close())
	assert.FileExists(t, path, "pass-through sources must not delete the upload")
}

func TestNormalizeRejectsUnknownExtension(t *testing.T) {
	n := NewNormalizer(missingFFmpeg())
	_, err := n.Normalize(context.Background(), "/tmp/x.aiff", "aiff")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalizeWithoutFFmpeg(t *testing.T) {
	dir := t.TempDir()
	n := NewNormalizer(missingFFmpeg())

	for _, ext := range []string{"webm", "m4a", "mp4", "ogg"} {
		path := filepath.Join(dir, "upload."+ext)
		require.NoError(t, os.WriteFile(path, []byte("OggS not really"), 0o644))

		_, err := n.Normalize(context.Background(), path, ext)
		assert.ErrorIs(t, err, ErrDecodeUnavailable, ext)
		assert.NoFileExists(t, filepath.Join(dir, "upload"+ConvertedSuffix))
	}
}

func TestSourceCloseRemovesIntermediate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload"+ConvertedSuffix)
	writeTone(t, path, 22050, 1, 0.1)

	src := &Source{Path: path, Format: "wav", Converted: true}
	require.NoError(t, src.Close())
	assert.NoFileExists(t, path)

	// second close is a no-op
	assert.NoError(t, src.Close())

	var nilSource *Source
	assert.NoError(t, nilSource.Close())
}

func TestConvertToWAVWithFFmpeg(t *testing.T) {
	d := NewDecoder(nil)
	if !d.Available() {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	writeTone(t, src, 44100, 2, 0.5)

	dst := filepath.Join(dir, "out.wav")
	require.NoError(t, d.ConvertToWAV(context.Background(), src, dst))

	data, err := DecodeNative(dst, "wav")
	require.NoError(t, err)
	assert.Equal(t, 22050, data.SampleRate)
	assert.Equal(t, 1, data.Channels)
	assert.InDelta(t, 11025, data.Frames(), 64)
}

func TestFFprobePath(t *testing.T) {
	cases := []struct {
		ffmpeg, ffprobe, want string
	}{
		{"ffmpeg", "", "ffprobe"},
		{"/opt/ffmpeg/bin/ffmpeg", "", filepath.Join("/opt/ffmpeg/bin", "ffprobe")},
		{"tools/ffmpeg.exe", "", filepath.Join("tools", "ffprobe.exe")},
		{"/opt/ffmpeg/bin/ffmpeg", "/usr/local/bin/ffprobe", "/usr/local/bin/ffprobe"},
	}

	for _, tc := range cases {
		cfg := DefaultDecoderConfig()
		cfg.FFmpegPath = tc.ffmpeg
		cfg.FFprobePath = tc.ffprobe
		assert.Equal(t, tc.want, NewDecoder(cfg).FFprobePath(), tc.ffmpeg)
	}
}

func TestProbeUsesConfiguredFFprobe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	writeTone(t, path, 22050, 1, 0.1)

	cfg := DefaultDecoderConfig()
	cfg.FFmpegPath = "/nonexistent/bin/ffmpeg"

	_, err := NewDecoder(cfg).Probe(context.Background(), path)
	require.ErrorIs(t, err, ErrDecodeUnavailable)
	assert.Contains(t, err.Error(), filepath.Join("/nonexistent/bin", "ffprobe"))
}
