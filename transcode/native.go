package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/RyanBlaney/magictales/algorithms/common"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// nativeDecodeFunc decodes an open file into interleaved PCM without ffmpeg.
type nativeDecodeFunc func(f *os.File) (*AudioData, error)

var nativeDecoders = map[string]nativeDecodeFunc{
	"wav":  decodeWAV,
	"mp3":  decodeMP3,
	"flac": decodeFLAC,
	"ogg":  decodeVorbis,
}

// DecodeNative decodes path with the pure-Go decoder registered for format.
func DecodeNative(path, format string) (*AudioData, error) {
	decode, ok := nativeDecoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: no native decoder for %q", ErrUnsupportedFormat, format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	data, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s decode failed: %w", format, err)
	}

	data.Codec = format
	data.Timestamp = time.Now()
	if data.SampleRate > 0 {
		data.Duration = time.Duration(data.Frames()) * time.Second / time.Duration(data.SampleRate)
	}

	logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeNative",
	}).Debug("Native decode completed", logging.Fields{
		"format":      format,
		"sample_rate": data.SampleRate,
		"channels":    data.Channels,
		"frames":      data.Frames(),
	})

	return data, nil
}

func decodeWAV(f *os.File) (*AudioData, error) {
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := int(decoder.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	return &AudioData{
		PCM:        intsToFloat(buf.Data, int(decoder.BitDepth)),
		SampleRate: int(decoder.SampleRate),
		Channels:   max(1, channels),
	}, nil
}

// decodeMP3 reads go-mp3's 16-bit little-endian stereo stream.
func decodeMP3(f *os.File) (*AudioData, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read MP3 frames: %w", err)
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}

	return &AudioData{
		PCM:        samples,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeFLAC(f *os.File) (*AudioData, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))

	samples := make([]float64, 0, int(stream.Info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float64(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return &AudioData{
		PCM:        samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}

func decodeVorbis(f *os.File) (*AudioData, error) {
	decoder, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}

	var samples []float64
	buffer := make([]float32, 8192)
	for {
		n, err := decoder.Read(buffer)
		for _, s := range buffer[:n] {
			samples = append(samples, float64(s))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Vorbis packets: %w", err)
		}
	}

	return &AudioData{
		PCM:        samples,
		SampleRate: decoder.SampleRate(),
		Channels:   decoder.Channels(),
	}, nil
}

// IsVorbis reports whether an .ogg file carries a Vorbis stream the native
// reader can handle. Opus-in-Ogg (what browsers record) returns false.
func IsVorbis(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	_, err = oggvorbis.NewReader(f)
	return err == nil
}

func intsToFloat(data []int, bitDepth int) []float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v) / scale
	}
	return out
}

// WriteWAV encodes interleaved samples in [-1, 1] as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []float64, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}

	encoder := wav.NewEncoder(f, sampleRate, 16, channels, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(common.Clamp(s, -1, 1) * 32767)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := encoder.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return f.Close()
}
