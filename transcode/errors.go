package transcode

import "errors"

var (
	// ErrDecodeUnavailable means the input needs ffmpeg and no ffmpeg binary was found.
	ErrDecodeUnavailable = errors.New("no decoder available for this audio format")

	// ErrUnsupportedFormat is returned for extensions outside SupportedExtensions.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)
