package decode

import (
	"errors"
	"io"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// SampleFormat identifies the PCM encoding of decoded audio
type SampleFormat int

const (
	FormatS16 SampleFormat = iota
	FormatS24
	FormatS32
)

// BytesPerSample returns the storage size of one sample in this format
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32:
		return 4
	default:
		return 2
	}
}

// String returns the conventional name of the format
func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16le"
	case FormatS24:
		return "s24le"
	case FormatS32:
		return "s32le"
	default:
		return "unknown"
	}
}

// AudioData represents a fully decoded track as interleaved raw PCM
type AudioData struct {
	Samples    []byte       // Raw interleaved PCM data
	Channels   uint32       // Number of audio channels
	SampleRate uint32       // Sample rate in Hz
	Format     SampleFormat // PCM encoding of Samples
}

// Frames returns the number of interleaved frames in the decoded data
func (a *AudioData) Frames() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / int(a.Channels) / a.Format.BytesPerSample()
}

// Decoder is the interface implemented by native in-process format decoders
type Decoder interface {
	// Decode reads audio data from reader and returns decoded PCM data
	Decode(reader io.Reader) (*AudioData, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}
