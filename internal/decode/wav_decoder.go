package decode

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles WAV audio format decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

// Decode reads WAV audio data from reader and returns decoded PCM data
func (d *WavDecoder) Decode(reader io.Reader) (*AudioData, error) {
	slog.Debug("starting WAV decode operation")

	// youpy/go-wav needs a ReadSeeker, so read everything first
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read WAV data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	wavReader := wav.NewReader(bytes.NewReader(data))

	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, ErrInvalidData
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		slog.Error("invalid WAV format parameters",
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, ErrInvalidData
	}

	var sampleFormat SampleFormat
	switch format.BitsPerSample {
	case 16:
		sampleFormat = FormatS16
	case 24:
		sampleFormat = FormatS24
	case 32:
		sampleFormat = FormatS32
	default:
		slog.Error("unsupported WAV bit depth", "bits", format.BitsPerSample)
		return nil, ErrUnsupportedFormat
	}

	slog.Debug("WAV format detected",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample)

	var raw []byte
	totalSamples := 0
	for {
		samples, err := wavReader.ReadSamples()
		if err != nil {
			if err == io.EOF {
				break
			}
			slog.Error("failed to read WAV samples", "error", err)
			return nil, ErrReadFailure
		}
		if len(samples) == 0 {
			break
		}
		totalSamples += len(samples)

		for _, sample := range samples {
			for ch := 0; ch < int(format.NumChannels); ch++ {
				var val int
				if ch < len(sample.Values) {
					val = sample.Values[ch]
				}
				raw = appendSampleLE(raw, val, sampleFormat)
			}
		}
	}

	if len(raw) == 0 {
		slog.Error("no audio data found in WAV file")
		return nil, ErrInvalidData
	}

	slog.Info("WAV decode completed",
		"total_bytes", len(raw),
		"total_frames", totalSamples,
		"channels", format.NumChannels,
		"sample_rate", format.SampleRate)

	return &AudioData{
		Samples:    raw,
		Channels:   uint32(format.NumChannels),
		SampleRate: uint32(format.SampleRate),
		Format:     sampleFormat,
	}, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}

// appendSampleLE appends one sample value little-endian at the width of
// the given format
func appendSampleLE(dst []byte, val int, format SampleFormat) []byte {
	switch format {
	case FormatS16:
		return append(dst, byte(val), byte(val>>8))
	case FormatS24:
		return append(dst, byte(val), byte(val>>8), byte(val>>16))
	case FormatS32:
		return append(dst, byte(val), byte(val>>8), byte(val>>16), byte(val>>24))
	default:
		return dst
	}
}
