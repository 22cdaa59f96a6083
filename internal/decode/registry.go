package decode

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// Registry manages native audio format decoders and provides format
// detection by content sniffing with extension fallback
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates a new empty decoder registry
func NewRegistry() *Registry {
	return &Registry{decoders: make([]Decoder, 0)}
}

// NewDefaultRegistry creates a registry with the built-in WAV, MP3, and
// AIFF decoders registered
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())
	return registry
}

// Register adds a decoder to the registry
func (r *Registry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}
	r.decoders = append(r.decoders, decoder)
	slog.Debug("decoder registered",
		"format", decoder.FormatName(),
		"total_decoders", len(r.decoders))
}

// SupportedFormats returns the names of all registered formats
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// mimeFormats maps sniffed MIME types to registered format names
var mimeFormats = map[string]string{
	"audio/wav":    "WAV",
	"audio/x-wav":  "WAV",
	"audio/mpeg":   "MP3",
	"audio/aiff":   "AIFF",
	"audio/x-aiff": "AIFF",
}

// Detect picks a decoder for the given file, preferring content sniffing
// over the filename extension. Returns nil when no native decoder
// handles the format; callers fall back to the external adapter.
func (r *Registry) Detect(filename string, header []byte) Decoder {
	if len(header) > 0 {
		mtype := mimetype.Detect(header)
		if name, ok := mimeFormats[strings.Split(mtype.String(), ";")[0]]; ok {
			if d := r.byName(name); d != nil {
				slog.Debug("format detected by content",
					"filename", filename,
					"mime", mtype.String(),
					"format", name)
				return d
			}
		}
	}

	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}
	return nil
}

func (r *Registry) byName(name string) Decoder {
	for _, decoder := range r.decoders {
		if decoder.FormatName() == name {
			return decoder
		}
	}
	return nil
}

// DecodeFile opens the file on the given filesystem, detects its format,
// and decodes it fully. Returns ErrUnsupportedFormat when no native
// decoder matches.
func (r *Registry) DecodeFile(fs afero.Fs, path string) (*AudioData, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, _ := io.ReadFull(f, header)
	header = header[:n]

	decoder := r.Detect(path, header)
	if decoder == nil {
		return nil, ErrUnsupportedFormat
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind audio file: %w", err)
	}
	return decoder.Decode(f)
}
