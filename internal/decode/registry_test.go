package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

// makeWav builds a minimal PCM WAV file with the given 16-bit samples
func makeWav(t *testing.T, channels, sampleRate int, samples []int16) []byte {
	t.Helper()

	var payload bytes.Buffer
	for _, s := range samples {
		binary.Write(&payload, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+payload.Len()))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(payload.Len()))
	buf.Write(payload.Bytes())

	return buf.Bytes()
}

func TestDefaultRegistrySupportedFormats(t *testing.T) {
	registry := NewDefaultRegistry()

	formats := registry.SupportedFormats()
	want := map[string]bool{"WAV": false, "MP3": false, "AIFF": false}
	for _, f := range formats {
		want[f] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected %s in supported formats, got %v", name, formats)
		}
	}
}

func TestRegistryDetectByExtension(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		filename string
		want     string
	}{
		{"song.wav", "WAV"},
		{"song.WAVE", "WAV"},
		{"song.mp3", "MP3"},
		{"song.aiff", "AIFF"},
		{"song.aif", "AIFF"},
	}

	for _, tt := range tests {
		decoder := registry.Detect(tt.filename, nil)
		if decoder == nil {
			t.Errorf("%s: expected decoder, got nil", tt.filename)
			continue
		}
		if decoder.FormatName() != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.filename, tt.want, decoder.FormatName())
		}
	}
}

func TestRegistryDetectByContentOverridesExtension(t *testing.T) {
	registry := NewDefaultRegistry()

	// WAV bytes behind a misleading extension: content sniffing wins
	wavBytes := makeWav(t, 1, 8000, []int16{0, 1, 2, 3})
	decoder := registry.Detect("mislabeled.bin", wavBytes)
	if decoder == nil {
		t.Fatal("expected decoder from content detection")
	}
	if decoder.FormatName() != "WAV" {
		t.Errorf("expected WAV from content detection, got %s", decoder.FormatName())
	}
}

func TestRegistryDetectUnknownFormat(t *testing.T) {
	registry := NewDefaultRegistry()

	if decoder := registry.Detect("song.xyz", []byte("not audio at all")); decoder != nil {
		t.Errorf("expected nil decoder for unknown format, got %s", decoder.FormatName())
	}
}

func TestRegistryDecodeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := []int16{100, -100, 200, -200, 300, -300}
	wavBytes := makeWav(t, 2, 44100, samples)
	if err := afero.WriteFile(fs, "/music/track.wav", wavBytes, 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	registry := NewDefaultRegistry()
	data, err := registry.DecodeFile(fs, "/music/track.wav")
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}

	if data.Channels != 2 {
		t.Errorf("expected 2 channels, got %d", data.Channels)
	}
	if data.SampleRate != 44100 {
		t.Errorf("expected 44100 Hz, got %d", data.SampleRate)
	}
	if data.Frames() != 3 {
		t.Errorf("expected 3 frames, got %d", data.Frames())
	}

	// Round-trip through the chunked reader preserves sample values
	chunk, err := NewBufferReader(data, 16).Next()
	if err != nil {
		t.Fatalf("chunk read failed: %v", err)
	}
	for i, want := range samples {
		if chunk.Samples[i] != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, chunk.Samples[i])
		}
	}
}

func TestRegistryDecodeFileUnsupported(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/music/track.xyz", []byte("garbage"), 0644)

	registry := NewDefaultRegistry()
	_, err := registry.DecodeFile(fs, "/music/track.xyz")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFileResolverResolve(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/music/track.mp3", []byte("data"), 0644)
	fs.MkdirAll("/music/album", 0755)

	resolver := NewFileResolver(fs)

	if _, err := resolver.Resolve("/music/track.mp3"); err != nil {
		t.Errorf("expected existing file to resolve: %v", err)
	}
	if _, err := resolver.Resolve("/music/missing.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := resolver.Resolve("/music/album"); err == nil {
		t.Error("expected error for directory")
	}
	if _, err := resolver.Resolve(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestFileResolverResolveWithExtensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/music/intro.wav", []byte("data"), 0644)

	resolver := NewFileResolver(fs)

	resolved, err := resolver.ResolveWithExtensions("/music/intro", []string{"mp3", "wav"})
	if err != nil {
		t.Fatalf("resolution failed: %v", err)
	}
	if resolved != "/music/intro.wav" {
		t.Errorf("expected /music/intro.wav, got %s", resolved)
	}

	if _, err := resolver.ResolveWithExtensions("/music/outro", []string{"mp3"}); err == nil {
		t.Error("expected error when no candidate exists")
	}
}
