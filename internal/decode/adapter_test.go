package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

// fakeProbeOK wires the adapter's probe seams so the probe always succeeds
// without touching PATH
func fakeProbeOK(a *Adapter) {
	a.lookPath = func(name string) (string, error) { return "/bin/" + name, nil }
	a.runVersion = func(ctx context.Context, binary string) error { return nil }
}

func TestAdapterProbeFailsWhenBinaryMissing(t *testing.T) {
	a := NewAdapter(AdapterConfig{Binary: "definitely-not-a-decoder-binary-12345"})

	err := a.Probe()
	if err == nil {
		t.Fatal("expected probe to fail for missing binary")
	}
	if !errors.Is(err, ErrProbeFailed) {
		t.Errorf("expected ErrProbeFailed, got %v", err)
	}
}

func TestAdapterProbeRunsExactlyOnce(t *testing.T) {
	a := NewAdapter(AdapterConfig{})

	calls := 0
	a.lookPath = func(name string) (string, error) {
		calls++
		return "", errors.New("not found")
	}

	for i := 0; i < 5; i++ {
		if err := a.Probe(); !errors.Is(err, ErrProbeFailed) {
			t.Fatalf("call %d: expected ErrProbeFailed, got %v", i, err)
		}
	}

	if calls != 1 {
		t.Errorf("expected exactly one probe invocation, got %d", calls)
	}
}

func TestAdapterOpenDoesNotSpawnAfterProbeFailure(t *testing.T) {
	a := NewAdapter(AdapterConfig{Binary: "definitely-not-a-decoder-binary-12345"})

	stream, err := a.Open(context.Background(), "track.flac")
	if !errors.Is(err, ErrProbeFailed) {
		t.Errorf("expected ErrProbeFailed from Open, got %v", err)
	}
	if stream != nil {
		t.Error("expected nil stream after probe failure")
	}
}

func TestAdapterStreamsChunksFromProcess(t *testing.T) {
	// 2 channels, chunk of 4 frames -> 16 bytes per chunk. The fake
	// decoder emits 32 zero bytes: exactly two chunks.
	a := NewAdapter(AdapterConfig{Binary: "sh", Channels: 2, ChunkFrames: 4})
	fakeProbeOK(a)
	a.argv = func(path string) []string {
		return []string{"-c", "head -c 32 /dev/zero"}
	}

	stream, err := a.Open(context.Background(), "track.ogg")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	var chunks int
	var frames int
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		chunks++
		frames += chunk.Frames
		if chunk.Seq != uint64(chunks) {
			t.Errorf("expected seq %d, got %d", chunks, chunk.Seq)
		}
		if len(chunk.Samples) != chunk.Frames*2 {
			t.Errorf("sample count %d does not match frames %d at 2 channels",
				len(chunk.Samples), chunk.Frames)
		}
	}

	if chunks != 2 || frames != 8 {
		t.Errorf("expected 2 chunks / 8 frames, got %d chunks / %d frames", chunks, frames)
	}
	if stream.BytesProduced() != 32 {
		t.Errorf("expected 32 bytes produced, got %d", stream.BytesProduced())
	}
}

func TestAdapterStreamIsFinite(t *testing.T) {
	a := NewAdapter(AdapterConfig{Binary: "sh", Channels: 1, ChunkFrames: 8})
	fakeProbeOK(a)
	a.argv = func(path string) []string {
		return []string{"-c", "head -c 16 /dev/zero"}
	}

	stream, err := a.Open(context.Background(), "t.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err != nil {
		t.Fatalf("first chunk failed: %v", err)
	}
	if _, err := stream.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	// EOF is sticky: the stream is not restartable
	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("expected io.EOF on repeated Next, got %v", err)
	}
}

func TestAdapterReportsTruncatedStream(t *testing.T) {
	// Fake decoder dies with a nonzero exit after a partial frame:
	// 10 bytes is 2 complete stereo frames plus 2 dangling bytes.
	a := NewAdapter(AdapterConfig{Binary: "sh", Channels: 2, ChunkFrames: 64})
	fakeProbeOK(a)
	a.argv = func(path string) []string {
		return []string{"-c", "head -c 10 /dev/zero; exit 3"}
	}

	stream, err := a.Open(context.Background(), "broken.m4a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	// The trailing complete frames are still delivered first
	chunk, err := stream.Next()
	if err != nil {
		t.Fatalf("expected trailing frames before the error, got %v", err)
	}
	if chunk.Frames != 2 {
		t.Errorf("expected 2 complete frames, got %d", chunk.Frames)
	}

	_, err = stream.Next()
	var truncated *TruncatedError
	if !errors.As(err, &truncated) {
		t.Fatalf("expected TruncatedError, got %v", err)
	}
	if truncated.BytesProduced != 10 {
		t.Errorf("expected 10 bytes produced, got %d", truncated.BytesProduced)
	}
	if truncated.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", truncated.ExitCode)
	}
}

func TestAdapterEmptyOutputIsTruncated(t *testing.T) {
	a := NewAdapter(AdapterConfig{Binary: "sh", Channels: 2, ChunkFrames: 8})
	fakeProbeOK(a)
	a.argv = func(path string) []string {
		return []string{"-c", "exit 0"}
	}

	stream, err := a.Open(context.Background(), "empty.opus")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	_, err = stream.Next()
	var truncated *TruncatedError
	if !errors.As(err, &truncated) {
		t.Fatalf("expected TruncatedError for empty output, got %v", err)
	}
	if truncated.BytesProduced != 0 {
		t.Errorf("expected 0 bytes produced, got %d", truncated.BytesProduced)
	}
}

func TestAdapterSpawnErrorCarriesContext(t *testing.T) {
	a := NewAdapter(AdapterConfig{Binary: "/nonexistent/dir/ffmpeg"})
	fakeProbeOK(a)

	_, err := a.Open(context.Background(), "track.mp3")
	var spawn *SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if spawn.Path != "track.mp3" {
		t.Errorf("expected track path in error, got %q", spawn.Path)
	}
	if fmt.Sprint(spawn) == "" {
		t.Error("expected non-empty error message")
	}
}
