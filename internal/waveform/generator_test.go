package waveform

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"resono.click/internal/decode"
	"resono.click/internal/event"
)

// scriptedReader replays a fixed chunk sequence
type scriptedReader struct {
	chunks []decode.Chunk
	pos    int
	onNext func(call int)
}

func (r *scriptedReader) Next() (decode.Chunk, error) {
	if r.onNext != nil {
		r.onNext(r.pos)
	}
	if r.pos >= len(r.chunks) {
		return decode.Chunk{}, io.EOF
	}
	c := r.chunks[r.pos]
	r.pos++
	return c, nil
}

func (r *scriptedReader) Close() error { return nil }

// fakeSource fabricates decode streams without any subprocess
type fakeSource struct {
	probeErr error
	chunks   []decode.Chunk
	opens    atomic.Uint64
	onNext   func(call int)
}

func (s *fakeSource) Probe() error { return s.probeErr }

func (s *fakeSource) Open(ctx context.Context, path string) (decode.ChunkReader, error) {
	s.opens.Add(1)
	return &scriptedReader{chunks: s.chunks, onNext: s.onNext}, nil
}

func rampChunk(frames int, peak int16) decode.Chunk {
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(int(peak) * i / frames)
	}
	return decode.Chunk{Samples: samples, Frames: frames, Seq: 1}
}

func startGenerator(t *testing.T, cfg Config, source Source, bus *event.Bus) *Generator {
	t.Helper()
	g := New(cfg, source, bus)
	done := make(chan struct{})
	go g.Run(done)
	t.Cleanup(func() { close(done) })
	return g
}

func TestGeneratorBuildsFixedResolutionEnvelope(t *testing.T) {
	source := &fakeSource{chunks: []decode.Chunk{
		rampChunk(256, 16384),
		rampChunk(256, 32767),
	}}
	g := startGenerator(t, Config{Buckets: 16, BlockFrames: 64}, source, nil)

	env, err := g.Generate(context.Background(), "track-1", "/music/a.flac")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if env.TrackID != "track-1" {
		t.Errorf("expected track-1, got %s", env.TrackID)
	}
	if len(env.Peaks) != 16 {
		t.Fatalf("expected 16 buckets, got %d", len(env.Peaks))
	}
	for i, p := range env.Peaks {
		if p < 0 || p > 1 {
			t.Errorf("bucket %d out of range: %f", i, p)
		}
	}
	// The loudest material is in the second half of the track
	if env.Peaks[len(env.Peaks)-1] <= env.Peaks[0] {
		t.Errorf("expected rising envelope, got first=%f last=%f",
			env.Peaks[0], env.Peaks[len(env.Peaks)-1])
	}
}

func TestGeneratorCacheHitSkipsDecoder(t *testing.T) {
	source := &fakeSource{chunks: []decode.Chunk{rampChunk(128, 20000)}}
	g := startGenerator(t, Config{Buckets: 8}, source, nil)

	first, err := g.Generate(context.Background(), "track-1", "/music/a.flac")
	if err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	second, err := g.Generate(context.Background(), "track-1", "/music/a.flac")
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	if g.Invocations() != 1 {
		t.Errorf("expected exactly one decoder invocation, got %d", g.Invocations())
	}
	if source.opens.Load() != 1 {
		t.Errorf("expected exactly one stream open, got %d", source.opens.Load())
	}

	// Byte-identical result: the cached envelope is returned as-is
	if len(first.Peaks) != len(second.Peaks) {
		t.Fatal("cached envelope has different resolution")
	}
	for i := range first.Peaks {
		if first.Peaks[i] != second.Peaks[i] {
			t.Fatalf("bucket %d differs between calls: %f vs %f",
				i, first.Peaks[i], second.Peaks[i])
		}
	}
}

func TestGeneratorDistinctTracksDecodeSeparately(t *testing.T) {
	source := &fakeSource{chunks: []decode.Chunk{rampChunk(128, 20000)}}
	g := startGenerator(t, Config{Buckets: 8}, source, nil)

	if _, err := g.Generate(context.Background(), "track-1", "/music/a.flac"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := g.Generate(context.Background(), "track-2", "/music/b.flac"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if g.Invocations() != 2 {
		t.Errorf("expected two decoder invocations, got %d", g.Invocations())
	}
}

func TestGeneratorProbeFailureDisablesSession(t *testing.T) {
	bus := event.New(event.Config{})
	source := &fakeSource{probeErr: decode.ErrProbeFailed}
	g := startGenerator(t, Config{}, source, bus)

	// Several requests: all disabled, no decoder spawned
	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "track-1", "/music/a.flac")
		if !errors.Is(err, ErrDisabled) {
			t.Fatalf("request %d: expected ErrDisabled, got %v", i, err)
		}
	}
	if source.opens.Load() != 0 {
		t.Errorf("expected no decode attempts after probe failure, got %d", source.opens.Load())
	}

	// Exactly one session-level event total
	bus.Shutdown()
	disabled := 0
	for {
		env := bus.Next()
		if env.Kind == event.KindShutdown {
			break
		}
		if env.Kind == event.KindAudioState && env.AudioState.Kind == event.WaveformDisabled {
			disabled++
		}
	}
	if disabled != 1 {
		t.Errorf("expected exactly one waveform-disabled event, got %d", disabled)
	}
}

func TestGeneratorCooperativeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// An endless stream; cancellation is the only way out
	chunks := make([]decode.Chunk, 10000)
	for i := range chunks {
		chunks[i] = rampChunk(64, 1000)
	}
	source := &fakeSource{chunks: chunks}
	source.onNext = func(call int) {
		if call == 5 {
			cancel() // track change mid-decode
		}
	}
	g := startGenerator(t, Config{BlockFrames: 32}, source, nil)

	start := time.Now()
	_, err := g.Generate(ctx, "track-1", "/music/a.flac")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation was not observed within the grace period")
	}
}

func TestGeneratorCancelledTrackIsNotCached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{chunks: []decode.Chunk{rampChunk(64, 1000), rampChunk(64, 1000)}}
	source.onNext = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	g := startGenerator(t, Config{}, source, nil)

	if _, err := g.Generate(ctx, "track-1", "/music/a.flac"); err == nil {
		t.Fatal("expected cancellation error")
	}

	// A fresh request must decode again rather than serve a partial result
	source.onNext = nil
	env, err := g.Generate(context.Background(), "track-1", "/music/a.flac")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if env == nil {
		t.Fatal("expected envelope on retry")
	}
	if g.Invocations() != 2 {
		t.Errorf("expected 2 invocations (no caching of cancelled decode), got %d", g.Invocations())
	}
}
