package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/term"

	"resono.click/internal/config"
	"resono.click/internal/decode"
	"resono.click/internal/engine"
	"resono.click/internal/event"
	"resono.click/internal/fs"
	"resono.click/internal/history"
	"resono.click/internal/spectrum"
	"resono.click/internal/waveform"
)

const tickInterval = 500 * time.Millisecond

// trackSource describes one opened track: its chunk stream plus the
// stream parameters the device must match
type trackSource struct {
	reader     decode.ChunkReader
	channels   int
	sampleRate int
	waveform   waveform.Source
}

// session wires one playback run: decoder, engine, analyzer, waveform
// generator, and the event loop that owns the terminal
type session struct {
	cli    *CLI
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
}

func newSession(cli *CLI, cfg *config.Config, stdin io.Reader, stdout io.Writer) *session {
	return &session{cli: cli, cfg: cfg, stdin: stdin, stdout: stdout}
}

// openTrack resolves the file and picks a decode path: native decoders
// for the formats the registry knows, the external adapter for the rest
func (s *session) openTrack(ctx context.Context, path string) (*trackSource, error) {
	fsys := fs.NewDefaultFactory().Production()
	resolver := decode.NewFileResolver(fsys)
	resolved, err := resolver.Resolve(path)
	if err != nil {
		return nil, err
	}

	registry := decode.NewDefaultRegistry()
	data, nativeErr := registry.DecodeFile(fsys, resolved)
	if nativeErr == nil {
		slog.Info("track decoded natively",
			"path", resolved,
			"channels", data.Channels,
			"sample_rate", data.SampleRate,
			"format", data.Format)
		return &trackSource{
			reader:     decode.NewBufferReader(data, 0),
			channels:   int(data.Channels),
			sampleRate: int(data.SampleRate),
			waveform:   registrySource{fs: fsys, registry: registry, path: resolved},
		}, nil
	}

	slog.Debug("no native decoder, falling back to external adapter",
		"path", resolved, "error", nativeErr)

	adapter := decode.NewAdapter(decode.AdapterConfig{Binary: s.cfg.FFmpegBinary})
	if err := adapter.Probe(); err != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", resolved, err)
	}
	stream, err := adapter.Open(ctx, resolved)
	if err != nil {
		return nil, err
	}

	return &trackSource{
		reader:     stream,
		channels:   adapter.Channels(),
		sampleRate: adapter.SampleRate(),
		waveform:   waveform.AdapterSource{Adapter: adapter},
	}, nil
}

// Play plays one file to completion, or until the quit key or a signal
// arrives. The terminal is owned by the renderer for the duration.
func (s *session) Play(ctx context.Context, path string) error {
	track, err := s.openTrack(ctx, path)
	if err != nil {
		return err
	}
	defer track.reader.Close()

	bus := event.New(event.DefaultConfig())

	eng, err := engine.New(engine.Config{
		Channels:         uint32(track.channels),
		SampleRate:       uint32(track.sampleRate),
		ValidThreshold:   s.cfg.ValidThreshold,
		InvalidThreshold: s.cfg.InvalidThreshold,
	}, bus)
	if err != nil {
		return err
	}
	defer eng.Close()

	analyzer := spectrum.New(spectrum.Config{
		SampleRate: uint32(track.sampleRate),
		Channels:   track.channels,
	}, bus)
	eng.SetTap(analyzer.Tap())

	generator := waveform.New(waveform.Config{
		Buckets: s.cfg.WaveformBuckets,
	}, track.waveform, bus)

	done := make(chan struct{})
	defer close(done)
	go analyzer.Run(done)
	go generator.Run(done)

	go s.feed(track, eng, bus)
	go s.tick(bus)

	interactive := s.startInput(bus)

	renderer := newRenderer(s.stdout, s.cfg.SpectrumBars, interactive)
	renderer.Start(path)

	// Shutdown path for signals: the consumer loop itself only exits via
	// the bus
	go func() {
		select {
		case <-ctx.Done():
			bus.Shutdown()
		case <-bus.Done():
		}
	}()

	started := time.Now()
	playErr := s.consume(bus, eng, renderer)

	renderer.Finish()
	s.recordPlay(path, started, playErr)

	slog.Info("playback session ended",
		"path", path,
		"duration", time.Since(started),
		"engine_dropped", eng.Dropped(),
		"bus_dropped", bus.Dropped(),
		"error", playErr)

	if errors.Is(playErr, context.Canceled) {
		return nil
	}
	return playErr
}

// feed pushes decoded chunks into the engine at roughly real-time pace.
// The engine itself never blocks, so pacing here is what keeps the
// bounded feed queue from overflowing on fast decoders.
func (s *session) feed(track *trackSource, eng *engine.Engine, bus *event.Bus) {
	for {
		select {
		case <-bus.Done():
			return
		default:
		}

		chunk, err := track.reader.Next()
		if err == io.EOF {
			// Let the device drain what is already queued before ending
			// the session
			select {
			case <-time.After(tickInterval):
			case <-bus.Done():
			}
			bus.Shutdown()
			return
		}
		if err != nil {
			slog.Error("decode stream failed", "error", err)
			bus.Shutdown()
			return
		}

		eng.PushChunk(chunk)
		if eng.State() == engine.StateError {
			bus.Shutdown()
			return
		}

		if chunk.Frames > 0 && track.sampleRate > 0 {
			pace := time.Duration(chunk.Frames) * time.Second / time.Duration(track.sampleRate)
			select {
			case <-time.After(pace / 2):
			case <-bus.Done():
				return
			}
		}
	}
}

// tick publishes coarse progress ticks for the renderer
func (s *session) tick(bus *event.Bus) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-bus.Done():
			return
		case t := <-ticker.C:
			if err := bus.PublishTick(event.TickEvent{At: t}); err != nil {
				slog.Debug("tick dropped", "error", err)
			}
		}
	}
}

// startInput puts the terminal in raw mode and forwards keystrokes to
// the bus. Returns whether the session is interactive; non-interactive
// runs (piped stdin, no TTY) play without key handling.
func (s *session) startInput(bus *event.Bus) bool {
	file, ok := s.stdin.(*os.File)
	if !ok || !s.cli.terminalDetector.IsTerminal(int(file.Fd())) {
		slog.Debug("stdin is not an interactive terminal, key handling disabled")
		return false
	}

	fd := int(file.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		slog.Warn("failed to enter raw terminal mode", "error", err)
		return false
	}

	go func() {
		<-bus.Done()
		term.Restore(fd, oldState)
	}()

	go func() {
		reader := bufio.NewReader(file)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				slog.Debug("stdin reader stopped", "error", err)
				return
			}
			if err := bus.PublishInput(event.InputEvent{Key: rune(b)}); err != nil {
				slog.Debug("input event dropped", "error", err)
			}
			select {
			case <-bus.Done():
				return
			default:
			}
		}
	}()

	return true
}

// consume is the single consumer of the event bus. It owns the terminal
// and reacts to every event category until shutdown.
func (s *session) consume(bus *event.Bus, eng *engine.Engine, renderer *renderer) error {
	var playErr error

	for {
		env := bus.Next()
		switch env.Kind {
		case event.KindInput:
			switch env.Input.Key {
			case 'q', 'Q', 3: // 3 is Ctrl-C in raw mode
				slog.Debug("quit key received", "key", env.Input.Key)
				bus.Shutdown()
			}

		case event.KindAudioState:
			renderer.RenderState(env.AudioState)
			switch env.AudioState.Kind {
			case event.AudioFailed:
				if playErr == nil {
					playErr = env.AudioState.Err
				}
				bus.Shutdown()
			case event.WaveformDisabled:
				slog.Warn("waveform generation unavailable", "error", env.AudioState.Err)
			}

		case event.KindSpectrum:
			renderer.RenderSpectrum(env.Spectrum.Bars)

		case event.KindTick:
			renderer.RenderTick(env.Tick.At, eng.State())

		case event.KindShutdown:
			return playErr
		}
	}
}

// recordPlay writes the finished session to the history store, if one is
// available
func (s *session) recordPlay(path string, started time.Time, playErr error) {
	if s.cli.historyStore == nil {
		return
	}
	s.cli.historyStore.RecordPlay(history.Play{
		TrackID:    path,
		Path:       path,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
		Completed:  playErr == nil,
	})
}

// registrySource adapts the in-process decoder registry to the waveform
// source interface for formats that never touch the external adapter
type registrySource struct {
	fs       afero.Fs
	registry *decode.Registry
	path     string
}

// Probe always succeeds: the registry decoded this track once already
func (s registrySource) Probe() error { return nil }

// Open re-decodes the track into a fresh chunk stream
func (s registrySource) Open(ctx context.Context, path string) (decode.ChunkReader, error) {
	data, err := s.registry.DecodeFile(s.fs, s.path)
	if err != nil {
		return nil, err
	}
	return decode.NewBufferReader(data, 0), nil
}
