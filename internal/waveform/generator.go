package waveform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	"resono.click/internal/decode"
	"resono.click/internal/event"
)

// ErrDisabled is returned for every request after the decoder capability
// probe has failed; waveform generation stays off for the session
var ErrDisabled = errors.New("waveform generation disabled for this session")

// Envelope is a fixed-resolution amplitude summary of an entire track.
// Entries are immutable once built; recomputation replaces the whole
// envelope atomically.
type Envelope struct {
	TrackID string
	Peaks   []float64 // normalized to [0, 1]
}

// Source supplies decoded sample chunks for envelope extraction
type Source interface {
	// Probe reports decoder availability; the result is stable for the
	// process lifetime
	Probe() error
	// Open starts a fresh decode of the full track
	Open(ctx context.Context, path string) (decode.ChunkReader, error)
}

// AdapterSource adapts decode.Adapter to the Source interface
type AdapterSource struct {
	Adapter *decode.Adapter
}

// Probe forwards to the adapter's one-time capability probe
func (s AdapterSource) Probe() error { return s.Adapter.Probe() }

// Open forwards to the adapter's subprocess stream
func (s AdapterSource) Open(ctx context.Context, path string) (decode.ChunkReader, error) {
	stream, err := s.Adapter.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Config sizes the envelope extraction
type Config struct {
	// Buckets is the fixed envelope resolution
	Buckets int
	// BlockFrames is the provisional folding granularity before the
	// final resample
	BlockFrames int
}

func (c *Config) applyDefaults() {
	if c.Buckets <= 0 {
		c.Buckets = 512
	}
	if c.BlockFrames <= 0 {
		c.BlockFrames = 4096
	}
}

type request struct {
	ctx     context.Context
	trackID string
	path    string
	reply   chan response
}

type response struct {
	envelope *Envelope
	err      error
}

// Generator computes and caches waveform envelopes. A single actor
// goroutine owns the cache map; callers talk to it purely through
// channels, so no lock guards the cache. Requests for a cached track
// return without re-invoking the decoder.
type Generator struct {
	cfg      Config
	source   Source
	bus      *event.Bus
	requests chan request

	invocations atomic.Uint64
}

// New creates a generator backed by the given decode source
func New(cfg Config, source Source, bus *event.Bus) *Generator {
	cfg.applyDefaults()
	return &Generator{
		cfg:      cfg,
		source:   source,
		bus:      bus,
		requests: make(chan request),
	}
}

// Invocations returns how many decoder processes have been driven;
// cache hits do not increment it
func (g *Generator) Invocations() uint64 {
	return g.invocations.Load()
}

// Run owns the envelope cache until the done channel closes. Intended to
// run on its own goroutine.
func (g *Generator) Run(done <-chan struct{}) {
	cache := make(map[string]*Envelope)
	disabledReported := false

	for {
		select {
		case <-done:
			slog.Debug("waveform generator stopped", "cached_tracks", len(cache))
			return
		case req := <-g.requests:
			if env, ok := cache[req.trackID]; ok {
				req.reply <- response{envelope: env}
				continue
			}

			if err := g.source.Probe(); err != nil {
				// One session-level report, not one per track
				if !disabledReported {
					disabledReported = true
					slog.Warn("waveform generation disabled", "error", err)
					if g.bus != nil {
						g.bus.TryPublishState(event.AudioStateEvent{
							Kind: event.WaveformDisabled,
							Err:  err,
						})
					}
				}
				req.reply <- response{err: fmt.Errorf("%w: %v", ErrDisabled, err)}
				continue
			}

			env, err := g.extract(req.ctx, req.trackID, req.path)
			if err == nil {
				cache[req.trackID] = env
			}
			req.reply <- response{envelope: env, err: err}
		}
	}
}

// Generate returns the envelope for a track, computing it on first
// request and serving the cached result afterwards. The context cancels
// an in-flight extraction cooperatively.
func (g *Generator) Generate(ctx context.Context, trackID, path string) (*Envelope, error) {
	req := request{
		ctx:     ctx,
		trackID: trackID,
		path:    path,
		reply:   make(chan response, 1),
	}

	select {
	case g.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.envelope, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// extract drives a full decode and folds it into the fixed-resolution
// envelope. The context is checked between chunks so a track change
// cancels promptly.
func (g *Generator) extract(ctx context.Context, trackID, path string) (*Envelope, error) {
	g.invocations.Add(1)

	reader, err := g.source.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("waveform decode failed for %s: %w", trackID, err)
	}
	defer reader.Close()

	var blockPeaks []float64
	var blockPeak float64
	framesInBlock := 0

	for {
		if err := ctx.Err(); err != nil {
			slog.Debug("waveform extraction cancelled", "track_id", trackID)
			return nil, err
		}

		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("waveform decode failed for %s: %w", trackID, err)
		}

		for _, s := range chunk.Samples {
			amp := math.Abs(float64(s)) / 32768.0
			if amp > blockPeak {
				blockPeak = amp
			}
		}
		framesInBlock += chunk.Frames
		if framesInBlock >= g.cfg.BlockFrames {
			blockPeaks = append(blockPeaks, blockPeak)
			blockPeak = 0
			framesInBlock = 0
		}
	}
	if framesInBlock > 0 {
		blockPeaks = append(blockPeaks, blockPeak)
	}

	env := &Envelope{
		TrackID: trackID,
		Peaks:   resample(blockPeaks, g.cfg.Buckets),
	}

	slog.Info("waveform envelope generated",
		"track_id", trackID,
		"blocks", len(blockPeaks),
		"buckets", len(env.Peaks))

	return env, nil
}

// resample folds the provisional block peaks into exactly n buckets,
// each holding the maximum of its span
func resample(peaks []float64, n int) []float64 {
	out := make([]float64, n)
	if len(peaks) == 0 {
		return out
	}

	for i := 0; i < n; i++ {
		lo := i * len(peaks) / n
		hi := (i + 1) * len(peaks) / n
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(peaks) {
			hi = len(peaks)
		}
		for j := lo; j < hi; j++ {
			if peaks[j] > out[i] {
				out[i] = peaks[j]
			}
		}
	}
	return out
}
