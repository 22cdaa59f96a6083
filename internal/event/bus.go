package event

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSendTimeout is returned when a bounded-timeout publish cannot place
// its event before the timeout expires. It is always non-fatal.
var ErrSendTimeout = errors.New("event send timed out")

// Config holds per-category channel capacities and the bounded timeout
// applied to non-real-time publishers
type Config struct {
	InputCapacity    int
	StateCapacity    int
	SpectrumCapacity int
	TickCapacity     int
	SendTimeout      time.Duration
}

// DefaultConfig returns the capacities used when none are configured
func DefaultConfig() Config {
	return Config{
		InputCapacity:    16,
		StateCapacity:    16,
		SpectrumCapacity: 4,
		TickCapacity:     4,
		SendTimeout:      50 * time.Millisecond,
	}
}

// Bus is a fixed set of bounded channels, one per event category, drained
// by a single multiplexed consumer. Producers never share mutable state:
// everything crosses goroutines by value.
//
// Real-time producers use the TryPublish variants, which never block; a
// full channel drops the new event and bumps the drop counter. Everyone
// else uses the Publish variants, which block up to the configured
// timeout and report ErrSendTimeout.
type Bus struct {
	input    chan InputEvent
	state    chan AudioStateEvent
	spectrum chan SpectrumEvent
	tick     chan TickEvent

	shutdown     chan struct{}
	shutdownOnce sync.Once

	dropped     atomic.Uint64
	sendTimeout time.Duration
}

// New creates a bus with the given capacities. Zero or negative values
// fall back to the defaults.
func New(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.InputCapacity <= 0 {
		cfg.InputCapacity = def.InputCapacity
	}
	if cfg.StateCapacity <= 0 {
		cfg.StateCapacity = def.StateCapacity
	}
	if cfg.SpectrumCapacity <= 0 {
		cfg.SpectrumCapacity = def.SpectrumCapacity
	}
	if cfg.TickCapacity <= 0 {
		cfg.TickCapacity = def.TickCapacity
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	slog.Debug("creating event bus",
		"input_capacity", cfg.InputCapacity,
		"state_capacity", cfg.StateCapacity,
		"spectrum_capacity", cfg.SpectrumCapacity,
		"tick_capacity", cfg.TickCapacity,
		"send_timeout", cfg.SendTimeout)

	return &Bus{
		input:       make(chan InputEvent, cfg.InputCapacity),
		state:       make(chan AudioStateEvent, cfg.StateCapacity),
		spectrum:    make(chan SpectrumEvent, cfg.SpectrumCapacity),
		tick:        make(chan TickEvent, cfg.TickCapacity),
		shutdown:    make(chan struct{}),
		sendTimeout: cfg.SendTimeout,
	}
}

// TryPublishState delivers an audio state event without blocking. Returns
// false when the channel is full and the event was dropped.
func (b *Bus) TryPublishState(ev AudioStateEvent) bool {
	select {
	case b.state <- ev:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// TryPublishSpectrum delivers a spectrum frame without blocking. When the
// consumer lags, one stale frame is discarded first so the newest frame
// wins; if the channel is still full the new frame is dropped.
func (b *Bus) TryPublishSpectrum(ev SpectrumEvent) bool {
	select {
	case b.spectrum <- ev:
		return true
	default:
	}

	// Consumer is behind: discard one stale frame, then retry once.
	select {
	case <-b.spectrum:
		b.dropped.Add(1)
	default:
	}

	select {
	case b.spectrum <- ev:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// PublishInput delivers an input event, blocking up to the bounded timeout
func (b *Bus) PublishInput(ev InputEvent) error {
	select {
	case b.input <- ev:
		return nil
	case <-b.shutdown:
		return nil
	case <-time.After(b.sendTimeout):
		b.dropped.Add(1)
		return ErrSendTimeout
	}
}

// PublishTick delivers a tick event, blocking up to the bounded timeout
func (b *Bus) PublishTick(ev TickEvent) error {
	select {
	case b.tick <- ev:
		return nil
	case <-b.shutdown:
		return nil
	case <-time.After(b.sendTimeout):
		b.dropped.Add(1)
		return ErrSendTimeout
	}
}

// Next blocks until any category has a ready event and returns it wrapped
// in an Envelope. Selection across ready categories is fair, not
// priority-ordered. Within a category delivery is strictly FIFO. After
// Shutdown has been called, pending events keep draining; once all
// channels are empty Next returns a KindShutdown envelope.
func (b *Bus) Next() Envelope {
	select {
	case ev := <-b.input:
		return Envelope{Kind: KindInput, Input: ev}
	case ev := <-b.state:
		return Envelope{Kind: KindAudioState, AudioState: ev}
	case ev := <-b.spectrum:
		return Envelope{Kind: KindSpectrum, Spectrum: ev}
	case ev := <-b.tick:
		return Envelope{Kind: KindTick, Tick: ev}
	case <-b.shutdown:
		// Drain whatever is already queued before reporting shutdown so
		// no accepted event is lost.
		select {
		case ev := <-b.input:
			return Envelope{Kind: KindInput, Input: ev}
		case ev := <-b.state:
			return Envelope{Kind: KindAudioState, AudioState: ev}
		case ev := <-b.spectrum:
			return Envelope{Kind: KindSpectrum, Spectrum: ev}
		case ev := <-b.tick:
			return Envelope{Kind: KindTick, Tick: ev}
		default:
			return Envelope{Kind: KindShutdown}
		}
	}
}

// Shutdown broadcasts the shutdown signal to every producer and consumer.
// Safe to call more than once.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		slog.Info("event bus shutting down", "dropped_events", b.dropped.Load())
		close(b.shutdown)
	})
}

// Done returns the shutdown broadcast channel. Producer goroutines select
// on it to observe shutdown within the grace period.
func (b *Bus) Done() <-chan struct{} {
	return b.shutdown
}

// Dropped returns the total number of events discarded because a channel
// was full or a bounded send timed out
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
